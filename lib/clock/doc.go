// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Session grants expire, challenges go stale, and budgets are
// estimated against a moment in time. Every component that reads the
// time takes a Clock instead of calling the time package directly, so
// that tests can move time forward deterministically: a grant issued
// with a ten-minute TTL is checked at +9m59s and +10m without sleeping.
//
//	s := keyserver.NewServer(keyserver.Config{Clock: clock.Real(), ...})
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := keyserver.NewServer(keyserver.Config{Clock: c, ...})
//	c.Advance(10 * time.Minute)
//
// Clock satisfies the single-method clock interface of
// github.com/bluele/gcache, so expiring caches share the same time
// source as the rest of the component.
package clock
