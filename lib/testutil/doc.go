// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for handoff packages.
//
// [RequireReceive] bounds every wait on a channel so a hung server or
// orchestrator fails the test instead of stalling the suite.
// [WriteSecretFile] writes key material the way operators deploy it:
// one line, mode 0600.
package testutil
