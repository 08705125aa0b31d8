// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint plumbing shared by the handoff
// binaries: fatal error reporting and signal-driven shutdown.
package process
