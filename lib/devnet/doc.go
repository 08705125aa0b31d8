// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package devnet assembles a complete provisioning environment in one
// process: an in-memory ledger seeded with the admin capability and the
// name registry, a set of key servers sharing that ledger, and a blob
// store for encrypted credentials. The CLI's devnet command and the
// cross-package tests both run against it.
//
// Every key server is reachable directly (the Server values implement
// the session and share interfaces), so nothing listens on a socket
// unless the caller serves one over gRPC.
package devnet
