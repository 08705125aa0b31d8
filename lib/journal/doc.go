// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal persists provisioning run reports in SQLite.
//
// Every run, successful or not, is recorded with its final state, the
// stage and kind of any failure, and the digests it committed. The
// journal is how operators find stranded capabilities after the
// process that minted them has exited: a run whose outcome is
// "stranded" left a creation capability on the ledger that was never
// finalized, and nothing in the system will clean it up on its own.
//
// The journal never stores key material. Reports carry addresses and
// digests only.
//
// Connections come from a zombiezen sqlitex pool in WAL mode. Writes
// use immediate transactions so concurrent runs recording at the same
// moment serialize on the write lock instead of failing with
// SQLITE_BUSY.
package journal
