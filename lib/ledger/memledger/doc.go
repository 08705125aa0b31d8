// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memledger is an in-memory [ledger.Client] that executes the
// project contract model. It backs local development networks
// (handoff devnet) and every test that needs real ledger semantics:
// single-use capabilities, ownership checks, gas metering, and atomic
// abort.
//
// Execution is synchronous. Submit verifies the signature, executes
// the transaction against a staged copy of the touched state, and
// either commits every effect or none. The result is final as soon as
// Submit returns, so WaitForFinality only blocks for digests the ledger
// has never seen.
package memledger
