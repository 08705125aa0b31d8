// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyserver implements one decryption key server and a gRPC
// transport for it.
//
// A key server holds an age identity that opens its slice of every
// threshold ciphertext, plus an Ed25519 key that signs session grants.
// It releases shares to a requester only when:
//
//   - the requester presents an unexpired, unrevoked grant this server
//     issued,
//   - the policy-proof transaction is sent from the grant's identity,
//     targets the configured package, and calls only the access check
//     for the requested access id, and
//   - a dry run of that transaction on the ledger succeeds.
//
// [Server] satisfies both session.Server and threshold.ShareServer, so
// an in-process deployment uses it directly. [Register] exposes it
// over gRPC and [Client] is the matching remote implementation.
package keyserver
