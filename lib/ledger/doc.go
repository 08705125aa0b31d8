// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger defines the narrow view of the distributed ledger that
// provisioning depends on: the transaction model, signing, the [Client]
// interface, and the typed schema used to pick created objects out of a
// transaction's effects.
//
// A [Transaction] is a list of commands executed atomically against one
// contract package. Commands either move gas ([KindSplitGas]), invoke
// a "module::function" entry point ([KindCall]), or hand objects to an
// address ([KindTransfer]). Arguments may reference an existing object,
// the result of an earlier command, or a pure value.
//
// Transactions serialize to deterministic CBOR via lib/codec. The bytes
// are what gets signed, what the decryption network receives as a
// policy proof, and what the digest is computed over, so two encoders
// must never disagree on them.
//
// Implementations of [Client] live in subpackages: memledger executes
// the contract model in memory; rpcledger speaks JSON-RPC to a node.
package ledger
