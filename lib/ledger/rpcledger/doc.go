// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpcledger speaks JSON-RPC 2.0 over HTTP to a ledger node.
//
// [Client] implements [ledger.Client]. One Client holds one pooled
// HTTP transport and is shared by every provisioning run in the
// process. Finality is observed by polling ledger_getTransaction with
// exponential backoff until the transaction appears or the context
// ends; there is no retry budget beyond the caller's deadline.
//
// [NewHandler] serves the same protocol in front of any ledger.Client,
// which is how the in-memory ledger is exposed as a development node.
//
// Methods:
//
//	ledger_submitTransaction  [SignedTransaction]        -> digest
//	ledger_getTransaction     [digest, WaitOptions]      -> TransactionResult
//	ledger_getObject          [objectId]                 -> ObjectState
//	ledger_dryRun             [txBytes (base64), sender] -> DryRunResult
package rpcledger
