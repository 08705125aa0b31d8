// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package provision runs the capability handoff that provisions a new
// project: it mints a capability for a fresh ephemeral identity,
// authenticates that identity to the key servers, proves the
// capability to them, recovers the project's holder credential,
// finalizes the capability as the holder, and issues the project's
// sub-resources.
//
// The run is a linear state machine:
//
//	Init -> CapMinted -> SessionEstablished -> CredentialRecovered
//	     -> CapabilityFinalized -> SubResourcesIssued -> Done
//
// Any non-terminal state can move to Failed. Steps never run in
// parallel within a run; each depends on the ledger-visible effect of
// the one before it. Separate runs for different projects may share an
// Orchestrator.
//
// Ledger transactions are immutable once final, so the Orchestrator
// never compensates. A failure is returned as an *Error naming the
// stage, a Kind from the closed taxonomy, every digest already
// committed, and the capability id when one was minted. A capability
// that was minted but not finalized is "stranded": Error.Stranded
// reports it and the journal lists it for reconciliation.
//
// Key material lives only for the duration of a run. The ephemeral
// secret is handed back in Result on success, and in Error only when
// the request sets RetainEphemeralOnFailure. The recovered holder
// identity is always zeroed before Run returns.
package provision
