// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"time"

	"github.com/bureau-foundation/handoff/lib/budget"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/secret"
	"github.com/bureau-foundation/handoff/lib/subresource"
)

// Request asks for one project to be provisioned.
type Request struct {
	Project    ref.ObjectID
	TargetName string

	// ExpirationMs is when the issued names expire, in Unix
	// milliseconds. Zero means one year from now.
	ExpirationMs uint64

	// Caller receives the founder sub-resource.
	Caller ref.Address

	// Participants may contain blank entries; they are filtered.
	Participants []subresource.Participant

	// GasBudgetOverride, when non-zero, is used as the gas budget of
	// every transaction instead of the configured estimate.
	GasBudgetOverride uint64

	// RetainEphemeralOnFailure returns the ephemeral secret in Error
	// when a run fails after minting, so the caller can act on the
	// stranded capability.
	RetainEphemeralOnFailure bool
}

// Digests are the transactions a successful run committed.
type Digests struct {
	Mint     ref.Digest `json:"mint"`
	Finalize ref.Digest `json:"finalize"`
	Issue    ref.Digest `json:"issue"`
}

// Result is the outcome of a run that reached Done.
type Result struct {
	RunID      string
	Project    ref.ObjectID
	Capability ref.ObjectID

	// HolderAddress owns the project after the run.
	HolderAddress ref.Address

	EphemeralAddress ref.Address

	// EphemeralSecret is the ephemeral identity in ed25519: text
	// form. The caller owns it and must close it, directly or through
	// Result.Close.
	EphemeralSecret *secret.Buffer

	Digests      Digests
	SubResources *subresource.Set
	Budgets      budget.Budgets
}

// TransactionDigests returns the committed digests in order.
func (r *Result) TransactionDigests() []ref.Digest {
	return []ref.Digest{r.Digests.Mint, r.Digests.Finalize, r.Digests.Issue}
}

// Close releases the ephemeral secret.
func (r *Result) Close() error {
	if r.EphemeralSecret == nil {
		return nil
	}
	return r.EphemeralSecret.Close()
}

// Report is what a run records about itself, success or failure. It
// never carries key material.
type Report struct {
	RunID      string
	Project    ref.ObjectID
	Caller     ref.Address
	TargetName string

	State State
	Stage Stage
	Kind  Kind

	Capability ref.ObjectID
	Ephemeral  ref.Address
	Holder     ref.Address
	Committed  []ref.Digest
	Failed     ref.Digest
	Unresolved ref.Digest

	SecretProduced bool
	Outcome        Outcome

	StartedAt  time.Time
	FinishedAt time.Time
}
