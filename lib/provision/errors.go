// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/handoff/lib/capability"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/secret"
	"github.com/bureau-foundation/handoff/lib/session"
	"github.com/bureau-foundation/handoff/lib/subresource"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

// Stage names the step a run failed in.
type Stage string

const (
	StageValidate Stage = "validate"
	StageMint     Stage = "mint"
	StageSession  Stage = "session"
	StagePolicy   Stage = "policy"
	StageDecrypt  Stage = "decrypt"
	StageFinalize Stage = "finalize"
	StageIssue    Stage = "issue"
)

// Stages lists every stage after validation in execution order.
var Stages = []Stage{StageMint, StageSession, StagePolicy, StageDecrypt, StageFinalize, StageIssue}

// Kind classifies a failure.
type Kind string

const (
	KindInvalidInput             Kind = "InvalidInput"
	KindMintFailed               Kind = "MintFailed"
	KindCapabilityNotFound       Kind = "CapabilityNotFound"
	KindUnexpectedLedgerShape    Kind = "UnexpectedLedgerShape"
	KindSessionRejected          Kind = "SessionRejected"
	KindTimeout                  Kind = "Timeout"
	KindCanceled                 Kind = "Canceled"
	KindInvalidPolicyInput       Kind = "InvalidPolicyInput"
	KindAccessDenied             Kind = "AccessDenied"
	KindQuorumUnreachable        Kind = "QuorumUnreachable"
	KindDecryptionMalformed      Kind = "DecryptionMalformed"
	KindCapabilityConsumed       Kind = "CapabilityConsumed"
	KindTransferRejected         Kind = "TransferRejected"
	KindParticipantArrayMismatch Kind = "ParticipantArrayMismatch"
	KindIssueRejected            Kind = "IssueRejected"
	KindInternal                 Kind = "Internal"
)

// ErrInvalidInput is wrapped by every validation failure.
var ErrInvalidInput = errors.New("provision: invalid input")

// Outcome summarizes what a failed run left on the ledger.
type Outcome string

const (
	// OutcomeDone means the run completed.
	OutcomeDone Outcome = "done"

	// OutcomeClean means nothing was committed. The request can be
	// retried as is.
	OutcomeClean Outcome = "clean"

	// OutcomeStranded means a capability was minted but never
	// finalized.
	OutcomeStranded Outcome = "stranded"

	// OutcomeTransferred means the project reached its holder but
	// sub-resources were not issued.
	OutcomeTransferred Outcome = "transferred"

	// OutcomeUnknown means a transaction of the failing stage was
	// submitted and its effects were never established. The ledger
	// must be inspected before anything is retried.
	OutcomeUnknown Outcome = "unknown"
)

// Error is a stage-tagged provisioning failure.
type Error struct {
	RunID   string
	Project ref.ObjectID
	Stage   Stage
	Kind    Kind

	// State is the last state the run reached.
	State State

	// Capability is set once the mint committed.
	Capability ref.ObjectID

	// Committed lists the digests of transactions that are final and
	// succeeded, in order.
	Committed []ref.Digest

	// Failed is the digest of a transaction of the failing stage that
	// is final and did not succeed.
	Failed ref.Digest

	// Unresolved is the digest of a transaction of the failing stage
	// whose effects are not known: finality was never observed, or it
	// succeeded with object changes the run could not read. In the
	// second case it is also in Committed.
	Unresolved ref.Digest

	// SecretProduced is true when the holder credential was decrypted.
	// The run has already zeroed it; callers must warn that it existed.
	SecretProduced bool

	// OwnershipTransferred is true once finalize committed.
	OwnershipTransferred bool

	EphemeralAddress ref.Address

	// EphemeralSecret is set only when the request asked for it. The
	// caller owns it and must close it.
	EphemeralSecret *secret.Buffer

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provision %s: %s failed (%s)", e.Project, e.Stage, e.Kind)
	if !e.Capability.IsZero() {
		fmt.Fprintf(&b, ", capability %s", e.Capability)
	}
	switch {
	case !e.Unresolved.IsZero():
		fmt.Fprintf(&b, ", transaction %s unresolved", e.Unresolved)
	case e.Stranded():
		b.WriteString(" is stranded")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Stranded reports whether a capability was minted and not finalized.
func (e *Error) Stranded() bool {
	return !e.Capability.IsZero() && !e.OwnershipTransferred
}

// Outcome classifies the ledger state the failure left behind.
func (e *Error) Outcome() Outcome {
	switch {
	case !e.Unresolved.IsZero():
		return OutcomeUnknown
	case e.OwnershipTransferred:
		return OutcomeTransferred
	case e.Stranded():
		return OutcomeStranded
	}
	return OutcomeClean
}

// KindOf classifies any error returned by this package or its
// dependencies. nil yields "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var provisionErr *Error
	if errors.As(err, &provisionErr) {
		return provisionErr.Kind
	}
	return classify(err)
}

// classify maps sentinels from every layer onto the taxonomy. Context
// errors are checked first: a timeout inside any stage is a Timeout,
// and so is a finality wait that gave up for any other reason.
func classify(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ledger.ErrOutcomeUnknown):
		return KindTimeout
	case errors.Is(err, subresource.ErrParticipantArrayMismatch):
		return KindParticipantArrayMismatch
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, subresource.ErrInvalidName),
		errors.Is(err, subresource.ErrInvalidExpiration):
		return KindInvalidInput
	case errors.Is(err, capability.ErrCapabilityNotFound):
		return KindCapabilityNotFound
	case errors.Is(err, capability.ErrMintFailed):
		return KindMintFailed
	case errors.Is(err, capability.ErrInvalidPolicyInput):
		return KindInvalidPolicyInput
	case errors.Is(err, capability.ErrCapabilityConsumed):
		return KindCapabilityConsumed
	case errors.Is(err, capability.ErrTransferRejected):
		return KindTransferRejected
	case errors.Is(err, subresource.ErrIssueRejected):
		return KindIssueRejected
	case errors.Is(err, session.ErrRejected):
		return KindSessionRejected
	case errors.Is(err, threshold.ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, threshold.ErrQuorumUnreachable):
		return KindQuorumUnreachable
	case errors.Is(err, threshold.ErrDecryptionMalformed):
		return KindDecryptionMalformed
	case errors.Is(err, ledger.ErrUnexpectedLedgerShape):
		return KindUnexpectedLedgerShape
	}
	return KindInternal
}

// stageKinds is the fallback kind for errors a stage produces that
// carry no recognized sentinel.
var stageKinds = map[Stage]Kind{
	StageMint:     KindMintFailed,
	StageSession:  KindSessionRejected,
	StagePolicy:   KindInvalidPolicyInput,
	StageDecrypt:  KindDecryptionMalformed,
	StageFinalize: KindTransferRejected,
	StageIssue:    KindIssueRejected,
}

func kindForStage(stage Stage, err error) Kind {
	if kind := classify(err); kind != KindInternal {
		return kind
	}
	if kind, ok := stageKinds[stage]; ok {
		return kind
	}
	return KindInternal
}
