// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/handoff/lib/ref"
)

// Client is the consumed ledger interface. Implementations must be safe
// for concurrent use: one Client is shared by every provisioning run in
// a process.
type Client interface {
	// Submit hands a signed transaction to the ledger and returns its
	// digest. A nil error means the ledger accepted the transaction for
	// execution, not that it succeeded; use WaitForFinality for that.
	// Returns an error wrapping ErrRejected when the ledger refuses the
	// transaction outright (bad signature, unknown sender, gas budget
	// above balance).
	Submit(ctx context.Context, tx *SignedTransaction) (ref.Digest, error)

	// WaitForFinality blocks until the transaction with digest is final
	// or ctx is done. A transaction that executed and aborted is final:
	// its result has Status.Success == false and a nil error.
	WaitForFinality(ctx context.Context, digest ref.Digest, options WaitOptions) (*TransactionResult, error)

	// GetObject returns the current state of an object, or an error
	// wrapping ErrObjectNotFound.
	GetObject(ctx context.Context, id ref.ObjectID) (*ObjectState, error)

	// DryRun executes serialized transaction bytes as sender without
	// committing any effect and reports metered gas.
	DryRun(ctx context.Context, txBytes []byte, sender ref.Address) (*DryRunResult, error)
}

// WaitOptions selects which parts of the effects to return.
type WaitOptions struct {
	ShowEffects       bool `json:"showEffects"`
	ShowObjectChanges bool `json:"showObjectChanges"`
}

var (
	// ErrRejected is returned by Submit when the ledger refuses a
	// transaction before execution.
	ErrRejected = errors.New("ledger: transaction rejected")

	// ErrObjectNotFound is returned by GetObject for unknown ids.
	ErrObjectNotFound = errors.New("ledger: object not found")

	// ErrUnexpectedLedgerShape is returned when a transaction's effects
	// do not match the declared created-object schema.
	ErrUnexpectedLedgerShape = errors.New("ledger: unexpected ledger shape")

	// ErrOutcomeUnknown is wrapped by Executor when a submitted
	// transaction was never seen final. It may still commit.
	ErrOutcomeUnknown = errors.New("ledger: transaction outcome unknown")
)

// ExecutionStatus is the outcome of executing a transaction.
type ExecutionStatus struct {
	Success bool `json:"success"`

	// AbortCode is the contract abort code when Success is false and the
	// failure came from an entry point. Zero for non-abort failures.
	AbortCode uint64 `json:"abortCode,omitempty"`

	// Location is the "module::function" that aborted.
	Location string `json:"location,omitempty"`

	Error string `json:"error,omitempty"`
}

// ChangeKind classifies an object change.
type ChangeKind string

const (
	ChangeCreated     ChangeKind = "created"
	ChangeMutated     ChangeKind = "mutated"
	ChangeTransferred ChangeKind = "transferred"
	ChangeDeleted     ChangeKind = "deleted"
)

// ObjectChange is one entry of a transaction's object-change list.
type ObjectChange struct {
	Kind     ChangeKind     `json:"kind"`
	ObjectID ref.ObjectID   `json:"objectId"`
	Type     ref.ObjectType `json:"objectType"`
	Owner    ref.Address    `json:"owner"`
	Version  uint64         `json:"version"`
}

// TransactionResult is the final outcome of a transaction.
type TransactionResult struct {
	Digest        ref.Digest      `json:"digest"`
	Status        ExecutionStatus `json:"status"`
	GasUsed       uint64          `json:"gasUsed"`
	Checkpoint    uint64          `json:"checkpoint"`
	ObjectChanges []ObjectChange  `json:"objectChanges,omitempty"`
}

// ExecutionError describes a final transaction that did not succeed.
type ExecutionError struct {
	Digest    ref.Digest
	AbortCode uint64
	Location  string
	Message   string
}

func (e *ExecutionError) Error() string {
	if e.AbortCode != 0 {
		return fmt.Sprintf("ledger: transaction %s aborted in %s with code %d: %s", e.Digest, e.Location, e.AbortCode, e.Message)
	}
	return fmt.Sprintf("ledger: transaction %s failed: %s", e.Digest, e.Message)
}

// Err returns an *ExecutionError when the transaction did not succeed,
// nil otherwise.
func (r *TransactionResult) Err() error {
	if r.Status.Success {
		return nil
	}
	return &ExecutionError{
		Digest:    r.Digest,
		AbortCode: r.Status.AbortCode,
		Location:  r.Status.Location,
		Message:   r.Status.Error,
	}
}

// AbortCode extracts the contract abort code from err, if any.
func AbortCode(err error) (uint64, bool) {
	var execution *ExecutionError
	if errors.As(err, &execution) && execution.AbortCode != 0 {
		return execution.AbortCode, true
	}
	return 0, false
}

// ObjectState is the current state of a ledger object.
type ObjectState struct {
	ID      ref.ObjectID      `json:"objectId"`
	Type    ref.ObjectType    `json:"objectType"`
	Owner   ref.Address       `json:"owner"`
	Version uint64            `json:"version"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// DryRunResult is the outcome of a non-committing execution.
type DryRunResult struct {
	Status  ExecutionStatus `json:"status"`
	GasUsed uint64          `json:"gasUsed"`
}
