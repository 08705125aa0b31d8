// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/handoff/lib/ref"
)

// Executor signs, submits, and waits for one transaction at a time,
// bounding each ledger call with its own timeout.
type Executor struct {
	Client Client

	// SubmitTimeout bounds Submit. Zero means only the caller's
	// context applies.
	SubmitTimeout time.Duration

	// FinalityTimeout bounds WaitForFinality.
	FinalityTimeout time.Duration
}

// Execute signs tx with signer, submits it, and waits for finality
// with object changes. The digest is returned whenever submission
// succeeded, even if waiting then failed: the transaction may still
// commit, and the error wraps ErrOutcomeUnknown. When the transaction
// is final but did not succeed, the result is returned together with
// its *ExecutionError.
func (e *Executor) Execute(ctx context.Context, tx *Transaction, signer Signer) (ref.Digest, *TransactionResult, error) {
	signed, err := Sign(tx, signer)
	if err != nil {
		return ref.Digest{}, nil, err
	}

	submitCtx, cancel := withTimeout(ctx, e.SubmitTimeout)
	digest, err := e.Client.Submit(submitCtx, signed)
	cancel()
	if err != nil {
		return ref.Digest{}, nil, fmt.Errorf("submitting transaction: %w", err)
	}

	waitCtx, cancel := withTimeout(ctx, e.FinalityTimeout)
	defer cancel()
	result, err := e.Client.WaitForFinality(waitCtx, digest, WaitOptions{ShowEffects: true, ShowObjectChanges: true})
	if err != nil {
		return digest, nil, fmt.Errorf("%w: waiting for transaction %s: %w", ErrOutcomeUnknown, digest, err)
	}
	return digest, result, result.Err()
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
