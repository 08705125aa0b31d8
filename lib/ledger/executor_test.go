// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ledger/memledger"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// stalledLedger accepts every submission and never finalizes.
type stalledLedger struct{ ledger.Client }

func (*stalledLedger) Submit(context.Context, *ledger.SignedTransaction) (ref.Digest, error) {
	return ref.Digest{1}, nil
}

func (*stalledLedger) WaitForFinality(ctx context.Context, _ ref.Digest, _ ledger.WaitOptions) (*ledger.TransactionResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExecutorReportsAbort(t *testing.T) {
	memory := memledger.New(memledger.Config{Package: "0x2a"})
	admin, err := identity.GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	defer admin.Close()
	memory.Fund(admin.Address(), 1_000_000_000)

	executor := &ledger.Executor{Client: memory, SubmitTimeout: time.Second, FinalityTimeout: time.Second}
	builder := ledger.NewTransaction(admin.Address(), "0x2a", 50_000_000)
	builder.Call(ledger.ModuleProject, ledger.FunctionFinalizeCapability,
		ledger.Object("missing"), ledger.Object("missing"), ledger.AddressArg(admin.Address()))
	digest, result, err := executor.Execute(context.Background(), builder.Build(), admin)
	if digest.IsZero() || result == nil {
		t.Fatalf("final failed transaction returned digest=%v result=%v", digest, result)
	}
	var execution *ledger.ExecutionError
	if !errors.As(err, &execution) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
}

func TestExecutorRejection(t *testing.T) {
	memory := memledger.New(memledger.Config{Package: "0x2a"})
	broke, err := identity.GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	defer broke.Close()

	executor := &ledger.Executor{Client: memory}
	builder := ledger.NewTransaction(broke.Address(), "0x2a", 50_000_000)
	builder.Transfer(broke.Address(), ledger.Object("anything"))
	digest, _, err := executor.Execute(context.Background(), builder.Build(), broke)
	if !errors.Is(err, ledger.ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", err)
	}
	if !digest.IsZero() {
		t.Fatal("rejected transaction returned a digest")
	}
}

func TestExecutorFinalityTimeoutKeepsDigest(t *testing.T) {
	executor := &ledger.Executor{Client: &stalledLedger{}, FinalityTimeout: 10 * time.Millisecond}
	signer, err := identity.GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	defer signer.Close()
	builder := ledger.NewTransaction(signer.Address(), "0x2a", 1)
	builder.Transfer(signer.Address(), ledger.Object("x"))
	digest, result, err := executor.Execute(context.Background(), builder.Build(), signer)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ledger.ErrOutcomeUnknown) {
		t.Fatalf("error = %v, want DeadlineExceeded and ErrOutcomeUnknown", err)
	}
	if digest != (ref.Digest{1}) || result != nil {
		t.Fatalf("digest=%v result=%v, want submitted digest and no result", digest, result)
	}
}
