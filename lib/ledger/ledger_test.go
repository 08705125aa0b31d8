// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ref"
)

const testPackage = ref.ObjectID("0x2a")

func TestTransactionBytesRoundTrip(t *testing.T) {
	ephemeral, err := identity.GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	defer ephemeral.Close()

	builder := NewTransaction(ephemeral.Address(), testPackage, 1000)
	builder.SplitGas(10, ephemeral.Address())
	capability := builder.Call(ModuleProject, FunctionMintCapability, Object("admin"), Object("P1"), AddressArg(ephemeral.Address()))
	builder.Transfer(ephemeral.Address(), capability)
	tx := builder.Build()

	if capability.Kind != ArgResult || capability.Result != 2 {
		t.Fatalf("Call result argument = %+v, want Result(2)", capability)
	}

	data, err := tx.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	decoded, err := DecodeTransaction(data)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	again, err := decoded.Bytes()
	if err != nil {
		t.Fatalf("Bytes after decode: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Fatal("transaction bytes are not stable across decode/encode")
	}
	if decoded.Commands[1].Target != "project::mint_capability" {
		t.Errorf("Target = %q", decoded.Commands[1].Target)
	}
}

func TestSignRequiresSender(t *testing.T) {
	sender, err := identity.GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	defer sender.Close()
	other, err := identity.GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	defer other.Close()

	tx := NewTransaction(sender.Address(), testPackage, 1).Build()
	if _, err := Sign(tx, other); !errors.Is(err, ErrSenderMismatch) {
		t.Fatalf("Sign with wrong identity: err=%v, want ErrSenderMismatch", err)
	}

	signed, err := Sign(tx, sender)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !identity.VerifyTransaction(signed.PublicKey, signed.TxBytes, signed.Signature) {
		t.Fatal("signature does not verify")
	}
	if signed.Digest() != ref.DigestOf(signed.TxBytes) {
		t.Fatal("Digest does not match DigestOf(TxBytes)")
	}
}

func TestNoncesDistinguishDigests(t *testing.T) {
	sender := ref.MustParseAddress("0x" + "11111111111111111111111111111111" + "11111111111111111111111111111111")
	first, _ := NewTransaction(sender, testPackage, 1).Build().Bytes()
	second, _ := NewTransaction(sender, testPackage, 1).Build().Bytes()
	if ref.DigestOf(first) == ref.DigestOf(second) {
		t.Fatal("identical transactions share a digest")
	}
}

func TestSchemaResolve(t *testing.T) {
	schema := Schema{
		{Role: "capability", Change: ChangeCreated, Module: ModuleProject, Name: TypeCreationCap},
	}
	capType := ref.ObjectType{Package: testPackage, Module: ModuleProject, Name: TypeCreationCap}
	foreign := ref.ObjectType{Package: "0x99", Module: ModuleProject, Name: TypeCreationCap}

	t.Run("match", func(t *testing.T) {
		resolved, err := schema.Resolve(testPackage, []ObjectChange{
			{Kind: ChangeMutated, ObjectID: "P1", Type: ref.ObjectType{Package: testPackage, Module: ModuleProject, Name: TypeProject}},
			{Kind: ChangeCreated, ObjectID: "cap", Type: capType},
			{Kind: ChangeCreated, ObjectID: "other", Type: foreign},
		})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if resolved["capability"].ObjectID != "cap" {
			t.Fatalf("capability = %q, want cap", resolved["capability"].ObjectID)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := schema.Resolve(testPackage, []ObjectChange{
			{Kind: ChangeCreated, ObjectID: "other", Type: foreign},
			{Kind: ChangeMutated, ObjectID: "cap", Type: capType},
		})
		if !errors.Is(err, ErrUnexpectedLedgerShape) {
			t.Fatalf("err = %v, want ErrUnexpectedLedgerShape", err)
		}
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, err := schema.Resolve(testPackage, []ObjectChange{
			{Kind: ChangeCreated, ObjectID: "a", Type: capType},
			{Kind: ChangeCreated, ObjectID: "b", Type: capType},
		})
		if !errors.Is(err, ErrUnexpectedLedgerShape) {
			t.Fatalf("err = %v, want ErrUnexpectedLedgerShape", err)
		}
	})
}

func TestResultErr(t *testing.T) {
	ok := &TransactionResult{Status: ExecutionStatus{Success: true}}
	if ok.Err() != nil {
		t.Fatalf("Err() on success = %v", ok.Err())
	}

	aborted := &TransactionResult{Status: ExecutionStatus{
		AbortCode: AbortCapabilityConsumed,
		Location:  "project::finalize_capability",
		Error:     "capability consumed",
	}}
	code, isAbort := AbortCode(aborted.Err())
	if !isAbort || code != AbortCapabilityConsumed {
		t.Fatalf("AbortCode = %d, %v", code, isAbort)
	}

	failed := &TransactionResult{Status: ExecutionStatus{Error: "out of gas"}}
	if _, isAbort := AbortCode(failed.Err()); isAbort {
		t.Fatal("non-abort failure reported an abort code")
	}
}
