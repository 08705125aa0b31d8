// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
)

const (
	testPackage  = ref.ObjectID("0x2a")
	testAdminCap = ref.ObjectID("admin-cap")
	testProject  = ref.ObjectID("P1")
	testRegistry = ref.ObjectID("registry")
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ledger    *Ledger
	admin     *identity.Admin
	ephemeral *identity.Ephemeral
	holder    *identity.Holder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	memory := New(Config{Package: testPackage, Clock: clock.Fake(epoch)})

	adminSeed, _, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	admin, err := identity.LoadAdmin(adminSeed)
	if err != nil {
		t.Fatalf("LoadAdmin: %v", err)
	}
	holderSeed, _, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	holder, err := identity.RecoverHolder(holderSeed)
	if err != nil {
		t.Fatalf("RecoverHolder: %v", err)
	}
	ephemeral, err := identity.GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	t.Cleanup(func() {
		admin.Close()
		holder.Close()
		ephemeral.Close()
	})

	memory.Fund(admin.Address(), 1_000_000_000)
	memory.Fund(holder.Address(), 1_000_000_000)
	if err := memory.CreateAdminCap(testAdminCap, admin.Address()); err != nil {
		t.Fatalf("CreateAdminCap: %v", err)
	}
	if err := memory.CreateProject(testProject, "Acme", admin.Address(), holder.Address()); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := memory.CreateRegistry(testRegistry); err != nil {
		t.Fatalf("CreateRegistry: %v", err)
	}
	return &fixture{ledger: memory, admin: admin, ephemeral: ephemeral, holder: holder}
}

func (f *fixture) run(t *testing.T, tx *ledger.Transaction, signer ledger.Signer) *ledger.TransactionResult {
	t.Helper()
	signed, err := ledger.Sign(tx, signer)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ctx := context.Background()
	digest, err := f.ledger.Submit(ctx, signed)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	result, err := f.ledger.WaitForFinality(ctx, digest, ledger.WaitOptions{ShowEffects: true, ShowObjectChanges: true})
	if err != nil {
		t.Fatalf("WaitForFinality: %v", err)
	}
	return result
}

func (f *fixture) mint(t *testing.T) ref.ObjectID {
	t.Helper()
	builder := ledger.NewTransaction(f.admin.Address(), testPackage, 50_000_000)
	builder.SplitGas(20_000_000, f.ephemeral.Address())
	builder.Call(ledger.ModuleProject, ledger.FunctionMintCapability,
		ledger.Object(testAdminCap), ledger.Object(testProject), ledger.AddressArg(f.ephemeral.Address()))
	builder.Transfer(f.ephemeral.Address(), ledger.Object(testProject))
	result := f.run(t, builder.Build(), f.admin)
	if err := result.Err(); err != nil {
		t.Fatalf("mint: %v", err)
	}
	resolved, err := ledger.Schema{
		{Role: "capability", Change: ledger.ChangeCreated, Module: ledger.ModuleProject, Name: ledger.TypeCreationCap},
		{Role: "project", Change: ledger.ChangeTransferred, Module: ledger.ModuleProject, Name: ledger.TypeProject},
	}.Resolve(testPackage, result.ObjectChanges)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved["capability"].Owner != f.ephemeral.Address() {
		t.Fatalf("capability owner = %s, want ephemeral", resolved["capability"].Owner)
	}
	return resolved["capability"].ObjectID
}

func (f *fixture) finalize(t *testing.T, capability ref.ObjectID) *ledger.TransactionResult {
	t.Helper()
	builder := ledger.NewTransaction(f.holder.Address(), testPackage, 50_000_000)
	builder.Call(ledger.ModuleProject, ledger.FunctionFinalizeCapability,
		ledger.Object(capability), ledger.Object(testProject), ledger.AddressArg(f.holder.Address()))
	return f.run(t, builder.Build(), f.holder)
}

func TestMintFundsEphemeralAndTransfersProject(t *testing.T) {
	f := newFixture(t)
	f.mint(t)

	if got := f.ledger.Balance(f.ephemeral.Address()); got != 20_000_000 {
		t.Errorf("ephemeral balance = %d, want 20000000", got)
	}
	project, err := f.ledger.GetObject(context.Background(), testProject)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if project.Owner != f.ephemeral.Address() {
		t.Errorf("project owner = %s, want ephemeral", project.Owner)
	}
	if project.Version != 2 {
		t.Errorf("project version = %d, want 2", project.Version)
	}
}

func TestFinalizeTwiceAbortsWithConsumed(t *testing.T) {
	f := newFixture(t)
	capability := f.mint(t)

	if err := f.finalize(t, capability).Err(); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	project, _ := f.ledger.GetObject(context.Background(), testProject)
	if project.Owner != f.holder.Address() {
		t.Fatalf("project owner after finalize = %s, want holder", project.Owner)
	}

	second := f.finalize(t, capability)
	code, isAbort := ledger.AbortCode(second.Err())
	if !isAbort || code != ledger.AbortCapabilityConsumed {
		t.Fatalf("second finalize: err=%v, want abort %d", second.Err(), ledger.AbortCapabilityConsumed)
	}
}

func TestFinalizeByWrongIdentityIsNotAuthorized(t *testing.T) {
	f := newFixture(t)
	capability := f.mint(t)

	builder := ledger.NewTransaction(f.admin.Address(), testPackage, 50_000_000)
	builder.Call(ledger.ModuleProject, ledger.FunctionFinalizeCapability,
		ledger.Object(capability), ledger.Object(testProject), ledger.AddressArg(f.admin.Address()))
	result := f.run(t, builder.Build(), f.admin)
	if code, _ := ledger.AbortCode(result.Err()); code != ledger.AbortNotAuthorized {
		t.Fatalf("err = %v, want abort %d", result.Err(), ledger.AbortNotAuthorized)
	}
}

func TestAbortRollsBackEveryCommand(t *testing.T) {
	f := newFixture(t)
	capability := f.mint(t)
	if err := f.finalize(t, capability).Err(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	before := f.ledger.Balance(f.holder.Address())

	builder := ledger.NewTransaction(f.holder.Address(), testPackage, 50_000_000)
	builder.Call(ledger.ModuleRegistry, ledger.FunctionCreateSubname,
		ledger.Object(testRegistry), ledger.Object(testProject), ledger.Text("acme"),
		ledger.Number(uint64(epoch.Add(time.Hour).UnixMilli())))
	builder.Call(ledger.ModuleRegistry, ledger.FunctionAssignRoles,
		ledger.Object(testRegistry), ledger.Object(testProject),
		ledger.AddressList([]ref.Address{f.admin.Address()}), ledger.TextList(nil))
	result := f.run(t, builder.Build(), f.holder)

	if code, _ := ledger.AbortCode(result.Err()); code != ledger.AbortLengthMismatch {
		t.Fatalf("err = %v, want abort %d", result.Err(), ledger.AbortLengthMismatch)
	}
	if names := f.ledger.ObjectsOfType(ledger.ModuleRegistry, ledger.TypeSubName); len(names) != 0 {
		t.Fatalf("aborted transaction left %d sub-names", len(names))
	}
	if after := f.ledger.Balance(f.holder.Address()); after != before-result.GasUsed || result.GasUsed == 0 {
		t.Fatalf("balance %d -> %d with gas used %d", before, after, result.GasUsed)
	}
}

func TestCreateSubnameRules(t *testing.T) {
	f := newFixture(t)
	capability := f.mint(t)
	if err := f.finalize(t, capability).Err(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	future := uint64(epoch.Add(time.Hour).UnixMilli())

	create := func(name string, expiration uint64) error {
		builder := ledger.NewTransaction(f.holder.Address(), testPackage, 50_000_000)
		builder.Call(ledger.ModuleRegistry, ledger.FunctionCreateSubname,
			ledger.Object(testRegistry), ledger.Object(testProject), ledger.Text(name), ledger.Number(expiration))
		return f.run(t, builder.Build(), f.holder).Err()
	}

	if err := create("acme", future); err != nil {
		t.Fatalf("create acme: %v", err)
	}
	if err := create("founder.acme", future); err != nil {
		t.Fatalf("create founder.acme: %v", err)
	}
	tests := []struct {
		name       string
		expiration uint64
		want       uint64
	}{
		{"acme", future, ledger.AbortNameTaken},
		{"other", uint64(epoch.UnixMilli()), ledger.AbortExpirationInPast},
		{"Bad_Name", future, ledger.AbortInvalidName},
	}
	for _, test := range tests {
		code, _ := ledger.AbortCode(create(test.name, test.expiration))
		if code != test.want {
			t.Errorf("create %q: abort %d, want %d", test.name, code, test.want)
		}
	}
}

func TestSubmitRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("bad signature", func(t *testing.T) {
		signed, err := ledger.Sign(ledger.NewTransaction(f.admin.Address(), testPackage, 1_000).Build(), f.admin)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		signed.Signature[0] ^= 0xff
		if _, err := f.ledger.Submit(ctx, signed); !errors.Is(err, ledger.ErrRejected) {
			t.Fatalf("err = %v, want ErrRejected", err)
		}
	})

	t.Run("budget above balance", func(t *testing.T) {
		// The ephemeral identity has never been funded.
		signed, err := ledger.Sign(ledger.NewTransaction(f.ephemeral.Address(), testPackage, 1_000).Build(), f.ephemeral)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if _, err := f.ledger.Submit(ctx, signed); !errors.Is(err, ledger.ErrRejected) {
			t.Fatalf("err = %v, want ErrRejected", err)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		signed, err := ledger.Sign(ledger.NewTransaction(f.admin.Address(), testPackage, 10_000_000).Build(), f.admin)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if _, err := f.ledger.Submit(ctx, signed); err != nil {
			t.Fatalf("first Submit: %v", err)
		}
		if _, err := f.ledger.Submit(ctx, signed); !errors.Is(err, ledger.ErrRejected) {
			t.Fatalf("err = %v, want ErrRejected", err)
		}
	})
}

func TestGasBudgetExceeded(t *testing.T) {
	f := newFixture(t)
	builder := ledger.NewTransaction(f.admin.Address(), testPackage, 100)
	builder.Call(ledger.ModuleProject, ledger.FunctionMintCapability,
		ledger.Object(testAdminCap), ledger.Object(testProject), ledger.AddressArg(f.ephemeral.Address()))
	result := f.run(t, builder.Build(), f.admin)
	if result.Status.Success {
		t.Fatal("transaction over budget succeeded")
	}
	if result.GasUsed != 100 {
		t.Fatalf("GasUsed = %d, want the full budget", result.GasUsed)
	}
	if caps := f.ledger.ObjectsOfType(ledger.ModuleProject, ledger.TypeCreationCap); len(caps) != 0 {
		t.Fatal("transaction over budget created a capability")
	}
}

func TestDryRunDoesNotCommit(t *testing.T) {
	f := newFixture(t)
	builder := ledger.NewTransaction(f.admin.Address(), testPackage, 0)
	builder.Call(ledger.ModuleProject, ledger.FunctionMintCapability,
		ledger.Object(testAdminCap), ledger.Object(testProject), ledger.AddressArg(f.ephemeral.Address()))
	txBytes, err := builder.Build().Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	before := f.ledger.Balance(f.admin.Address())

	result, err := f.ledger.DryRun(context.Background(), txBytes, f.admin.Address())
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if !result.Status.Success || result.GasUsed == 0 {
		t.Fatalf("DryRun = %+v", result)
	}
	if f.ledger.Balance(f.admin.Address()) != before {
		t.Fatal("dry run charged gas")
	}
	if caps := f.ledger.ObjectsOfType(ledger.ModuleProject, ledger.TypeCreationCap); len(caps) != 0 {
		t.Fatal("dry run created a capability")
	}
}

func TestCheckAccess(t *testing.T) {
	f := newFixture(t)
	capability := f.mint(t)

	check := func(sender ref.Address, accessID string) ledger.ExecutionStatus {
		builder := ledger.NewTransaction(sender, testPackage, 0)
		builder.Call(ledger.ModuleProject, ledger.FunctionCheckAccess,
			ledger.Object(capability), ledger.Object(testProject), ledger.Text(accessID))
		txBytes, err := builder.Build().Bytes()
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		result, err := f.ledger.DryRun(context.Background(), txBytes, sender)
		if err != nil {
			t.Fatalf("DryRun: %v", err)
		}
		return result.Status
	}

	if status := check(f.ephemeral.Address(), string(testProject)); !status.Success {
		t.Fatalf("holder of the capability denied: %+v", status)
	}
	if status := check(f.admin.Address(), string(testProject)); status.AbortCode != ledger.AbortAccessDenied {
		t.Fatalf("non-holder status = %+v, want access denied", status)
	}
	if status := check(f.ephemeral.Address(), "P2"); status.AbortCode != ledger.AbortAccessDenied {
		t.Fatalf("wrong access id status = %+v, want access denied", status)
	}

	if err := f.finalize(t, capability).Err(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if status := check(f.ephemeral.Address(), string(testProject)); status.AbortCode != ledger.AbortAccessDenied {
		t.Fatalf("consumed capability status = %+v, want access denied", status)
	}
}

func TestWaitForFinalityUnknownDigest(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.ledger.WaitForFinality(ctx, ref.DigestOf([]byte("never submitted")), ledger.WaitOptions{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}
