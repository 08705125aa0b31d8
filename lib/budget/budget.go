// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"time"

	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// Safety margin applied to every dry-run figure: raw * 16 / 10,
// rounded up.
const (
	marginNumerator   = 16
	marginDenominator = 10
)

// sampleName is the target name issued by the representative issue
// transaction. It is never committed.
const sampleName = "budget-sample"

// DefaultTimeout bounds each dry run when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Budgets holds one gas budget per provisioning transaction.
type Budgets struct {
	Mint     uint64 `json:"mintBudget"`
	Finalize uint64 `json:"finalizeBudget"`
	Issue    uint64 `json:"issueBudget"`
}

// Fallback is used for any component whose dry run fails.
var Fallback = Budgets{
	Mint:     50_000_000,
	Finalize: 30_000_000,
	Issue:    80_000_000,
}

// Uniform returns Budgets with every component set to gas.
func Uniform(gas uint64) Budgets {
	return Budgets{Mint: gas, Finalize: gas, Issue: gas}
}

// Inflate applies the safety margin to a raw dry-run figure. Results
// that do not fit in a uint64 saturate at math.MaxUint64.
func Inflate(raw uint64) uint64 {
	hi, lo := bits.Mul64(raw, marginNumerator)
	lo, carry := bits.Add64(lo, marginDenominator-1, 0)
	hi += carry
	if hi >= marginDenominator {
		return math.MaxUint64
	}
	quotient, _ := bits.Div64(hi, lo, marginDenominator)
	return quotient
}

// Sample names the ledger objects dry runs execute against. Project
// must exist. Capability should be an unconsumed capability bound to
// Project; without one the finalize estimate falls back.
type Sample struct {
	Project    ref.ObjectID
	Capability ref.ObjectID
}

// Config configures an Estimator.
type Config struct {
	Ledger   ledger.Client
	Package  ref.ObjectID
	AdminCap ref.ObjectID
	Registry ref.ObjectID

	// Fallback replaces the package Fallback when non-zero.
	Fallback Budgets

	Timeout time.Duration
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Estimator produces Budgets.
type Estimator struct {
	ledger   ledger.Client
	pkg      ref.ObjectID
	adminCap ref.ObjectID
	registry ref.ObjectID
	fallback Budgets
	timeout  time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewEstimator returns an Estimator.
func NewEstimator(config Config) *Estimator {
	if config.Fallback == (Budgets{}) {
		config.Fallback = Fallback
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Estimator{
		ledger:   config.Ledger,
		pkg:      config.Package,
		adminCap: config.AdminCap,
		registry: config.Registry,
		fallback: config.Fallback,
		timeout:  config.Timeout,
		clock:    config.Clock,
		logger:   config.Logger,
	}
}

// Estimate dry-runs the mint, finalize, and issue transactions against
// sample and returns inflated budgets. It never fails.
func (e *Estimator) Estimate(ctx context.Context, sample Sample) Budgets {
	budgets, _ := e.estimate(ctx, sample)
	return budgets
}

// estimate is Estimate that also reports whether every component was
// measured rather than taken from the fallback.
func (e *Estimator) estimate(ctx context.Context, sample Sample) (Budgets, bool) {
	project, err := e.lookup(ctx, sample.Project)
	if err != nil {
		e.logger.Warn("budget estimation fell back for every transaction",
			"project", sample.Project,
			"error", err,
		)
		return e.fallback, false
	}
	owner := project.Owner
	var finalOwner ref.Address
	if raw := project.Fields[ledger.FieldFinalOwner]; raw != "" {
		finalOwner, _ = ref.ParseAddress(raw)
	}

	measured := true
	component := func(name string, fallback uint64, sender ref.Address, tx *ledger.Transaction) uint64 {
		budget, ok := e.component(ctx, name, fallback, sender, tx)
		measured = measured && ok
		return budget
	}
	budgets := Budgets{
		Mint:     component("mint", e.fallback.Mint, owner, e.mintTx(owner, finalOwner, sample.Project)),
		Finalize: component("finalize", e.fallback.Finalize, finalOwner, e.finalizeTx(finalOwner, sample)),
		Issue:    component("issue", e.fallback.Issue, owner, e.issueTx(owner, finalOwner, sample.Project)),
	}
	return budgets, measured
}

func (e *Estimator) lookup(ctx context.Context, project ref.ObjectID) (*ledger.ObjectState, error) {
	if project.IsZero() {
		return nil, errors.New("budget: no sample project")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.ledger.GetObject(ctx, project)
}

// component dry-runs one transaction and returns its inflated cost, or
// fallback and false.
func (e *Estimator) component(ctx context.Context, name string, fallback uint64, sender ref.Address, tx *ledger.Transaction) (uint64, bool) {
	raw, err := e.dryRun(ctx, sender, tx)
	if err != nil {
		e.logger.Warn("budget estimation fell back",
			"transaction", name,
			"fallback", fallback,
			"error", err,
		)
		return fallback, false
	}
	inflated := Inflate(raw)
	e.logger.Debug("budget estimated", "transaction", name, "dry_run", raw, "budget", inflated)
	return inflated, true
}

func (e *Estimator) dryRun(ctx context.Context, sender ref.Address, tx *ledger.Transaction) (uint64, error) {
	if sender.IsZero() {
		return 0, errors.New("budget: no sender for dry run")
	}
	txBytes, err := tx.Bytes()
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	result, err := e.ledger.DryRun(ctx, txBytes, sender)
	if err != nil {
		return 0, err
	}
	if !result.Status.Success {
		return 0, fmt.Errorf("budget: dry run failed: code %d in %s: %s",
			result.Status.AbortCode, result.Status.Location, result.Status.Error)
	}
	if result.GasUsed == 0 {
		return 0, errors.New("budget: dry run reported zero gas")
	}
	return result.GasUsed, nil
}

// The representative transactions mirror the ones provisioning builds,
// with placeholder recipients. A zero placeholder is replaced by the
// sender so the entry points' non-null checks pass.

func (e *Estimator) mintTx(sender, placeholder ref.Address, project ref.ObjectID) *ledger.Transaction {
	if placeholder.IsZero() {
		placeholder = sender
	}
	builder := ledger.NewTransaction(sender, e.pkg, 0)
	builder.SplitGas(1, placeholder)
	builder.Call(ledger.ModuleProject, ledger.FunctionMintCapability,
		ledger.Object(e.adminCap), ledger.Object(project), ledger.AddressArg(placeholder))
	builder.Transfer(placeholder, ledger.Object(project))
	return builder.Build()
}

func (e *Estimator) finalizeTx(sender ref.Address, sample Sample) *ledger.Transaction {
	builder := ledger.NewTransaction(sender, e.pkg, 0)
	builder.Call(ledger.ModuleProject, ledger.FunctionFinalizeCapability,
		ledger.Object(sample.Capability), ledger.Object(sample.Project), ledger.AddressArg(sender))
	return builder.Build()
}

func (e *Estimator) issueTx(sender, placeholder ref.Address, project ref.ObjectID) *ledger.Transaction {
	if placeholder.IsZero() {
		placeholder = sender
	}
	expiration := uint64(e.clock.Now().Add(365 * 24 * time.Hour).UnixMilli())
	builder := ledger.NewTransaction(sender, e.pkg, 0)
	primary := builder.Call(ledger.ModuleRegistry, ledger.FunctionCreateSubname,
		ledger.Object(e.registry), ledger.Object(project), ledger.Text(sampleName), ledger.Number(expiration))
	founder := builder.Call(ledger.ModuleRegistry, ledger.FunctionCreateSubname,
		ledger.Object(e.registry), ledger.Object(project), ledger.Text("founder."+sampleName), ledger.Number(expiration))
	builder.Call(ledger.ModuleRegistry, ledger.FunctionAssignRoles,
		ledger.Object(e.registry), ledger.Object(project),
		ledger.AddressList([]ref.Address{placeholder}), ledger.TextList([]string{"member"}))
	builder.Transfer(placeholder, primary)
	builder.Transfer(sender, founder)
	return builder.Build()
}
