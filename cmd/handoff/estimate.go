// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/handoff/cmd/handoff/cli"
	"github.com/bureau-foundation/handoff/lib/budget"
	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ledger/rpcledger"
	"github.com/bureau-foundation/handoff/lib/ref"
)

type estimateParams struct {
	Project    string
	Capability string
	AsJSON     bool
}

func estimateCommand() *cli.Command {
	var params estimateParams
	return &cli.Command{
		Name:    "estimate",
		Summary: "Dry-run the provisioning transactions for gas budgets",
		Description: `Dry-run mint, finalize, and issue against a sample project and print
the gas budgets a provisioning run would use.

Transactions that cannot be dry-run fall back to fixed budgets and are
logged. --project and --capability default to
HANDOFF_BUDGET_SAMPLE_PROJECT and HANDOFF_BUDGET_SAMPLE_CAPABILITY.`,
		Usage: "handoff estimate [--project ID] [--capability ID] [--json]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("estimate", pflag.ContinueOnError)
			flags.StringVar(&params.Project, "project", "", "sample project object id")
			flags.StringVar(&params.Capability, "capability", "", "sample creation capability for the finalize dry run")
			flags.BoolVar(&params.AsJSON, "json", false, "print the budgets as JSON")
			return flags
		},
		Run: func(args []string) error {
			if err := rejectArgs(args); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.LedgerURL == "" {
				return errors.New("HANDOFF_LEDGER_URL is required")
			}
			client, err := rpcledger.New(rpcledger.Config{
				Endpoint: cfg.LedgerURL,
				Logger:   cli.NewCommandLogger(cfg.LogLevel),
			})
			if err != nil {
				return err
			}
			defer client.CloseIdleConnections()
			ctx, cancel := signalContext()
			defer cancel()
			return runEstimate(ctx, os.Stdout, client, cfg, params)
		},
	}
}

func runEstimate(ctx context.Context, w io.Writer, client ledger.Client, cfg *config.Config, params estimateParams) error {
	sample := budget.Sample{Project: cfg.BudgetSampleProject, Capability: cfg.BudgetSampleCapability}
	if params.Project != "" {
		project, err := ref.ParseObjectID(params.Project)
		if err != nil {
			return fmt.Errorf("--project: %w", err)
		}
		sample.Project = project
	}
	if params.Capability != "" {
		capability, err := ref.ParseObjectID(params.Capability)
		if err != nil {
			return fmt.Errorf("--capability: %w", err)
		}
		sample.Capability = capability
	}
	if sample.Project.IsZero() {
		return errors.New("no sample project: pass --project or set HANDOFF_BUDGET_SAMPLE_PROJECT")
	}

	estimator := budget.NewEstimator(budget.Config{
		Ledger:   client,
		Package:  cfg.Package,
		AdminCap: cfg.AdminCap,
		Registry: cfg.Registry,
		Logger:   cli.NewCommandLogger(cfg.LogLevel),
	})
	budgets := estimator.Estimate(ctx, sample)
	if params.AsJSON {
		return cli.WriteJSON(w, budgets)
	}
	fmt.Fprintf(w, "mint:     %d\nfinalize: %d\nissue:    %d\n",
		budgets.Mint, budgets.Finalize, budgets.Issue)
	return nil
}
