// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/handoff/cmd/handoff/cli"
	"github.com/bureau-foundation/handoff/lib/api"
	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/service"
)

// exitProvisionFailed is returned after a failure report is printed.
const exitProvisionFailed = 2

type provisionParams struct {
	RequestFile     string
	RetainEphemeral bool
	AsJSON          bool
}

func provisionCommand() *cli.Command {
	var params provisionParams
	return &cli.Command{
		Name:    "provision",
		Summary: "Run one provisioning request in process",
		Description: `Mint a creation capability, transfer the project to its holder, and
issue its sub-resources, exactly as handoff-provisioner does for an API
request.

The request file is YAML (.yaml, .yml) or JSON with comments and has
the same fields as the API body. On success the ephemeral secret is
printed; store it, it is not kept anywhere else. On failure the report
says what the run committed, and the command exits with status 2.`,
		Usage: "handoff provision --request FILE [--retain-ephemeral] [--json]",
		Examples: []cli.Example{
			{Command: "handoff provision --request acme.yaml"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("provision", pflag.ContinueOnError)
			flags.StringVar(&params.RequestFile, "request", "", "request file (required)")
			flags.BoolVar(&params.RetainEphemeral, "retain-ephemeral", false,
				"print the ephemeral secret even when the run fails after minting")
			flags.BoolVar(&params.AsJSON, "json", false, "print the report as JSON")
			return flags
		},
		Run: func(args []string) error {
			if err := rejectArgs(args); err != nil {
				return err
			}
			if params.RequestFile == "" {
				return errors.New("--request is required")
			}
			file, err := config.LoadRequest(params.RequestFile)
			if err != nil {
				return err
			}
			if params.RetainEphemeral {
				file.RetainEphemeralOnFailure = true
			}
			request, err := file.Request()
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			provisioner, err := service.Bootstrap(ctx, cfg, service.Options{
				Logger: cli.NewCommandLogger(cfg.LogLevel),
			})
			if err != nil {
				return err
			}
			defer provisioner.Close()
			return runProvision(ctx, os.Stdout, provisioner.Orchestrator, request, params.AsJSON)
		},
	}
}

func runProvision(ctx context.Context, w io.Writer, runner api.Runner, request provision.Request, asJSON bool) error {
	result, err := runner.Run(ctx, request)
	if err != nil {
		var failure *provision.Error
		if !errors.As(err, &failure) {
			return err
		}
		response := api.FailureResponse(failure)
		if asJSON {
			if err := cli.WriteJSON(w, response); err != nil {
				return err
			}
		} else {
			printFailure(w, response)
		}
		return &cli.ExitError{Code: exitProvisionFailed}
	}
	defer result.Close()

	response := api.SuccessResponse(result)
	if asJSON {
		return cli.WriteJSON(w, response)
	}
	printSuccess(w, response)
	return nil
}

func printSuccess(w io.Writer, response api.ProvisionResponse) {
	fmt.Fprintf(w, "provisioned %s (run %s)\n", response.ProjectID, response.RunID)
	fmt.Fprintf(w, "  holder:      %s\n", response.HolderAddress)
	fmt.Fprintf(w, "  capability:  %s\n", response.CapabilityID)
	fmt.Fprintf(w, "  ephemeral:   %s\n", response.EphemeralAddress)
	fmt.Fprintf(w, "  secret:      %s\n", response.EphemeralSecret)
	fmt.Fprintf(w, "  digests:     %s\n", joinStrings(response.TransactionDigests))
	if set := response.SubResources; set != nil {
		fmt.Fprintf(w, "  names:       %s, %s\n", set.PrimaryName, set.FounderName)
		for _, skipped := range set.Skipped {
			fmt.Fprintf(w, "  skipped:     %q (%s)\n", skipped.Address, skipped.Role)
		}
	}
}

func printFailure(w io.Writer, response api.ProvisionResponse) {
	fmt.Fprintf(w, "provisioning %s failed at %s (%s)\n", response.ProjectID, response.Stage, response.ErrorKind)
	fmt.Fprintf(w, "  run:         %s\n", response.RunID)
	fmt.Fprintf(w, "  outcome:     %s\n", response.Outcome)
	fmt.Fprintf(w, "  error:       %s\n", response.Message)
	if len(response.CommittedDigests) > 0 {
		fmt.Fprintf(w, "  committed:   %s\n", joinStrings(response.CommittedDigests))
	}
	if response.FailedDigest != "" {
		fmt.Fprintf(w, "  failed:      %s\n", response.FailedDigest)
	}
	if response.UnresolvedDigest != "" {
		fmt.Fprintf(w, "  unresolved:  %s\n", response.UnresolvedDigest)
	}
	if response.EphemeralAddress != "" {
		fmt.Fprintf(w, "  ephemeral:   %s\n", response.EphemeralAddress)
	}
	if response.EphemeralSecret != "" {
		fmt.Fprintf(w, "  secret:      %s\n", response.EphemeralSecret)
	}
	if response.Stranded {
		fmt.Fprintf(w, "warning: capability %s is stranded and the project is held by the ephemeral address\n",
			response.CapabilityID)
	}
	if response.Outcome == provision.OutcomeUnknown {
		fmt.Fprintf(w, "warning: transaction %s may have committed; inspect the ledger before retrying\n",
			response.UnresolvedDigest)
	}
	if response.SecretProduced {
		fmt.Fprintln(w, "warning: the holder credential was decrypted during this run")
	}
}

func joinStrings[T fmt.Stringer](values []T) string {
	parts := make([]string, len(values))
	for index, value := range values {
		parts[index] = value.String()
	}
	return strings.Join(parts, ", ")
}
