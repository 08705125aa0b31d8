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
	"github.com/bureau-foundation/handoff/lib/blobstore"
	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/secret"
)

type sealParams struct {
	Project  string
	SeedFile string
	AsJSON   bool
}

type sealOutput struct {
	Project    ref.ObjectID `json:"project"`
	Holder     string       `json:"holder"`
	Credential string       `json:"credential"`
	Threshold  int          `json:"threshold"`
}

func sealCredentialCommand() *cli.Command {
	var params sealParams
	return &cli.Command{
		Name:    "seal-credential",
		Summary: "Encrypt a holder credential for the key servers",
		Description: `Split a holder seed across the configured key servers and store the
encrypted credential in HANDOFF_BLOB_DIR.

The printed content identifier goes into the project's credential field
on the ledger. Any HANDOFF_THRESHOLD weight of servers can later
release it to a provisioning run. The seed is read from --seed-file
("-" for stdin) or prompted for on the terminal.`,
		Usage: "handoff seal-credential --project ID [--seed-file FILE] [--json]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("seal-credential", pflag.ContinueOnError)
			flags.StringVar(&params.Project, "project", "", "project object id (required)")
			flags.StringVar(&params.SeedFile, "seed-file", "", `holder seed file, "-" for stdin`)
			flags.BoolVar(&params.AsJSON, "json", false, "print the result as JSON")
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
			seed, err := readSeed(params.SeedFile)
			if err != nil {
				return err
			}
			defer seed.Close()
			ctx, cancel := signalContext()
			defer cancel()
			return runSealCredential(ctx, os.Stdout, cfg, seed, params)
		},
	}
}

func readSeed(path string) (*secret.Buffer, error) {
	var (
		input *secret.Buffer
		err   error
	)
	if path == "" {
		input, err = secret.ReadFromTerminal(int(os.Stdin.Fd()), "holder seed: ", os.Stderr)
	} else {
		input, err = secret.ReadFromPath(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading holder seed: %w", err)
	}
	return identity.ParseSeed(input)
}

// runSealCredential borrows seed.
func runSealCredential(ctx context.Context, w io.Writer, cfg *config.Config, seed *secret.Buffer, params sealParams) error {
	project, err := ref.ParseObjectID(params.Project)
	if err != nil {
		return fmt.Errorf("--project: %w", err)
	}
	if cfg.BlobDir == "" {
		return errors.New("HANDOFF_BLOB_DIR is required")
	}
	servers, err := cfg.ThresholdServers()
	if err != nil {
		return err
	}
	holder, err := identity.AddressOfSeed(seed)
	if err != nil {
		return err
	}
	store, err := blobstore.OpenDir(cfg.BlobDir)
	if err != nil {
		return err
	}
	credential, err := provision.SealCredential(ctx, store, servers, cfg.Threshold, project, seed)
	if err != nil {
		return err
	}

	output := sealOutput{
		Project:    project,
		Holder:     holder.String(),
		Credential: credential.String(),
		Threshold:  cfg.Threshold,
	}
	if params.AsJSON {
		return cli.WriteJSON(w, output)
	}
	fmt.Fprintf(w, "credential: %s\nholder:     %s\n", output.Credential, output.Holder)
	return nil
}
