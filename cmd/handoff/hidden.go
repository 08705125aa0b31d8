// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/handoff/cmd/handoff/cli"
	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/secret"
	"github.com/bureau-foundation/handoff/lib/service"
)

func hiddenCommand() *cli.Command {
	return &cli.Command{
		Name:    "hidden",
		Summary: "Seal and reveal records gated by a project's capability",
		Description: `Seal a record so that only a holder of the project's creation capability
can read it, or reveal one with such a capability.

Records are compressed, threshold-encrypted to the key servers, and
stored in HANDOFF_BLOB_DIR under their content identifier.`,
		Subcommands: []*cli.Command{
			hiddenSealCommand(),
			hiddenRevealCommand(),
		},
	}
}

type hiddenSealParams struct {
	Project   string
	File      string
	MediaType string
}

func hiddenSealCommand() *cli.Command {
	var params hiddenSealParams
	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt a record for a project",
		Usage:   "handoff hidden seal --project ID --file FILE [--media-type TYPE]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			flags.StringVar(&params.Project, "project", "", "project object id (required)")
			flags.StringVar(&params.File, "file", "", `record to seal, "-" for stdin (required)`)
			flags.StringVar(&params.MediaType, "media-type", "", "media type (default: from the file extension)")
			return flags
		},
		Run: func(args []string) error {
			if err := rejectArgs(args); err != nil {
				return err
			}
			project, err := ref.ParseObjectID(params.Project)
			if err != nil {
				return fmt.Errorf("--project: %w", err)
			}
			data, mediaType, err := readRecord(params.File, params.MediaType)
			if err != nil {
				return err
			}
			return withDisclosure(func(ctx context.Context, disclosure *service.Disclosure) error {
				id, err := disclosure.Sealer.Seal(ctx, project, mediaType, data)
				if err != nil {
					return err
				}
				fmt.Println(id.String())
				return nil
			})
		},
	}
}

func readRecord(path, mediaType string) ([]byte, string, error) {
	if path == "" {
		return nil, "", errors.New("--file is required")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, "", err
	}
	if mediaType == "" {
		mediaType = mime.TypeByExtension(filepath.Ext(path))
	}
	return data, mediaType, nil
}

type hiddenRevealParams struct {
	CID        string
	Project    string
	Capability string
	SecretFile string
	Out        string
}

func hiddenRevealCommand() *cli.Command {
	var params hiddenRevealParams
	return &cli.Command{
		Name:    "reveal",
		Summary: "Decrypt a record with a capability the identity holds",
		Description: `Open a session as the identity in --secret-file, prove it holds
--capability for --project, and decrypt the record.

The identity is usually an ephemeral secret retained from a provisioning
run; --secret-file accepts its ed25519: form.`,
		Usage: "handoff hidden reveal --cid CID --project ID --capability ID --secret-file FILE [--out FILE]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("reveal", pflag.ContinueOnError)
			flags.StringVar(&params.CID, "cid", "", "content identifier printed by seal (required)")
			flags.StringVar(&params.Project, "project", "", "project object id (required)")
			flags.StringVar(&params.Capability, "capability", "", "creation capability held by the identity (required)")
			flags.StringVar(&params.SecretFile, "secret-file", "", `identity secret, "-" for stdin (required)`)
			flags.StringVar(&params.Out, "out", "", "write the record here instead of stdout")
			return flags
		},
		Run: func(args []string) error {
			if err := rejectArgs(args); err != nil {
				return err
			}
			id, err := cid.Decode(params.CID)
			if err != nil {
				return fmt.Errorf("--cid: %w", err)
			}
			project, err := ref.ParseObjectID(params.Project)
			if err != nil {
				return fmt.Errorf("--project: %w", err)
			}
			capabilityID, err := ref.ParseObjectID(params.Capability)
			if err != nil {
				return fmt.Errorf("--capability: %w", err)
			}
			if params.SecretFile == "" {
				return errors.New("--secret-file is required")
			}
			input, err := secret.ReadFromPath(params.SecretFile)
			if err != nil {
				return fmt.Errorf("reading identity: %w", err)
			}
			ephemeral, err := identity.LoadEphemeral(input)
			if err != nil {
				return err
			}
			defer ephemeral.Close()

			return withDisclosure(func(ctx context.Context, disclosure *service.Disclosure) error {
				token, err := disclosure.Sessions.Create(ctx, ephemeral, disclosure.Package)
				if err != nil {
					return err
				}
				defer disclosure.Sessions.Close(context.WithoutCancel(ctx), token)
				record, err := disclosure.Revealer.Reveal(ctx, id, token, capabilityID, project)
				if err != nil {
					return err
				}
				if params.Out == "" {
					_, err = os.Stdout.Write(record.Data)
					return err
				}
				return os.WriteFile(params.Out, record.Data, 0o600)
			})
		},
	}
}

func withDisclosure(fn func(context.Context, *service.Disclosure) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	disclosure, err := service.OpenDisclosure(cfg, service.Options{Logger: cli.NewCommandLogger(cfg.LogLevel)})
	if err != nil {
		return err
	}
	defer disclosure.Close()
	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, disclosure)
}
