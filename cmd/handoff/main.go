// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bureau-foundation/handoff/cmd/handoff/cli"
	"github.com/bureau-foundation/handoff/lib/process"
	"github.com/bureau-foundation/handoff/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}

func root() *cli.Command {
	return &cli.Command{
		Name:    "handoff",
		Summary: "Hand projects to their holders on the ledger",
		Description: `Hand projects to their holders on the ledger.

Every command that reaches the ledger or the key servers is configured
through HANDOFF_* environment variables. Run a command with --help for
the variables it needs.`,
		Subcommands: []*cli.Command{
			keygenCommand(),
			sealCredentialCommand(),
			estimateCommand(),
			provisionCommand(),
			journalCommand(),
			hiddenCommand(),
			devnetCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print build information",
		Run: func(args []string) error {
			if err := rejectArgs(args); err != nil {
				return err
			}
			fmt.Println(version.Full())
			return nil
		},
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return process.SignalContext(context.Background())
}

func rejectArgs(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	return nil
}
