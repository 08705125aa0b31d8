// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/handoff/cmd/handoff/cli"
	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/journal"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// journalRun is the JSON form of a journaled run.
type journalRun struct {
	RunID          string            `json:"runId"`
	Project        ref.ObjectID      `json:"project"`
	Caller         string            `json:"caller"`
	TargetName     string            `json:"targetName"`
	Outcome        provision.Outcome `json:"outcome"`
	State          string            `json:"state"`
	Stage          provision.Stage   `json:"stage,omitempty"`
	Kind           provision.Kind    `json:"kind,omitempty"`
	Capability     ref.ObjectID      `json:"capability,omitempty"`
	Ephemeral      string            `json:"ephemeral,omitempty"`
	Committed      []ref.Digest      `json:"committed,omitempty"`
	Unresolved     string            `json:"unresolved,omitempty"`
	SecretProduced bool              `json:"secretProduced,omitempty"`
	StartedAt      time.Time         `json:"startedAt"`
	FinishedAt     time.Time         `json:"finishedAt"`
}

func journalCommand() *cli.Command {
	return &cli.Command{
		Name:    "journal",
		Summary: "Inspect recorded provisioning runs",
		Description: `Inspect the run journal at HANDOFF_JOURNAL_PATH.

Every run the provisioner finishes, successful or not, is recorded with
the transactions it committed. Stranded runs minted a capability that
was never finalized; the project is still held by the run's ephemeral
address. Runs with an unknown outcome submitted a transaction that was
never seen final and are listed with the stranded runs.`,
		Subcommands: []*cli.Command{
			journalStrandedCommand(),
			journalListCommand(),
		},
	}
}

func journalStrandedCommand() *cli.Command {
	var asJSON bool
	return &cli.Command{
		Name:    "stranded",
		Summary: "List runs that left or may have left an unfinalized capability",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("stranded", pflag.ContinueOnError)
			flags.BoolVar(&asJSON, "json", false, "print runs as JSON")
			return flags
		},
		Run: func(args []string) error {
			if err := rejectArgs(args); err != nil {
				return err
			}
			return withJournal(func(ctx context.Context, runs *journal.Journal) error {
				reports, err := runs.Stranded(ctx)
				if err != nil {
					return err
				}
				return printRuns(os.Stdout, reports, asJSON)
			})
		},
	}
}

func journalListCommand() *cli.Command {
	var (
		project string
		outcome string
		limit   int
		asJSON  bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List recorded runs, newest first",
		Usage:   "handoff journal list [--project ID] [--outcome done|clean|stranded|transferred|unknown] [--limit N] [--json]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.StringVar(&project, "project", "", "only runs for this project")
			flags.StringVar(&outcome, "outcome", "", "only runs with this outcome")
			flags.IntVar(&limit, "limit", 50, "maximum number of runs, 0 for all")
			flags.BoolVar(&asJSON, "json", false, "print runs as JSON")
			return flags
		},
		Run: func(args []string) error {
			if err := rejectArgs(args); err != nil {
				return err
			}
			filter, err := journalFilter(project, outcome, limit)
			if err != nil {
				return err
			}
			return withJournal(func(ctx context.Context, runs *journal.Journal) error {
				reports, err := runs.List(ctx, filter)
				if err != nil {
					return err
				}
				return printRuns(os.Stdout, reports, asJSON)
			})
		},
	}
}

func journalFilter(project, outcome string, limit int) (journal.Filter, error) {
	filter := journal.Filter{Outcome: provision.Outcome(outcome), Limit: limit}
	switch filter.Outcome {
	case "", provision.OutcomeDone, provision.OutcomeClean, provision.OutcomeStranded, provision.OutcomeTransferred,
		provision.OutcomeUnknown:
	default:
		return journal.Filter{}, fmt.Errorf("--outcome %q is not one of done, clean, stranded, transferred, unknown", outcome)
	}
	if limit < 0 {
		return journal.Filter{}, errors.New("--limit must not be negative")
	}
	if project != "" {
		id, err := ref.ParseObjectID(project)
		if err != nil {
			return journal.Filter{}, fmt.Errorf("--project: %w", err)
		}
		filter.Project = id
	}
	return filter, nil
}

func withJournal(fn func(context.Context, *journal.Journal) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JournalPath == "" {
		return errors.New("HANDOFF_JOURNAL_PATH is required")
	}
	if _, err := os.Stat(cfg.JournalPath); err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	runs, err := journal.Open(journal.Config{Path: cfg.JournalPath, Logger: cli.NewCommandLogger(cfg.LogLevel)})
	if err != nil {
		return err
	}
	defer runs.Close()
	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, runs)
}

func printRuns(w io.Writer, reports []*provision.Report, asJSON bool) error {
	if asJSON {
		runs := make([]journalRun, 0, len(reports))
		for _, report := range reports {
			runs = append(runs, journalRunOf(report))
		}
		return cli.WriteJSON(w, runs)
	}
	if len(reports) == 0 {
		fmt.Fprintln(w, "no runs")
		return nil
	}
	table := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "RUN\tPROJECT\tOUTCOME\tFAILED AT\tCAPABILITY\tEPHEMERAL\tFINISHED")
	for _, report := range reports {
		failedAt := "-"
		if report.Kind != "" {
			failedAt = fmt.Sprintf("%s (%s)", report.Stage, report.Kind)
		}
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			report.RunID,
			report.Project,
			report.Outcome,
			failedAt,
			orDash(string(report.Capability)),
			orDash(addressOrEmpty(report.Ephemeral)),
			report.FinishedAt.UTC().Format(time.RFC3339),
		)
	}
	return table.Flush()
}

func journalRunOf(report *provision.Report) journalRun {
	return journalRun{
		RunID:          report.RunID,
		Project:        report.Project,
		Caller:         addressOrEmpty(report.Caller),
		TargetName:     report.TargetName,
		Outcome:        report.Outcome,
		State:          report.State.String(),
		Stage:          report.Stage,
		Kind:           report.Kind,
		Capability:     report.Capability,
		Ephemeral:      addressOrEmpty(report.Ephemeral),
		Committed:      report.Committed,
		Unresolved:     digestOrEmpty(report.Unresolved),
		SecretProduced: report.SecretProduced,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
	}
}

func addressOrEmpty(address ref.Address) string {
	if address.IsZero() {
		return ""
	}
	return address.String()
}

func digestOrEmpty(digest ref.Digest) string {
	if digest.IsZero() {
		return ""
	}
	return digest.String()
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
