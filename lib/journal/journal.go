// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// DefaultPoolSize is used when Config.PoolSize is zero.
const DefaultPoolSize = 4

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = errors.New("journal: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	project         TEXT NOT NULL,
	caller          TEXT NOT NULL,
	target_name     TEXT NOT NULL,
	state           TEXT NOT NULL,
	stage           TEXT NOT NULL,
	kind            TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	capability      TEXT NOT NULL,
	ephemeral       TEXT NOT NULL,
	holder          TEXT NOT NULL,
	failed_digest   TEXT NOT NULL,
	unresolved      TEXT NOT NULL,
	secret_produced INTEGER NOT NULL,
	started_at      INTEGER NOT NULL,
	finished_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_outcome ON runs (outcome, finished_at);
CREATE INDEX IF NOT EXISTS runs_project ON runs (project, finished_at);

CREATE TABLE IF NOT EXISTS transactions (
	run_id   TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	digest   TEXT NOT NULL,
	PRIMARY KEY (run_id, sequence)
);
`

// pragmas are applied to every pooled connection.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// Config configures a Journal.
type Config struct {
	// Path is the database file. Its directory must exist.
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

// Journal is a SQLite-backed provision.Recorder. Safe for concurrent
// use.
type Journal struct {
	pool   *sqlitex.Pool
	path   string
	logger *slog.Logger
}

// Open opens or creates the journal at config.Path.
func Open(config Config) (*Journal, error) {
	if config.Path == "" {
		return nil, errors.New("journal: no database path")
	}
	if config.PoolSize <= 0 {
		config.PoolSize = DefaultPoolSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitex.NewPool(config.Path, sqlitex.PoolOptions{
		PoolSize:    config.PoolSize,
		PrepareConn: prepare,
	})
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", config.Path, err)
	}
	logger.Info("journal opened", "path", config.Path, "pool_size", config.PoolSize)
	return &Journal{pool: pool, path: config.Path, logger: logger}, nil
}

func prepare(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("journal: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("journal: creating schema: %w", err)
	}
	return nil
}

// Close waits for borrowed connections and closes the pool.
func (j *Journal) Close() error {
	if err := j.pool.Close(); err != nil {
		return fmt.Errorf("journal: closing %s: %w", j.path, err)
	}
	j.logger.Info("journal closed", "path", j.path)
	return nil
}

// Record stores report, replacing any earlier report with the same run
// id.
func (j *Journal) Record(ctx context.Context, report *provision.Report) (err error) {
	if report.RunID == "" {
		return errors.New("journal: report has no run id")
	}
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer j.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("journal: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `
		INSERT OR REPLACE INTO runs (
			run_id, project, caller, target_name, state, stage, kind, outcome,
			capability, ephemeral, holder, failed_digest, unresolved,
			secret_produced, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			report.RunID,
			string(report.Project),
			addressText(report.Caller),
			report.TargetName,
			report.State.String(),
			string(report.Stage),
			string(report.Kind),
			string(report.Outcome),
			string(report.Capability),
			addressText(report.Ephemeral),
			addressText(report.Holder),
			digestText(report.Failed),
			digestText(report.Unresolved),
			boolInt(report.SecretProduced),
			report.StartedAt.UnixMilli(),
			report.FinishedAt.UnixMilli(),
		}})
	if err != nil {
		return fmt.Errorf("journal: writing run %s: %w", report.RunID, err)
	}
	err = sqlitex.Execute(conn, "DELETE FROM transactions WHERE run_id = ?",
		&sqlitex.ExecOptions{Args: []any{report.RunID}})
	if err != nil {
		return fmt.Errorf("journal: clearing transactions of %s: %w", report.RunID, err)
	}
	for sequence, digest := range report.Committed {
		err = sqlitex.Execute(conn, "INSERT INTO transactions (run_id, sequence, digest) VALUES (?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{report.RunID, sequence, digest.String()}})
		if err != nil {
			return fmt.Errorf("journal: writing transaction of %s: %w", report.RunID, err)
		}
	}
	switch report.Outcome {
	case provision.OutcomeStranded:
		j.logger.Warn("stranded capability journaled",
			"run_id", report.RunID,
			"project", report.Project,
			"capability", report.Capability,
			"ephemeral", report.Ephemeral,
		)
	case provision.OutcomeUnknown:
		j.logger.Warn("unresolved transaction journaled",
			"run_id", report.RunID,
			"project", report.Project,
			"stage", report.Stage,
			"digest", report.Unresolved,
			"ephemeral", report.Ephemeral,
		)
	}
	return nil
}

// Get returns the report of one run.
func (j *Journal) Get(ctx context.Context, runID string) (*provision.Report, error) {
	reports, err := j.query(ctx, "WHERE run_id = ?", runID)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return reports[0], nil
}

// Stranded returns every run that left an unfinalized capability or
// may have, oldest first. The latter are runs with an unknown outcome.
func (j *Journal) Stranded(ctx context.Context) ([]*provision.Report, error) {
	return j.query(ctx, "WHERE outcome IN (?, ?) ORDER BY finished_at, run_id",
		string(provision.OutcomeStranded), string(provision.OutcomeUnknown))
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Project ref.ObjectID
	Outcome provision.Outcome
	Limit   int
}

// List returns matching runs, newest first.
func (j *Journal) List(ctx context.Context, filter Filter) ([]*provision.Report, error) {
	clause := "WHERE (? = '' OR project = ?) AND (? = '' OR outcome = ?) ORDER BY finished_at DESC, run_id"
	args := []any{
		string(filter.Project), string(filter.Project),
		string(filter.Outcome), string(filter.Outcome),
	}
	if filter.Limit > 0 {
		clause += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return j.query(ctx, clause, args...)
}

func (j *Journal) query(ctx context.Context, clause string, args ...any) ([]*provision.Report, error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	defer j.pool.Put(conn)

	var reports []*provision.Report
	err = sqlitex.Execute(conn, `
		SELECT run_id, project, caller, target_name, state, stage, kind, outcome,
			capability, ephemeral, holder, failed_digest, unresolved,
			secret_produced, started_at, finished_at
		FROM runs `+clause,
		&sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				report, err := scanRun(stmt)
				if err != nil {
					return err
				}
				reports = append(reports, report)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("journal: querying runs: %w", err)
	}
	for _, report := range reports {
		err := sqlitex.Execute(conn, "SELECT digest FROM transactions WHERE run_id = ? ORDER BY sequence",
			&sqlitex.ExecOptions{
				Args: []any{report.RunID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					digest, err := ref.ParseDigest(stmt.ColumnText(0))
					if err != nil {
						return fmt.Errorf("run %s: %w", report.RunID, err)
					}
					report.Committed = append(report.Committed, digest)
					return nil
				},
			})
		if err != nil {
			return nil, fmt.Errorf("journal: querying transactions: %w", err)
		}
	}
	return reports, nil
}

func scanRun(stmt *sqlite.Stmt) (*provision.Report, error) {
	report := &provision.Report{
		RunID:          stmt.ColumnText(0),
		Project:        ref.ObjectID(stmt.ColumnText(1)),
		TargetName:     stmt.ColumnText(3),
		Stage:          provision.Stage(stmt.ColumnText(5)),
		Kind:           provision.Kind(stmt.ColumnText(6)),
		Outcome:        provision.Outcome(stmt.ColumnText(7)),
		Capability:     ref.ObjectID(stmt.ColumnText(8)),
		SecretProduced: stmt.ColumnInt64(13) != 0,
		StartedAt:      time.UnixMilli(stmt.ColumnInt64(14)).UTC(),
		FinishedAt:     time.UnixMilli(stmt.ColumnInt64(15)).UTC(),
	}
	state, err := provision.ParseState(stmt.ColumnText(4))
	if err != nil {
		return nil, err
	}
	report.State = state
	for column, target := range map[int]*ref.Address{2: &report.Caller, 9: &report.Ephemeral, 10: &report.Holder} {
		if *target, err = parseAddress(stmt.ColumnText(column)); err != nil {
			return nil, err
		}
	}
	for column, target := range map[int]*ref.Digest{11: &report.Failed, 12: &report.Unresolved} {
		if raw := stmt.ColumnText(column); raw != "" {
			if *target, err = ref.ParseDigest(raw); err != nil {
				return nil, err
			}
		}
	}
	return report, nil
}

func addressText(address ref.Address) string {
	if address.IsZero() {
		return ""
	}
	return address.String()
}

func parseAddress(raw string) (ref.Address, error) {
	if raw == "" {
		return ref.Address{}, nil
	}
	return ref.ParseAddress(raw)
}

func digestText(digest ref.Digest) string {
	if digest.IsZero() {
		return ""
	}
	return digest.String()
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
