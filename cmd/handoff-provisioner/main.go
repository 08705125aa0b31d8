// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/handoff/lib/api"
	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/journal"
	"github.com/bureau-foundation/handoff/lib/process"
	"github.com/bureau-foundation/handoff/lib/service"
	"github.com/bureau-foundation/handoff/lib/telemetry"
	"github.com/bureau-foundation/handoff/lib/version"
)

const serviceName = "handoff-provisioner"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print(serviceName)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := service.NewLogger(cfg.LogLevel)
	logger.Info("starting", "service", serviceName, "version", version.Info())

	ctx, stop := process.SignalContext(context.Background())
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, serviceName)
	if err != nil {
		return err
	}
	defer flushTracing(shutdownTracing, logger)

	provisioner, err := service.Bootstrap(ctx, cfg, service.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer provisioner.Close()

	handler, err := newHandler(cfg, provisioner, logger)
	if err != nil {
		return err
	}
	if provisioner.Journal != nil {
		reportStranded(ctx, provisioner.Journal, logger)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()
	logger.Info("provisioning API listening", "address", cfg.ListenAddress)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving API: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down, draining in-flight runs")
	drainCtx, cancel := context.WithTimeout(context.Background(), api.DefaultRunTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("draining API: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newHandler(cfg *config.Config, provisioner *service.Provisioner, logger *slog.Logger) (http.Handler, error) {
	key, err := cfg.GrantKey()
	if err != nil {
		return nil, err
	}
	if cfg.GrantIssuer == "" {
		return nil, errors.New("HANDOFF_GRANT_ISSUER is required")
	}
	var budgets api.BudgetSource
	if provisioner.Budgets != nil {
		budgets = provisioner.Budgets
	}
	server, err := api.New(api.Config{
		Runner: provisioner.Orchestrator,
		Grants: &api.GrantVerifier{
			Issuer:   cfg.GrantIssuer,
			Audience: cfg.GrantAudience,
			Key:      key,
		},
		Budgets:     budgets,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return server.Handler(), nil
}

// reportStranded logs capabilities earlier runs left unfinalized so an
// operator notices them after a restart.
func reportStranded(ctx context.Context, runs *journal.Journal, logger *slog.Logger) {
	stranded, err := runs.Stranded(ctx)
	if err != nil {
		logger.Warn("reading stranded runs from the journal", "error", err)
		return
	}
	for _, report := range stranded {
		logger.Warn("stranded capability from an earlier run",
			"run_id", report.RunID,
			"project", report.Project,
			"capability", report.Capability,
			"ephemeral", report.Ephemeral,
			"finished_at", report.FinishedAt,
		)
	}
}

func flushTracing(shutdown telemetry.Shutdown, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("flushing traces", "error", err)
	}
}
