// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bureau-foundation/handoff/lib/blobstore"
	"github.com/bureau-foundation/handoff/lib/budget"
	"github.com/bureau-foundation/handoff/lib/capability"
	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/journal"
	"github.com/bureau-foundation/handoff/lib/keyserver"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ledger/rpcledger"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/secret"
	"github.com/bureau-foundation/handoff/lib/session"
	"github.com/bureau-foundation/handoff/lib/subresource"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

// Options adjusts Bootstrap beyond what the environment configures.
type Options struct {
	Logger *slog.Logger
	Clock  clock.Clock

	// HTTPClient carries ledger RPC. Nil uses rpcledger's pooled
	// client.
	HTTPClient *http.Client

	// DialOptions are appended to every key server connection.
	DialOptions []grpc.DialOption
}

// Provisioner is an assembled provisioning process.
type Provisioner struct {
	Orchestrator *provision.Orchestrator
	Ledger       ledger.Client
	Store        blobstore.Store
	Admin        *identity.Admin

	// Budgets is nil when no budget sample is configured; runs then
	// use budget.Fallback.
	Budgets *budget.Cache

	// Journal is nil when no journal path is configured.
	Journal *journal.Journal

	closers []func() error
}

// Bootstrap validates cfg and builds a Provisioner. On error nothing
// stays open.
func Bootstrap(ctx context.Context, cfg *config.Config, options Options) (_ *Provisioner, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	p := &Provisioner{}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	seed, err := secret.ReadFromPath(cfg.AdminSeedFile)
	if err != nil {
		return nil, fmt.Errorf("reading admin seed: %w", err)
	}
	p.Admin, err = identity.LoadAdmin(seed)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, p.Admin.Close)

	ledgerClient, err := rpcledger.New(rpcledger.Config{
		Endpoint:   cfg.LedgerURL,
		HTTPClient: options.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	p.Ledger = ledgerClient
	p.closers = append(p.closers, func() error { ledgerClient.CloseIdleConnections(); return nil })

	store, err := blobstore.OpenDir(cfg.BlobDir)
	if err != nil {
		return nil, err
	}
	p.Store = store

	dialed, err := dialKeyServers(cfg, options.DialOptions)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, dialed.closers...)
	sessions, err := session.NewManager(session.Config{
		Endpoints: dialed.endpoints,
		Threshold: cfg.Threshold,
		TTL:       cfg.SessionTTL,
		Clock:     clk,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	executor := &ledger.Executor{
		Client:          ledgerClient,
		SubmitTimeout:   cfg.SubmitTimeout,
		FinalityTimeout: cfg.FinalityTimeout,
	}
	capabilities := capability.NewService(executor, cfg.Package, cfg.AdminCap, logger)

	var budgets provision.BudgetSource
	if !cfg.BudgetSampleProject.IsZero() {
		estimator := budget.NewEstimator(budget.Config{
			Ledger:   ledgerClient,
			Package:  cfg.Package,
			AdminCap: cfg.AdminCap,
			Registry: cfg.Registry,
			Clock:    clk,
			Logger:   logger,
		})
		p.Budgets = budget.NewCache(estimator, budget.Sample{
			Project:    cfg.BudgetSampleProject,
			Capability: cfg.BudgetSampleCapability,
		}, cfg.BudgetRefresh, clk)
		budgets = p.Budgets
	}

	var recorder provision.Recorder
	if cfg.JournalPath != "" {
		p.Journal, err = journal.Open(journal.Config{Path: cfg.JournalPath, Logger: logger})
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, p.Journal.Close)
		recorder = p.Journal
	}

	p.Orchestrator, err = provision.New(provision.Config{
		Ledger:    ledgerClient,
		Store:     store,
		Package:   cfg.Package,
		Admin:     p.Admin,
		Minter:    capabilities,
		Prover:    capabilities,
		Finalizer: capabilities,
		Issuer:    subresource.NewIssuer(executor, cfg.Package, cfg.Registry, logger),
		Sessions:  sessions,
		Decryptor: threshold.NewDecryptor(threshold.DecryptorConfig{
			Servers:       dialed.shareServers,
			ServerTimeout: cfg.ServerTimeout,
			Logger:        logger,
		}),
		Budgets:          budgets,
		EphemeralFunding: cfg.EphemeralFunding,
		LookupTimeout:    cfg.LookupTimeout,
		SessionTimeout:   cfg.SessionTimeout,
		DecryptTimeout:   cfg.DecryptTimeout,
		Recorder:         recorder,
		Clock:            clk,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("provisioner ready",
		"ledger", cfg.LedgerURL,
		"package", cfg.Package,
		"admin", p.Admin.Address(),
		"key_servers", len(dialed.endpoints),
		"threshold", cfg.Threshold,
		"journal", cfg.JournalPath != "",
		"budget_estimates", p.Budgets != nil,
	)
	return p, nil
}

// keyServers are dialed connections to every configured key server.
type keyServers struct {
	endpoints    []session.Endpoint
	shareServers []threshold.ShareServer
	closers      []func() error
}

// dialKeyServers connects lazily; the first RPC establishes the
// transport. On error the connections already made are closed.
func dialKeyServers(cfg *config.Config, extra []grpc.DialOption) (*keyServers, error) {
	servers, err := cfg.KeyServerList()
	if err != nil {
		return nil, err
	}
	transport := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if cfg.KeyServerInsecure {
		transport = insecure.NewCredentials()
	}
	options := append([]grpc.DialOption{grpc.WithTransportCredentials(transport)}, extra...)

	dialed := &keyServers{}
	for _, server := range servers {
		client, conn, err := keyserver.Dial(server.ID, server.Address, options...)
		if err != nil {
			closeAll(dialed.closers)
			return nil, fmt.Errorf("dialing key server %s at %s: %w", server.ID, server.Address, err)
		}
		dialed.closers = append(dialed.closers, conn.Close)
		dialed.endpoints = append(dialed.endpoints, session.Endpoint{Server: client, Weight: server.Weight})
		dialed.shareServers = append(dialed.shareServers, client)
	}
	return dialed, nil
}

// closeAll runs closers newest first.
func closeAll(closers []func() error) error {
	var errs []error
	for index := len(closers) - 1; index >= 0; index-- {
		errs = append(errs, closers[index]())
	}
	return errors.Join(errs...)
}

// Close releases everything Bootstrap opened, newest first.
func (p *Provisioner) Close() error {
	err := closeAll(p.closers)
	p.closers = nil
	return err
}
