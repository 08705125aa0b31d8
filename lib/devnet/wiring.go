// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package devnet

import (
	"log/slog"
	"time"

	"github.com/bureau-foundation/handoff/lib/capability"
	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/session"
	"github.com/bureau-foundation/handoff/lib/subresource"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

// Ledger call bounds used by ProvisionConfig.
const (
	SubmitTimeout   = 10 * time.Second
	FinalityTimeout = 30 * time.Second
)

// ProvisionConfig returns an orchestrator configuration wired to the
// network with the production service implementations. Callers may
// replace individual services before passing it to provision.New.
func (n *Network) ProvisionConfig(clk clock.Clock, logger *slog.Logger) (provision.Config, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	executor := &ledger.Executor{
		Client:          n.Ledger,
		SubmitTimeout:   SubmitTimeout,
		FinalityTimeout: FinalityTimeout,
	}
	capabilities := capability.NewService(executor, n.Package, n.AdminCap, logger)
	sessions, err := session.NewManager(session.Config{
		Endpoints: n.SessionEndpoints(),
		Threshold: n.Threshold,
		Clock:     clk,
		Logger:    logger,
	})
	if err != nil {
		return provision.Config{}, err
	}
	return provision.Config{
		Ledger:    n.Ledger,
		Store:     n.Store,
		Package:   n.Package,
		Admin:     n.Admin,
		Minter:    capabilities,
		Prover:    capabilities,
		Finalizer: capabilities,
		Issuer:    subresource.NewIssuer(executor, n.Package, n.Registry, logger),
		Sessions:  sessions,
		Decryptor: threshold.NewDecryptor(threshold.DecryptorConfig{
			Servers: n.ShareServers(),
			Logger:  logger,
		}),
		Clock:  clk,
		Logger: logger,
	}, nil
}
