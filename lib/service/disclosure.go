// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/handoff/lib/blobstore"
	"github.com/bureau-foundation/handoff/lib/capability"
	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/hidden"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/session"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

// Disclosure seals and reveals hidden records through the configured
// key servers. Unlike a Provisioner it never loads the admin seed and
// never submits transactions.
type Disclosure struct {
	Package  ref.ObjectID
	Sealer   *hidden.Sealer
	Revealer *hidden.Revealer
	Sessions *session.Manager

	closers []func() error
}

// OpenDisclosure needs HANDOFF_PACKAGE, HANDOFF_BLOB_DIR, the key
// servers, and the threshold.
func OpenDisclosure(cfg *config.Config, options Options) (*Disclosure, error) {
	if cfg.Package.IsZero() {
		return nil, errors.New("HANDOFF_PACKAGE is required")
	}
	if cfg.BlobDir == "" {
		return nil, errors.New("HANDOFF_BLOB_DIR is required")
	}
	servers, err := cfg.ThresholdServers()
	if err != nil {
		return nil, err
	}
	total := 0
	for _, server := range servers {
		total += server.Weight
	}
	if cfg.Threshold < 1 || cfg.Threshold > total {
		return nil, fmt.Errorf("HANDOFF_THRESHOLD %d is outside 1..%d", cfg.Threshold, total)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	store, err := blobstore.OpenDir(cfg.BlobDir)
	if err != nil {
		return nil, err
	}
	dialed, err := dialKeyServers(cfg, options.DialOptions)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewManager(session.Config{
		Endpoints: dialed.endpoints,
		Threshold: cfg.Threshold,
		TTL:       cfg.SessionTTL,
		Clock:     clk,
		Logger:    logger,
	})
	if err != nil {
		closeAll(dialed.closers)
		return nil, err
	}
	return &Disclosure{
		Package: cfg.Package,
		Sealer: &hidden.Sealer{
			Store:     store,
			Servers:   servers,
			Threshold: cfg.Threshold,
			Logger:    logger,
		},
		Revealer: &hidden.Revealer{
			Store: store,
			Decryptor: threshold.NewDecryptor(threshold.DecryptorConfig{
				Servers:       dialed.shareServers,
				ServerTimeout: cfg.ServerTimeout,
				Logger:        logger,
			}),
			// Policy proofs are built, never submitted.
			Capabilities: capability.NewService(nil, cfg.Package, cfg.AdminCap, logger),
			Clock:        clk,
		},
		Sessions: sessions,
		closers:  dialed.closers,
	}, nil
}

// Close releases the key server connections.
func (d *Disclosure) Close() error {
	err := closeAll(d.closers)
	d.closers = nil
	return err
}
