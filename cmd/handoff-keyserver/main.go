// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/keyserver"
	"github.com/bureau-foundation/handoff/lib/ledger/rpcledger"
	"github.com/bureau-foundation/handoff/lib/process"
	"github.com/bureau-foundation/handoff/lib/sealed"
	"github.com/bureau-foundation/handoff/lib/secret"
	"github.com/bureau-foundation/handoff/lib/service"
	"github.com/bureau-foundation/handoff/lib/servicetoken"
	"github.com/bureau-foundation/handoff/lib/telemetry"
	"github.com/bureau-foundation/handoff/lib/version"
)

const serviceName = "handoff-keyserver"

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

	cfg, err := config.LoadKeyServer(nil)
	if err != nil {
		return err
	}
	logger := service.NewLogger(cfg.LogLevel).With("key_server", cfg.ID)
	logger.Info("starting", "service", serviceName, "version", version.Info())

	ctx, stop := process.SignalContext(context.Background())
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()

	server, ledgerClient, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	defer ledgerClient.CloseIdleConnections()

	var options []grpc.ServerOption
	if cfg.TLSCertFile != "" {
		transport, err := credentials.NewServerTLSFromFile(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		options = append(options, grpc.Creds(transport))
	}
	grpcServer := keyserver.NewGRPCServer(server, options...)

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcServer.Serve(listener) }()
	logger.Info("key server listening",
		"address", listener.Addr().String(),
		"tls", cfg.TLSCertFile != "",
		"recipient", server.Recipient(),
		"grant_key", base64.StdEncoding.EncodeToString(server.GrantKey()),
	)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving key server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	grpcServer.GracefulStop()
	return nil
}

func newServer(cfg *config.KeyServerDaemon, logger *slog.Logger) (*keyserver.Server, *rpcledger.Client, error) {
	privateKey, err := secret.ReadFromPath(cfg.IdentityFile)
	if err != nil {
		return nil, nil, fmt.Errorf("reading share identity: %w", err)
	}
	identity, err := sealed.LoadIdentity(privateKey)
	privateKey.Close()
	if err != nil {
		return nil, nil, err
	}

	signingKey, generated, err := servicetoken.LoadOrGenerateSigningKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, nil, err
	}
	if generated {
		logger.Warn("generated a new grant signing key; sessions from before this start are invalid",
			"path", cfg.SigningKeyFile)
	}

	ledgerClient, err := rpcledger.New(rpcledger.Config{Endpoint: cfg.LedgerURL, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	server, err := keyserver.New(keyserver.Config{
		ID:            cfg.ID,
		Identity:      identity,
		SigningKey:    signingKey,
		Ledger:        ledgerClient,
		Package:       cfg.Package,
		ChallengeTTL:  cfg.ChallengeTTL,
		MaxSessionTTL: cfg.MaxSessionTTL,
		Logger:        logger,
	})
	if err != nil {
		ledgerClient.CloseIdleConnections()
		return nil, nil, err
	}
	return server, ledgerClient, nil
}
