// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/handoff/cmd/handoff/cli"
	"github.com/bureau-foundation/handoff/lib/api"
	"github.com/bureau-foundation/handoff/lib/budget"
	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/devnet"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger/rpcledger"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/ref"
)

const (
	devnetIssuer   = "handoff-devnet"
	devnetAudience = "handoff"
)

type devnetParams struct {
	Listen    string
	Projects  []string
	Servers   int
	Threshold int
	Caller    string
	GrantTTL  time.Duration
}

type devnetProject struct {
	ID         ref.ObjectID `json:"id"`
	Holder     string       `json:"holder"`
	Credential string       `json:"credential"`
}

// devnetInfo is printed at startup so a UI or curl can drive the
// network.
type devnetInfo struct {
	URL       string          `json:"url"`
	LedgerRPC string          `json:"ledgerRpc"`
	Issuer    string          `json:"issuer"`
	Audience  string          `json:"audience"`
	GrantKey  string          `json:"grantPublicKey"`
	Caller    string          `json:"caller"`
	Grant     string          `json:"grant"`
	Admin     string          `json:"admin"`
	Projects  []devnetProject `json:"projects"`
	Servers   int             `json:"servers"`
	Threshold int             `json:"threshold"`
}

func devnetCommand() *cli.Command {
	params := devnetParams{
		Listen:    "127.0.0.1:8080",
		Projects:  []string{"P1"},
		Servers:   devnet.DefaultServers,
		Threshold: 2,
		GrantTTL:  24 * time.Hour,
	}
	return &cli.Command{
		Name:    "devnet",
		Summary: "Serve the provisioning API over an in-memory ledger",
		Description: `Start an in-memory ledger, in-process key servers, and the provisioning
API, then print a signed grant for --caller.

Each --projects id is seeded as an admin-owned project with a freshly
sealed holder credential. The ledger's JSON-RPC endpoint is served at
/rpc on the same listener. Everything is lost on exit.`,
		Usage: "handoff devnet [--listen ADDR] [--projects ID,...] [--servers N] [--threshold N] [--caller ADDRESS]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("devnet", pflag.ContinueOnError)
			flags.StringVar(&params.Listen, "listen", params.Listen, "listen address")
			flags.StringSliceVar(&params.Projects, "projects", params.Projects, "project ids to seed")
			flags.IntVar(&params.Servers, "servers", params.Servers, "number of key servers")
			flags.IntVar(&params.Threshold, "threshold", params.Threshold, "key-server weight needed to decrypt")
			flags.StringVar(&params.Caller, "caller", "", "grant subject address (default: a fresh address)")
			flags.DurationVar(&params.GrantTTL, "grant-ttl", params.GrantTTL, "lifetime of the printed grant")
			return flags
		},
		Run: func(args []string) error {
			if err := rejectArgs(args); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return runDevnet(ctx, os.Stdout, params, cli.NewCommandLogger(slog.LevelInfo))
		},
	}
}

// devnetEnvironment is a started devnet behind an HTTP handler.
type devnetEnvironment struct {
	network *devnet.Network
	handler http.Handler
	info    devnetInfo
}

func (e *devnetEnvironment) Close() error { return e.network.Close() }

func startDevnet(ctx context.Context, params devnetParams, logger *slog.Logger) (_ *devnetEnvironment, err error) {
	if len(params.Projects) == 0 {
		return nil, errors.New("--projects needs at least one id")
	}
	caller, err := devnetCaller(params.Caller)
	if err != nil {
		return nil, err
	}
	clk := clock.Real()
	network, err := devnet.New(devnet.Config{
		Servers:   params.Servers,
		Threshold: params.Threshold,
		Clock:     clk,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			network.Close()
		}
	}()

	info := devnetInfo{
		Issuer:    devnetIssuer,
		Audience:  devnetAudience,
		Caller:    caller.String(),
		Admin:     network.Admin.Address().String(),
		Servers:   params.Servers,
		Threshold: params.Threshold,
	}
	for _, raw := range params.Projects {
		id, err := ref.ParseObjectID(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("--projects: %w", err)
		}
		project, err := network.AddProject(ctx, id, string(id))
		if err != nil {
			return nil, fmt.Errorf("seeding project %s: %w", id, err)
		}
		info.Projects = append(info.Projects, devnetProject{
			ID:         project.ID,
			Holder:     project.Holder.String(),
			Credential: project.Credential.String(),
		})
	}

	provisionConfig, err := network.ProvisionConfig(clk, logger)
	if err != nil {
		return nil, err
	}
	estimator := budget.NewEstimator(budget.Config{
		Ledger:   network.Ledger,
		Package:  network.Package,
		AdminCap: network.AdminCap,
		Registry: network.Registry,
		Clock:    clk,
		Logger:   logger,
	})
	budgets := budget.NewCache(estimator, budget.Sample{Project: info.Projects[0].ID}, 0, clk)
	provisionConfig.Budgets = budgets
	orchestrator, err := provision.New(provisionConfig)
	if err != nil {
		return nil, err
	}

	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	info.GrantKey = base64.StdEncoding.EncodeToString(public)
	info.Grant, err = api.SignGrant(private, devnetIssuer, devnetAudience, caller, clk.Now(), params.GrantTTL)
	if err != nil {
		return nil, err
	}
	server, err := api.New(api.Config{
		Runner: orchestrator,
		Grants: &api.GrantVerifier{
			Issuer:   devnetIssuer,
			Audience: devnetAudience,
			Key:      public,
			Clock:    clk,
		},
		Budgets:     budgets,
		CORSOrigins: []string{"*"},
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Handle("/rpc", rpcledger.NewHandler(network.Ledger, logger))
	router.Mount("/", server.Handler())
	return &devnetEnvironment{network: network, handler: router, info: info}, nil
}

func devnetCaller(raw string) (ref.Address, error) {
	if raw != "" {
		address, err := ref.ParseAddress(raw)
		if err != nil {
			return ref.Address{}, fmt.Errorf("--caller: %w", err)
		}
		return address, nil
	}
	seed, address, err := identity.Generate()
	if err != nil {
		return ref.Address{}, err
	}
	seed.Close()
	return address, nil
}

func runDevnet(ctx context.Context, w io.Writer, params devnetParams, logger *slog.Logger) error {
	environment, err := startDevnet(ctx, params, logger)
	if err != nil {
		return err
	}
	defer environment.Close()

	listener, err := net.Listen("tcp", params.Listen)
	if err != nil {
		return err
	}
	base := "http://" + listener.Addr().String()
	environment.info.URL = base
	environment.info.LedgerRPC = base + "/rpc"
	if err := cli.WriteJSON(w, environment.info); err != nil {
		listener.Close()
		return err
	}

	httpServer := &http.Server{
		Handler:           environment.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(listener) }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("devnet shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
