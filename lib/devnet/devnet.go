// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package devnet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ipfs/go-cid"

	"github.com/bureau-foundation/handoff/lib/blobstore"
	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/keyserver"
	"github.com/bureau-foundation/handoff/lib/ledger/memledger"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/sealed"
	"github.com/bureau-foundation/handoff/lib/secret"
	"github.com/bureau-foundation/handoff/lib/session"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

// Defaults for Config fields left zero.
const (
	DefaultPackage  = ref.ObjectID("0x2a")
	DefaultAdminCap = ref.ObjectID("admin-cap")
	DefaultRegistry = ref.ObjectID("registry")

	DefaultServers   = 4
	DefaultThreshold = 1

	// DefaultAdminFunds is credited to the admin at startup.
	DefaultAdminFunds = 10_000_000_000

	// HolderFunds is credited to every project's holder so it can pay
	// for finalize and issue.
	HolderFunds = 1_000_000_000
)

// Config configures a Network.
type Config struct {
	Package  ref.ObjectID
	AdminCap ref.ObjectID
	Registry ref.ObjectID

	Servers   int
	Threshold int

	// Store holds encrypted credentials. Defaults to an in-memory
	// store.
	Store blobstore.Store

	// AdminSeed is consumed as the admin identity. A fresh one is
	// generated when nil.
	AdminSeed *secret.Buffer

	Clock  clock.Clock
	Logger *slog.Logger
}

// Network is a running development environment.
type Network struct {
	Package   ref.ObjectID
	AdminCap  ref.ObjectID
	Registry  ref.ObjectID
	Threshold int

	Ledger  *memledger.Ledger
	Store   blobstore.Store
	Servers []*keyserver.Server

	// Admin owns the admin capability and every project added with
	// AddProject.
	Admin *identity.Admin

	shareKeys []*sealed.Keypair
}

// Project is a project seeded by AddProject.
type Project struct {
	ID         ref.ObjectID
	Holder     ref.Address
	Credential cid.Cid
}

// New builds a Network.
func New(config Config) (*Network, error) {
	if config.Package.IsZero() {
		config.Package = DefaultPackage
	}
	if config.AdminCap.IsZero() {
		config.AdminCap = DefaultAdminCap
	}
	if config.Registry.IsZero() {
		config.Registry = DefaultRegistry
	}
	if config.Servers == 0 {
		config.Servers = DefaultServers
	}
	if config.Threshold == 0 {
		config.Threshold = DefaultThreshold
	}
	if config.Threshold > config.Servers {
		return nil, fmt.Errorf("devnet: threshold %d exceeds %d servers", config.Threshold, config.Servers)
	}
	if config.Store == nil {
		config.Store = blobstore.NewMemory()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	network := &Network{
		Package:   config.Package,
		AdminCap:  config.AdminCap,
		Registry:  config.Registry,
		Threshold: config.Threshold,
		Ledger:    memledger.New(memledger.Config{Package: config.Package, Clock: config.Clock}),
		Store:     config.Store,
	}

	adminSeed := config.AdminSeed
	var err error
	if adminSeed == nil {
		if adminSeed, _, err = identity.Generate(); err != nil {
			return nil, err
		}
	}
	network.Admin, err = identity.LoadAdmin(adminSeed)
	if err != nil {
		return nil, err
	}
	network.Ledger.Fund(network.Admin.Address(), DefaultAdminFunds)
	if err := network.Ledger.CreateAdminCap(config.AdminCap, network.Admin.Address()); err != nil {
		network.Close()
		return nil, err
	}
	if err := network.Ledger.CreateRegistry(config.Registry); err != nil {
		network.Close()
		return nil, err
	}

	for index := range config.Servers {
		server, err := network.startServer(fmt.Sprintf("ks-%d", index+1), config)
		if err != nil {
			network.Close()
			return nil, err
		}
		network.Servers = append(network.Servers, server)
	}
	config.Logger.Info("devnet started",
		"package", config.Package,
		"servers", config.Servers,
		"threshold", config.Threshold,
		"admin", network.Admin.Address(),
	)
	return network, nil
}

func (n *Network) startServer(id string, config Config) (*keyserver.Server, error) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	n.shareKeys = append(n.shareKeys, keypair)
	shareIdentity, err := sealed.LoadIdentity(keypair.PrivateKey)
	if err != nil {
		return nil, err
	}
	_, signingKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("devnet: generating grant key: %w", err)
	}
	return keyserver.New(keyserver.Config{
		ID:         id,
		Identity:   shareIdentity,
		SigningKey: signingKey,
		Ledger:     n.Ledger,
		Package:    config.Package,
		Clock:      config.Clock,
		Logger:     config.Logger,
	})
}

// Close releases the admin seed and server keys.
func (n *Network) Close() error {
	var errs []error
	if n.Admin != nil {
		errs = append(errs, n.Admin.Close())
	}
	for _, keypair := range n.shareKeys {
		errs = append(errs, keypair.Close())
	}
	return errors.Join(errs...)
}

// ThresholdServers describes every key server for encryption.
func (n *Network) ThresholdServers() []threshold.Server {
	servers := make([]threshold.Server, len(n.Servers))
	for index, server := range n.Servers {
		servers[index] = threshold.Server{ID: server.ID(), Recipient: server.Recipient(), Weight: 1}
	}
	return servers
}

// ShareServers returns every key server as a decryptor backend.
func (n *Network) ShareServers() []threshold.ShareServer {
	servers := make([]threshold.ShareServer, len(n.Servers))
	for index, server := range n.Servers {
		servers[index] = server
	}
	return servers
}

// SessionEndpoints returns every key server as a session endpoint.
func (n *Network) SessionEndpoints() []session.Endpoint {
	endpoints := make([]session.Endpoint, len(n.Servers))
	for index, server := range n.Servers {
		endpoints[index] = session.Endpoint{Server: server, Weight: 1}
	}
	return endpoints
}

// AddProject seeds a project owned by the admin, generates its holder
// credential, and publishes the encrypted credential. The holder is
// funded so it can pay for finalize and issue.
func (n *Network) AddProject(ctx context.Context, id ref.ObjectID, title string) (*Project, error) {
	seed, holder, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	defer seed.Close()

	if err := n.Ledger.CreateProject(id, title, n.Admin.Address(), holder); err != nil {
		return nil, err
	}
	credential, err := provision.SealCredential(ctx, n.Store, n.ThresholdServers(), n.Threshold, id, seed)
	if err != nil {
		return nil, err
	}
	if err := n.Ledger.SetCredential(id, credential.String()); err != nil {
		return nil, err
	}
	n.Ledger.Fund(holder, HolderFunds)
	return &Project{ID: id, Holder: holder, Credential: credential}, nil
}
