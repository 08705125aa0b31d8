// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service_test

import (
	"context"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/bureau-foundation/handoff/lib/blobstore"
	"github.com/bureau-foundation/handoff/lib/budget"
	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/devnet"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/journal"
	"github.com/bureau-foundation/handoff/lib/keyserver"
	"github.com/bureau-foundation/handoff/lib/ledger/rpcledger"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/service"
	"github.com/bureau-foundation/handoff/lib/testutil"
)

var caller = ref.MustParseAddress("0x" + strings.Repeat("c4", 32))

// environment runs a devnet behind the production transports: the
// ledger over JSON-RPC and every key server over gRPC on loopback.
type environment struct {
	network *devnet.Network
	project *devnet.Project
	environ map[string]string
}

func newEnvironment(t *testing.T) *environment {
	t.Helper()
	dir := t.TempDir()

	seed, _, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	encoded, err := identity.EncodeSecret(seed)
	if err != nil {
		t.Fatalf("EncodeSecret: %v", err)
	}
	seedFile := testutil.WriteSecretFile(t, dir, "admin.seed", encoded.Reveal())
	encoded.Close()

	blobDir := filepath.Join(dir, "blobs")
	store, err := blobstore.OpenDir(blobDir)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	network, err := devnet.New(devnet.Config{Servers: 3, Threshold: 2, Store: store, AdminSeed: seed})
	if err != nil {
		t.Fatalf("devnet.New: %v", err)
	}
	t.Cleanup(func() { network.Close() })

	ctx := context.Background()
	project, err := network.AddProject(ctx, "P1", "Acme")
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	if _, err := network.AddProject(ctx, "sample", "Sample"); err != nil {
		t.Fatalf("AddProject(sample): %v", err)
	}

	ledgerServer := httptest.NewServer(rpcledger.NewHandler(network.Ledger, nil))
	t.Cleanup(ledgerServer.Close)

	var addresses, recipients []string
	for _, server := range network.Servers {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Listen: %v", err)
		}
		grpcServer := keyserver.NewGRPCServer(server)
		go grpcServer.Serve(listener)
		t.Cleanup(grpcServer.Stop)
		addresses = append(addresses, server.ID()+"="+listener.Addr().String())
		recipients = append(recipients, server.ID()+"="+server.Recipient())
	}

	return &environment{
		network: network,
		project: project,
		environ: map[string]string{
			"HANDOFF_LEDGER_URL":            ledgerServer.URL,
			"HANDOFF_PACKAGE":               string(network.Package),
			"HANDOFF_ADMIN_CAP":             string(network.AdminCap),
			"HANDOFF_REGISTRY":              string(network.Registry),
			"HANDOFF_ADMIN_SEED_FILE":       seedFile,
			"HANDOFF_BLOB_DIR":              blobDir,
			"HANDOFF_JOURNAL_PATH":          filepath.Join(dir, "journal.db"),
			"HANDOFF_KEY_SERVERS":           strings.Join(addresses, ","),
			"HANDOFF_KEY_SERVER_RECIPIENTS": strings.Join(recipients, ","),
			"HANDOFF_KEY_SERVER_INSECURE":   "true",
			"HANDOFF_THRESHOLD":             strconv.Itoa(network.Threshold),
			"HANDOFF_BUDGET_SAMPLE_PROJECT": "sample",
		},
	}
}

func (e *environment) bootstrap(t *testing.T) *service.Provisioner {
	t.Helper()
	cfg, err := config.LoadFrom(e.environ)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	provisioner, err := service.Bootstrap(context.Background(), cfg, service.Options{})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	t.Cleanup(func() { provisioner.Close() })
	return provisioner
}

func TestBootstrapProvisionsOverRealTransports(t *testing.T) {
	env := newEnvironment(t)
	provisioner := env.bootstrap(t)
	if provisioner.Admin.Address() != env.network.Admin.Address() {
		t.Fatalf("admin %s, want %s", provisioner.Admin.Address(), env.network.Admin.Address())
	}

	ctx := context.Background()
	result, err := provisioner.Orchestrator.Run(ctx, provision.Request{
		Project:    "P1",
		TargetName: "acme",
		Caller:     caller,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer result.Close()
	if result.HolderAddress != env.project.Holder {
		t.Errorf("holder %s, want %s", result.HolderAddress, env.project.Holder)
	}
	project, err := env.network.Ledger.GetObject(ctx, "P1")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if project.Owner != env.project.Holder {
		t.Errorf("project owned by %s after provisioning", project.Owner)
	}

	if provisioner.Budgets == nil {
		t.Fatal("budget sample configured but no estimator built")
	}
	if result.Budgets == (budget.Budgets{}) {
		t.Error("run used zero budgets")
	}

	runs, err := provisioner.Journal.List(ctx, journal.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != result.RunID || runs[0].Outcome != provision.OutcomeDone {
		t.Errorf("journal = %+v", runs)
	}
}

func TestBootstrapWithoutOptionalParts(t *testing.T) {
	env := newEnvironment(t)
	delete(env.environ, "HANDOFF_JOURNAL_PATH")
	delete(env.environ, "HANDOFF_BUDGET_SAMPLE_PROJECT")
	provisioner := env.bootstrap(t)
	if provisioner.Journal != nil || provisioner.Budgets != nil {
		t.Errorf("journal %v budgets %v, want neither", provisioner.Journal, provisioner.Budgets)
	}
}

func TestBootstrapFailures(t *testing.T) {
	tests := []struct {
		name   string
		change func(map[string]string)
		want   string
	}{
		{"invalid config", func(e map[string]string) { delete(e, "HANDOFF_REGISTRY") }, "HANDOFF_REGISTRY is required"},
		{"missing seed", func(e map[string]string) { e["HANDOFF_ADMIN_SEED_FILE"] = "/nonexistent/admin.seed" }, "reading admin seed"},
		{"threshold above servers", func(e map[string]string) { e["HANDOFF_THRESHOLD"] = "4" }, "HANDOFF_THRESHOLD"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := newEnvironment(t)
			test.change(env.environ)
			cfg, err := config.LoadFrom(env.environ)
			if err != nil {
				t.Fatalf("LoadFrom: %v", err)
			}
			provisioner, err := service.Bootstrap(context.Background(), cfg, service.Options{})
			if err == nil {
				provisioner.Close()
				t.Fatal("Bootstrap succeeded")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}
