// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package devnet

import (
	"context"
	"testing"

	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

func TestNewDefaults(t *testing.T) {
	network, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer network.Close()

	if len(network.Servers) != DefaultServers || network.Threshold != DefaultThreshold {
		t.Errorf("%d servers at threshold %d", len(network.Servers), network.Threshold)
	}
	seen := make(map[string]bool)
	for _, server := range network.ThresholdServers() {
		if seen[server.ID] || server.Recipient == "" || server.Weight != 1 {
			t.Errorf("server %+v", server)
		}
		seen[server.ID] = true
	}
	adminCap, err := network.Ledger.GetObject(context.Background(), DefaultAdminCap)
	if err != nil {
		t.Fatalf("GetObject(admin cap): %v", err)
	}
	if adminCap.Owner != network.Admin.Address() {
		t.Errorf("admin cap owned by %s", adminCap.Owner)
	}
	if balance := network.Ledger.Balance(network.Admin.Address()); balance != DefaultAdminFunds {
		t.Errorf("admin balance %d", balance)
	}
}

func TestNewRejectsUnreachableThreshold(t *testing.T) {
	if _, err := New(Config{Servers: 2, Threshold: 3}); err == nil {
		t.Fatal("New accepted a threshold above the server count")
	}
}

func TestAddProjectPublishesCredential(t *testing.T) {
	network, err := New(Config{Servers: 3, Threshold: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer network.Close()
	ctx := context.Background()

	project, err := network.AddProject(ctx, "P1", "Acme")
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	state, err := network.Ledger.GetObject(ctx, "P1")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if state.Owner != network.Admin.Address() {
		t.Errorf("project owned by %s, want the admin", state.Owner)
	}
	if state.Fields[ledger.FieldFinalOwner] != project.Holder.String() {
		t.Errorf("final owner %q, want %s", state.Fields[ledger.FieldFinalOwner], project.Holder)
	}
	if state.Fields[ledger.FieldCredential] != project.Credential.String() {
		t.Errorf("credential field %q, want %s", state.Fields[ledger.FieldCredential], project.Credential)
	}
	if balance := network.Ledger.Balance(project.Holder); balance != HolderFunds {
		t.Errorf("holder balance %d", balance)
	}

	stored, err := network.Store.Get(ctx, project.Credential)
	if err != nil {
		t.Fatalf("Get credential: %v", err)
	}
	ciphertext, err := threshold.ParseCiphertext(stored)
	if err != nil {
		t.Fatalf("ParseCiphertext: %v", err)
	}
	if ciphertext.AccessID != "P1" || int(ciphertext.Threshold) != 2 || len(ciphertext.Shares) != 3 {
		t.Errorf("ciphertext access %q threshold %d shares %d", ciphertext.AccessID, ciphertext.Threshold, len(ciphertext.Shares))
	}

	if _, err := network.AddProject(ctx, "P1", "Again"); err == nil {
		t.Error("AddProject reused an existing id")
	}
}

func TestProvisionConfigIsComplete(t *testing.T) {
	network, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer network.Close()
	config, err := network.ProvisionConfig(nil, nil)
	if err != nil {
		t.Fatalf("ProvisionConfig: %v", err)
	}
	if _, err := provision.New(config); err != nil {
		t.Fatalf("provision.New rejected the devnet config: %v", err)
	}
}
