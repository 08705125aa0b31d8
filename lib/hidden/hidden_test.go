// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hidden_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/bureau-foundation/handoff/lib/blobstore"
	"github.com/bureau-foundation/handoff/lib/capability"
	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/codec"
	"github.com/bureau-foundation/handoff/lib/devnet"
	"github.com/bureau-foundation/handoff/lib/hidden"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/session"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

type fixture struct {
	clock      *clock.FakeClock
	network    *devnet.Network
	sealer     *hidden.Sealer
	revealer   *hidden.Revealer
	token      *session.Token
	capability ref.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	network, err := devnet.New(devnet.Config{Servers: 3, Threshold: 2, Clock: fake})
	if err != nil {
		t.Fatalf("devnet.New: %v", err)
	}
	t.Cleanup(func() { network.Close() })
	for _, id := range []ref.ObjectID{"P1", "P2"} {
		if _, err := network.AddProject(ctx, id, "Project "+string(id)); err != nil {
			t.Fatalf("AddProject(%s): %v", id, err)
		}
	}

	executor := &ledger.Executor{Client: network.Ledger, SubmitTimeout: time.Second, FinalityTimeout: time.Second}
	capabilities := capability.NewService(executor, network.Package, network.AdminCap, nil)
	ephemeral, err := identity.GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	t.Cleanup(func() { ephemeral.Close() })
	receipt, _, err := capabilities.Mint(ctx, network.Admin, capability.MintRequest{
		Project:   "P1",
		Ephemeral: ephemeral.Address(),
		GasBudget: 50_000_000,
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	sessions, err := session.NewManager(session.Config{
		Endpoints: network.SessionEndpoints(),
		Threshold: network.Threshold,
		Clock:     fake,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	token, err := sessions.Create(ctx, ephemeral, network.Package)
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}

	return &fixture{
		clock:   fake,
		network: network,
		sealer: &hidden.Sealer{
			Store:     network.Store,
			Servers:   network.ThresholdServers(),
			Threshold: network.Threshold,
		},
		revealer: &hidden.Revealer{
			Store:        network.Store,
			Decryptor:    threshold.NewDecryptor(threshold.DecryptorConfig{Servers: network.ShareServers()}),
			Capabilities: capabilities,
			Clock:        fake,
		},
		token:      token,
		capability: receipt.Capability,
	}
}

func (f *fixture) envelope(t *testing.T, id cid.Cid) hidden.Envelope {
	t.Helper()
	stored, err := f.network.Store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var envelope hidden.Envelope
	if err := codec.Unmarshal(stored, &envelope); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	return envelope
}

func TestSealReveal(t *testing.T) {
	tests := []struct {
		name      string
		mediaType string
		data      []byte
		want      hidden.Compression
	}{
		{"text", "text/plain", []byte(strings.Repeat("release notes ", 100)), hidden.CompressionZstd},
		{"binary", "application/octet-stream", bytes.Repeat([]byte{0, 1, 2, 3}, 256), hidden.CompressionLZ4},
		{"tiny", "text/plain", []byte("x"), hidden.CompressionNone},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			id, err := f.sealer.Seal(ctx, "P1", test.mediaType, test.data)
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			envelope := f.envelope(t, id)
			if envelope.Compression != test.want {
				t.Errorf("stored with %s, want %s", envelope.Compression, test.want)
			}
			if bytes.Contains(envelope.Ciphertext, test.data) {
				t.Error("envelope carries the plaintext")
			}

			record, err := f.revealer.Reveal(ctx, id, f.token, f.capability, "P1")
			if err != nil {
				t.Fatalf("Reveal: %v", err)
			}
			if !bytes.Equal(record.Data, test.data) || record.MediaType != test.mediaType || record.Project != "P1" {
				t.Errorf("revealed %q (%s, %s)", record.Data, record.MediaType, record.Project)
			}
		})
	}
}

func TestSealIsContentAddressed(t *testing.T) {
	f := newFixture(t)
	id, err := f.sealer.Seal(context.Background(), "P1", "text/plain", []byte("credential"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	stored, err := f.network.Store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	sum, err := blobstore.Sum(stored)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if !sum.Equals(id) {
		t.Errorf("content id %s does not address the stored envelope", id)
	}
}

func TestSealRejectsEmpty(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sealer.Seal(context.Background(), "P1", "text/plain", nil); !errors.Is(err, hidden.ErrEmptyRecord) {
		t.Fatalf("Seal(nil) = %v, want ErrEmptyRecord", err)
	}
}

func TestRevealOtherProjectIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.sealer.Seal(ctx, "P2", "text/plain", []byte("other project's record"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := f.revealer.Reveal(ctx, id, f.token, f.capability, "P1"); !errors.Is(err, hidden.ErrMalformedEnvelope) {
		t.Errorf("Reveal under the wrong project = %v, want ErrMalformedEnvelope", err)
	}
	// The capability is bound to P1, so the policy check refuses P2.
	if _, err := f.revealer.Reveal(ctx, id, f.token, f.capability, "P2"); !errors.Is(err, threshold.ErrAccessDenied) {
		t.Errorf("Reveal with a P1 capability = %v, want ErrAccessDenied", err)
	}
}

func TestRevealAfterFinalizeIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.sealer.Seal(ctx, "P2", "text/plain", []byte("posting"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	config, err := f.network.ProvisionConfig(f.clock, nil)
	if err != nil {
		t.Fatalf("ProvisionConfig: %v", err)
	}
	orchestrator, err := provision.New(config)
	if err != nil {
		t.Fatalf("provision.New: %v", err)
	}
	result, err := orchestrator.Run(ctx, provision.Request{
		Project:    "P2",
		TargetName: "beta",
		Caller:     ref.MustParseAddress("0x" + strings.Repeat("c4", 32)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer result.Close()
	ephemeral, err := identity.LoadEphemeral(result.EphemeralSecret)
	if err != nil {
		t.Fatalf("LoadEphemeral: %v", err)
	}
	result.EphemeralSecret = nil
	defer ephemeral.Close()

	sessions, err := session.NewManager(session.Config{
		Endpoints: f.network.SessionEndpoints(),
		Threshold: f.network.Threshold,
		Clock:     f.clock,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	token, err := sessions.Create(ctx, ephemeral, f.network.Package)
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	if _, err := f.revealer.Reveal(ctx, id, token, result.Capability, "P2"); !errors.Is(err, threshold.ErrAccessDenied) {
		t.Fatalf("Reveal with a consumed capability = %v, want ErrAccessDenied", err)
	}
}

func TestRevealExpiredSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.sealer.Seal(ctx, "P1", "text/plain", []byte("late"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	f.clock.Advance(session.DefaultTTL)
	if _, err := f.revealer.Reveal(ctx, id, f.token, f.capability, "P1"); !errors.Is(err, hidden.ErrSessionExpired) {
		t.Fatalf("Reveal after TTL = %v, want ErrSessionExpired", err)
	}
}

func TestRevealMissingRecord(t *testing.T) {
	f := newFixture(t)
	missing, err := blobstore.Sum([]byte("never stored"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if _, err := f.revealer.Reveal(context.Background(), missing, f.token, f.capability, "P1"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("Reveal of a missing record = %v, want blobstore.ErrNotFound", err)
	}
}

func TestRevealRejectsForeignBlob(t *testing.T) {
	f := newFixture(t)
	id, err := f.network.Store.Put(context.Background(), []byte("not an envelope"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := f.revealer.Reveal(context.Background(), id, f.token, f.capability, "P1"); !errors.Is(err, hidden.ErrMalformedEnvelope) {
		t.Fatalf("Reveal of a foreign blob = %v, want ErrMalformedEnvelope", err)
	}
}
