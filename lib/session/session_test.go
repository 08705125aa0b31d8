// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ref"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeServer struct {
	id      string
	refuse  bool
	hang    bool
	revoked atomic.Int32
}

func (s *fakeServer) ID() string { return s.id }

func (s *fakeServer) Challenge(ctx context.Context, address ref.Address) (*Challenge, error) {
	if s.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &Challenge{Server: s.id, Nonce: []byte("nonce-" + s.id)}, nil
}

func (s *fakeServer) CreateSession(_ context.Context, request *Request) ([]byte, error) {
	if s.refuse {
		return nil, errors.New("unauthenticated")
	}
	message := Message(s.id, request.Package, request.Identity, request.Nonce, time.Duration(request.TTLSeconds)*time.Second)
	if !identity.VerifyPersonalMessage(request.PublicKey, message, request.Signature) {
		return nil, errors.New("bad signature")
	}
	return []byte("grant-" + s.id), nil
}

func (s *fakeServer) Revoke(context.Context, []byte) error {
	s.revoked.Add(1)
	return nil
}

func newSigner(t *testing.T) *identity.Ephemeral {
	t.Helper()
	ephemeral, err := identity.GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	t.Cleanup(func() { ephemeral.Close() })
	return ephemeral
}

func manager(t *testing.T, threshold int, servers ...*fakeServer) *Manager {
	t.Helper()
	var endpoints []Endpoint
	for _, server := range servers {
		endpoints = append(endpoints, Endpoint{Server: server, Weight: 1})
	}
	m, err := NewManager(Config{Endpoints: endpoints, Threshold: threshold, Clock: clock.Fake(epoch)})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreateCollectsGrants(t *testing.T) {
	a, b := &fakeServer{id: "a"}, &fakeServer{id: "b", refuse: true}
	signer := newSigner(t)
	token, err := manager(t, 1, a, b).Create(context.Background(), signer, "0x2a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if token.Identity != signer.Address() {
		t.Errorf("Identity = %s, want %s", token.Identity, signer.Address())
	}
	if servers := token.Servers(); len(servers) != 1 || servers[0] != "a" {
		t.Errorf("Servers = %v, want [a]", servers)
	}
	if _, ok := token.GrantFor("b"); ok {
		t.Error("refusing server has a grant")
	}
	if !token.ExpiresAt().Equal(epoch.Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v", token.ExpiresAt())
	}
	if token.Expired(epoch.Add(DefaultTTL - time.Second)) {
		t.Error("token expired before its TTL")
	}
	if !token.Expired(epoch.Add(DefaultTTL)) {
		t.Error("token not expired at its TTL")
	}
}

func TestCreateBelowThresholdIsRejected(t *testing.T) {
	a, b := &fakeServer{id: "a"}, &fakeServer{id: "b", refuse: true}
	_, err := manager(t, 2, a, b).Create(context.Background(), newSigner(t), "0x2a")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", err)
	}
}

func TestCreateHonorsDeadline(t *testing.T) {
	a := &fakeServer{id: "a", hang: true}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := manager(t, 1, a).Create(ctx, newSigner(t), "0x2a")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
}

func TestCloseRevokesHeldGrants(t *testing.T) {
	a, b := &fakeServer{id: "a"}, &fakeServer{id: "b", refuse: true}
	m := manager(t, 1, a, b)
	token, err := m.Create(context.Background(), newSigner(t), "0x2a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.Close(context.Background(), token)
	if a.revoked.Load() != 1 || b.revoked.Load() != 0 {
		t.Fatalf("revocations a=%d b=%d, want 1 and 0", a.revoked.Load(), b.revoked.Load())
	}
}

func TestNewManagerValidation(t *testing.T) {
	a := &fakeServer{id: "a"}
	if _, err := NewManager(Config{}); err == nil {
		t.Error("no endpoints accepted")
	}
	if _, err := NewManager(Config{Endpoints: []Endpoint{{Server: a, Weight: 1}}, Threshold: 2}); err == nil {
		t.Error("threshold above total weight accepted")
	}
	if _, err := NewManager(Config{Endpoints: []Endpoint{{Server: a, Weight: 0}}, Threshold: 1}); err == nil {
		t.Error("zero weight accepted")
	}
	if _, err := NewManager(Config{Endpoints: []Endpoint{{Server: a, Weight: 1}}, Threshold: 1, TTL: time.Millisecond}); err == nil {
		t.Error("sub-second ttl accepted")
	}
}
