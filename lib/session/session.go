// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session establishes time-limited decryption sessions with a
// set of key servers on behalf of one identity.
//
// Each server hands out a single-use challenge; the identity signs a
// personal message binding the challenge to the server, the contract
// package, and the requested lifetime; the server answers with a
// signed grant. A session is usable when the servers that granted it
// carry at least the threshold weight.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// DefaultTTL is the session lifetime when Config.TTL is zero.
const DefaultTTL = 10 * time.Minute

// ErrRejected is returned when the granting servers fall short of the
// threshold weight.
var ErrRejected = errors.New("session: rejected by key servers")

// Challenge is a server nonce the identity must sign.
type Challenge struct {
	Server    string `cbor:"1,keyasint"`
	Nonce     []byte `cbor:"2,keyasint"`
	ExpiresAt int64  `cbor:"3,keyasint"`
}

// Request asks a server to open a session for Identity.
type Request struct {
	Identity   ref.Address  `cbor:"1,keyasint"`
	Package    ref.ObjectID `cbor:"2,keyasint"`
	Nonce      []byte       `cbor:"3,keyasint"`
	TTLSeconds int64        `cbor:"4,keyasint"`
	PublicKey  []byte       `cbor:"5,keyasint"`
	Signature  []byte       `cbor:"6,keyasint"`
}

// Message is the personal message an identity signs to open a session
// with server. Both sides must build it identically.
func Message(server string, pkg ref.ObjectID, address ref.Address, nonce []byte, ttl time.Duration) []byte {
	return fmt.Appendf(nil, "handoff session grant\nserver: %s\npackage: %s\nidentity: %s\nnonce: %x\nttl: %d\n",
		server, pkg, address, nonce, int64(ttl/time.Second))
}

// Server is the session half of a key server client.
type Server interface {
	ID() string
	Challenge(ctx context.Context, address ref.Address) (*Challenge, error)
	CreateSession(ctx context.Context, request *Request) ([]byte, error)

	// Revoke invalidates a grant the server issued. Possession of the
	// grant authorizes revoking it.
	Revoke(ctx context.Context, grant []byte) error
}

// Endpoint is a server and its share weight.
type Endpoint struct {
	Server Server
	Weight int
}

// Signer is the identity a session is opened for.
type Signer interface {
	Address() ref.Address
	SignPersonalMessage(message []byte) (identity.Signature, error)
}

// Config configures a Manager.
type Config struct {
	Endpoints []Endpoint

	// Threshold is the total weight of servers that must grant.
	Threshold int

	TTL    time.Duration
	Clock  clock.Clock
	Logger *slog.Logger
}

// Token is an established session: the identity, its lifetime, and
// the grants of every server that accepted it.
type Token struct {
	Identity ref.Address
	Package  ref.ObjectID
	IssuedAt time.Time
	TTL      time.Duration

	grants map[string][]byte
}

// GrantFor returns the grant issued by serverID.
func (t *Token) GrantFor(serverID string) ([]byte, bool) {
	grant, ok := t.grants[serverID]
	return grant, ok
}

// Servers lists the servers that granted the session, sorted.
func (t *Token) Servers() []string {
	servers := make([]string, 0, len(t.grants))
	for id := range t.grants {
		servers = append(servers, id)
	}
	sort.Strings(servers)
	return servers
}

// ExpiresAt is IssuedAt + TTL.
func (t *Token) ExpiresAt() time.Time { return t.IssuedAt.Add(t.TTL) }

// Expired reports whether the session has lapsed at now.
func (t *Token) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt()) }

// Manager opens and closes sessions.
type Manager struct {
	endpoints []Endpoint
	threshold int
	ttl       time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// NewManager validates config and returns a Manager.
func NewManager(config Config) (*Manager, error) {
	if len(config.Endpoints) == 0 {
		return nil, fmt.Errorf("session: no key servers configured")
	}
	total := 0
	for _, endpoint := range config.Endpoints {
		if endpoint.Weight <= 0 {
			return nil, fmt.Errorf("session: server %q has non-positive weight", endpoint.Server.ID())
		}
		total += endpoint.Weight
	}
	if config.Threshold < 1 || config.Threshold > total {
		return nil, fmt.Errorf("session: threshold %d outside 1..%d", config.Threshold, total)
	}
	ttl := config.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < time.Second {
		return nil, fmt.Errorf("session: ttl %v below one second", ttl)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		endpoints: config.Endpoints,
		threshold: config.Threshold,
		ttl:       ttl,
		clock:     config.Clock,
		logger:    config.Logger,
	}, nil
}

// TTL returns the lifetime requested for new sessions.
func (m *Manager) TTL() time.Duration { return m.ttl }

type grantResult struct {
	server string
	weight int
	grant  []byte
	err    error
}

// Create opens a session for signer scoped to pkg. Every server is
// asked in parallel; Create returns once all have answered.
func (m *Manager) Create(ctx context.Context, signer Signer, pkg ref.ObjectID) (*Token, error) {
	issuedAt := m.clock.Now()
	results := make(chan grantResult, len(m.endpoints))
	for _, endpoint := range m.endpoints {
		go func() {
			grant, err := m.open(ctx, endpoint.Server, signer, pkg)
			results <- grantResult{server: endpoint.Server.ID(), weight: endpoint.Weight, grant: grant, err: err}
		}()
	}

	token := &Token{
		Identity: signer.Address(),
		Package:  pkg,
		IssuedAt: issuedAt,
		TTL:      m.ttl,
		grants:   make(map[string][]byte),
	}
	accepted := 0
	var refusals []error
	for range m.endpoints {
		result := <-results
		if result.err != nil {
			m.logger.Warn("key server refused session", "server", result.server, "error", result.err)
			refusals = append(refusals, fmt.Errorf("%s: %w", result.server, result.err))
			continue
		}
		token.grants[result.server] = result.grant
		accepted += result.weight
	}

	if accepted < m.threshold {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		return nil, fmt.Errorf("%w: weight %d of %d granted: %w",
			ErrRejected, accepted, m.threshold, errors.Join(refusals...))
	}
	m.logger.Info("session established",
		"identity", token.Identity,
		"servers", len(token.grants),
		"expires_at", token.ExpiresAt(),
	)
	return token, nil
}

func (m *Manager) open(ctx context.Context, server Server, signer Signer, pkg ref.ObjectID) ([]byte, error) {
	challenge, err := server.Challenge(ctx, signer.Address())
	if err != nil {
		return nil, fmt.Errorf("requesting challenge: %w", err)
	}
	message := Message(server.ID(), pkg, signer.Address(), challenge.Nonce, m.ttl)
	signature, err := signer.SignPersonalMessage(message)
	if err != nil {
		return nil, fmt.Errorf("signing challenge: %w", err)
	}
	return server.CreateSession(ctx, &Request{
		Identity:   signer.Address(),
		Package:    pkg,
		Nonce:      challenge.Nonce,
		TTLSeconds: int64(m.ttl / time.Second),
		PublicKey:  signature.PublicKey,
		Signature:  signature.Bytes,
	})
}

// Close revokes every grant in token. Errors are logged, not returned:
// grants expire on their own.
func (m *Manager) Close(ctx context.Context, token *Token) {
	for _, endpoint := range m.endpoints {
		grant, ok := token.GrantFor(endpoint.Server.ID())
		if !ok {
			continue
		}
		if err := endpoint.Server.Revoke(ctx, grant); err != nil {
			m.logger.Debug("revoking session grant failed", "server", endpoint.Server.ID(), "error", err)
		}
	}
}
