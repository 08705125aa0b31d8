// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyserver

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluele/gcache"

	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/sealed"
	"github.com/bureau-foundation/handoff/lib/servicetoken"
	"github.com/bureau-foundation/handoff/lib/session"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

const (
	DefaultChallengeTTL  = 2 * time.Minute
	DefaultMaxSessionTTL = 30 * time.Minute

	maxOutstandingChallenges = 4096
	nonceSize                = 32
)

// ErrUnauthenticated is returned when a session request or grant fails
// verification.
var ErrUnauthenticated = errors.New("keyserver: unauthenticated")

// Config configures a Server.
type Config struct {
	ID string

	// Identity opens this server's sealed shares.
	Identity *sealed.Identity

	// SigningKey signs session grants.
	SigningKey ed25519.PrivateKey

	// Ledger is used to dry-run policy proofs.
	Ledger ledger.Client

	// Package is the only contract package sessions may be scoped to.
	Package ref.ObjectID

	ChallengeTTL  time.Duration
	MaxSessionTTL time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Server is a single key server.
type Server struct {
	id            string
	identity      *sealed.Identity
	signingKey    ed25519.PrivateKey
	publicKey     ed25519.PublicKey
	ledger        ledger.Client
	pkg           ref.ObjectID
	challengeTTL  time.Duration
	maxSessionTTL time.Duration
	clock         clock.Clock
	logger        *slog.Logger

	// challenges maps hex nonce to the address it was issued for.
	challenges gcache.Cache
	revoked    *servicetoken.Revocations
}

// New validates config and returns a Server.
func New(config Config) (*Server, error) {
	switch {
	case config.ID == "":
		return nil, fmt.Errorf("keyserver: empty server id")
	case config.Identity == nil:
		return nil, fmt.Errorf("keyserver: no share identity")
	case len(config.SigningKey) != ed25519.PrivateKeySize:
		return nil, fmt.Errorf("keyserver: signing key has %d bytes", len(config.SigningKey))
	case config.Ledger == nil:
		return nil, fmt.Errorf("keyserver: no ledger client")
	case config.Package.IsZero():
		return nil, fmt.Errorf("keyserver: no package")
	}
	if config.ChallengeTTL == 0 {
		config.ChallengeTTL = DefaultChallengeTTL
	}
	if config.MaxSessionTTL == 0 {
		config.MaxSessionTTL = DefaultMaxSessionTTL
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		id:            config.ID,
		identity:      config.Identity,
		signingKey:    config.SigningKey,
		publicKey:     config.SigningKey.Public().(ed25519.PublicKey),
		ledger:        config.Ledger,
		pkg:           config.Package,
		challengeTTL:  config.ChallengeTTL,
		maxSessionTTL: config.MaxSessionTTL,
		clock:         config.Clock,
		logger:        config.Logger.With("server", config.ID),
		challenges: gcache.New(maxOutstandingChallenges).
			LRU().
			Clock(config.Clock).
			Expiration(config.ChallengeTTL).
			Build(),
		revoked: servicetoken.NewRevocations(),
	}, nil
}

// ID returns the server id.
func (s *Server) ID() string { return s.id }

// Recipient returns the age recipient encrypting parties seal shares
// to.
func (s *Server) Recipient() string { return s.identity.Recipient() }

// GrantKey returns the public half of the grant signing key.
func (s *Server) GrantKey() ed25519.PublicKey { return s.publicKey }

// Challenge issues a single-use nonce for address.
func (s *Server) Challenge(_ context.Context, address ref.Address) (*session.Challenge, error) {
	if address.IsZero() {
		return nil, fmt.Errorf("%w: zero address", ErrUnauthenticated)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keyserver: generating nonce: %w", err)
	}
	if err := s.challenges.Set(hex.EncodeToString(nonce), address); err != nil {
		return nil, fmt.Errorf("keyserver: storing challenge: %w", err)
	}
	return &session.Challenge{
		Server:    s.id,
		Nonce:     nonce,
		ExpiresAt: s.clock.Now().Add(s.challengeTTL).Unix(),
	}, nil
}

// CreateSession verifies a signed challenge and returns a grant.
func (s *Server) CreateSession(_ context.Context, request *session.Request) ([]byte, error) {
	key := hex.EncodeToString(request.Nonce)
	issuedFor, err := s.challenges.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown or expired challenge", ErrUnauthenticated)
	}
	if !s.challenges.Remove(key) {
		return nil, fmt.Errorf("%w: challenge already used", ErrUnauthenticated)
	}
	if issuedFor.(ref.Address) != request.Identity {
		return nil, fmt.Errorf("%w: challenge was issued to a different identity", ErrUnauthenticated)
	}
	if ref.AddressFromPublicKey(request.PublicKey) != request.Identity {
		return nil, fmt.Errorf("%w: public key does not match identity", ErrUnauthenticated)
	}
	if request.Package != s.pkg {
		return nil, fmt.Errorf("%w: package %s is not served here", ErrUnauthenticated, request.Package)
	}
	ttl := time.Duration(request.TTLSeconds) * time.Second
	if ttl <= 0 || ttl > s.maxSessionTTL {
		return nil, fmt.Errorf("%w: session ttl %v outside (0, %v]", ErrUnauthenticated, ttl, s.maxSessionTTL)
	}
	message := session.Message(s.id, request.Package, request.Identity, request.Nonce, ttl)
	if !identity.VerifyPersonalMessage(request.PublicKey, message, request.Signature) {
		return nil, fmt.Errorf("%w: bad signature", ErrUnauthenticated)
	}

	id, err := servicetoken.NewID()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	grant, err := servicetoken.Mint(s.signingKey, &servicetoken.Token{
		Subject:   request.Identity,
		Audience:  s.id,
		Package:   s.pkg,
		ID:        id,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session granted", "identity", request.Identity, "grant", id, "ttl", ttl)
	return grant, nil
}

// Revoke invalidates a grant this server issued.
func (s *Server) Revoke(_ context.Context, grant []byte) error {
	token, err := s.verifyGrant(grant)
	if err != nil {
		return err
	}
	s.revoked.Revoke(token.ID, token.Expiry())
	s.revoked.Prune(s.clock.Now())
	return nil
}

func (s *Server) verifyGrant(grant []byte) (*servicetoken.Token, error) {
	token, err := servicetoken.VerifyForServiceAt(s.publicKey, grant, s.id, s.revoked, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return token, nil
}

// FetchShare releases this server's shares if the grant and policy
// proof check out. Policy and grant failures wrap threshold.ErrDenied
// (grant failures also wrap ErrUnauthenticated); a ledger that cannot
// be reached does not.
func (s *Server) FetchShare(ctx context.Context, request *threshold.ShareRequest) ([]byte, error) {
	deny := func(format string, args ...any) error {
		reason := fmt.Sprintf(format, args...)
		s.logger.Info("share request denied", "access_id", request.AccessID, "reason", reason)
		return fmt.Errorf("%w: %s", threshold.ErrDenied, reason)
	}

	token, err := s.verifyGrant(request.Grant)
	if err != nil {
		s.logger.Info("share request with unusable grant", "access_id", request.AccessID, "error", err)
		return nil, fmt.Errorf("%w: %w", threshold.ErrDenied, err)
	}
	tx, err := ledger.DecodeTransaction(request.PolicyTx)
	if err != nil {
		return nil, deny("policy proof: %v", err)
	}
	if tx.Sender != token.Subject {
		return nil, deny("policy proof sender %s is not the session identity %s", tx.Sender, token.Subject)
	}
	if err := s.checkPolicyShape(tx, request.AccessID); err != nil {
		return nil, deny("%v", err)
	}

	result, err := s.ledger.DryRun(ctx, request.PolicyTx, tx.Sender)
	if err != nil {
		return nil, fmt.Errorf("keyserver: dry-running policy proof: %w", err)
	}
	if !result.Status.Success {
		return nil, deny("policy proof failed: %s", result.Status.Error)
	}

	shares, err := threshold.OpenShares(s.identity, request.Sealed, request.AccessID)
	if err != nil {
		return nil, deny("%v", err)
	}
	reply, err := threshold.SealReply(shares, request.ReplyRecipient)
	if err != nil {
		return nil, fmt.Errorf("keyserver: sealing reply: %w", err)
	}
	s.logger.Info("shares released", "access_id", request.AccessID, "identity", token.Subject, "units", len(shares))
	return reply, nil
}

var accessCheckTarget = ledger.ModuleProject + "::" + ledger.FunctionCheckAccess

func (s *Server) checkPolicyShape(tx *ledger.Transaction, accessID string) error {
	if tx.Package != s.pkg {
		return fmt.Errorf("policy proof targets package %s", tx.Package)
	}
	if len(tx.Commands) != 1 {
		return fmt.Errorf("policy proof has %d commands, want 1", len(tx.Commands))
	}
	command := tx.Commands[0]
	if command.Kind != ledger.KindCall || command.Target != accessCheckTarget {
		return fmt.Errorf("policy proof is %s %s, only %s is allowed", command.Kind, command.Target, accessCheckTarget)
	}
	if len(command.Arguments) != 3 || command.Arguments[2].Kind != ledger.ArgText {
		return fmt.Errorf("policy proof has malformed arguments")
	}
	if command.Arguments[2].Text != accessID {
		return fmt.Errorf("policy proof checks access id %q, not %q", command.Arguments[2].Text, accessID)
	}
	return nil
}
