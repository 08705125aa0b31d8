// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// grantLeeway absorbs clock skew between the grant issuer and this
// server.
const grantLeeway = 30 * time.Second

// ErrGrantInvalid is wrapped by every grant verification failure.
var ErrGrantInvalid = errors.New("api: invalid grant")

// GrantVerifier checks bearer grants.
type GrantVerifier struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey

	// Clock defaults to the real clock.
	Clock clock.Clock
}

// Grant is a verified bearer grant.
type Grant struct {
	ID        string
	Subject   ref.Address
	ExpiresAt time.Time
}

// Verify parses token and checks its signature, issuer, audience,
// expiry, and subject.
func (v *GrantVerifier) Verify(token string) (*Grant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: no token", ErrGrantInvalid)
	}
	if v.Issuer == "" || v.Audience == "" || len(v.Key) != ed25519.PublicKeySize {
		return nil, errors.New("api: grant verifier is not configured")
	}
	now := time.Now
	if v.Clock != nil {
		now = v.Clock.Now
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return v.Key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(v.Issuer),
		jwt.WithAudience(v.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(grantLeeway),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGrantInvalid, err)
	}
	subject, err := ref.ParseAddress(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject: %w", ErrGrantInvalid, err)
	}
	return &Grant{ID: claims.ID, Subject: subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// SignGrant issues a grant for subject valid from issuedAt for ttl.
// Production grants come from the caller's identity provider; this is
// for development networks and tests.
func SignGrant(key ed25519.PrivateKey, issuer, audience string, subject ref.Address, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		Subject:   subject.String(),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
