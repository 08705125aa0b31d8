// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/handoff/lib/codec"
	"github.com/bureau-foundation/handoff/lib/ref"
)

const signatureSize = ed25519.SignatureSize

// Token is the signed payload of a session grant.
type Token struct {
	// Subject is the identity that proved key control when the session
	// was created. Policy proofs must be sent from this address.
	Subject ref.Address `cbor:"1,keyasint"`

	// Audience is the id of the issuing key server.
	Audience string `cbor:"2,keyasint"`

	// Package scopes the session to one contract package.
	Package ref.ObjectID `cbor:"3,keyasint"`

	// ID is a random hex identifier used for revocation.
	ID string `cbor:"4,keyasint"`

	IssuedAt  int64 `cbor:"5,keyasint"`
	ExpiresAt int64 `cbor:"6,keyasint"`
}

// Expiry returns ExpiresAt as a time.
func (t *Token) Expiry() time.Time { return time.Unix(t.ExpiresAt, 0) }

var (
	ErrTokenTooShort    = errors.New("servicetoken: grant too short for signature")
	ErrInvalidSignature = errors.New("servicetoken: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("servicetoken: grant has expired")
	ErrAudienceMismatch = errors.New("servicetoken: audience does not match")
	ErrTokenRevoked     = errors.New("servicetoken: grant has been revoked")
)

// NewID returns a random 16-byte hex grant id.
func NewID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("servicetoken: generating grant id: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// Mint signs token and returns the wire form.
func Mint(privateKey ed25519.PrivateKey, token *Token) ([]byte, error) {
	payload, err := codec.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("servicetoken: encoding grant payload: %w", err)
	}
	signature := ed25519.Sign(privateKey, payload)
	return append(payload, signature...), nil
}

// VerifyAt checks the signature and expiry of a grant relative to now.
func VerifyAt(publicKey ed25519.PublicKey, grant []byte, now time.Time) (*Token, error) {
	if len(grant) <= signatureSize {
		return nil, ErrTokenTooShort
	}
	split := len(grant) - signatureSize
	payload, signature := grant[:split], grant[split:]
	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("servicetoken: decoding grant payload: %w", err)
	}
	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}
	return &token, nil
}

// VerifyForServiceAt is VerifyAt plus the audience check every key
// server performs and an optional revocation lookup.
func VerifyForServiceAt(publicKey ed25519.PublicKey, grant []byte, audience string, revoked *Revocations, now time.Time) (*Token, error) {
	token, err := VerifyAt(publicKey, grant, now)
	if err != nil {
		return nil, err
	}
	if token.Audience != audience {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, token.Audience, audience)
	}
	if revoked != nil && revoked.IsRevoked(token.ID) {
		return nil, ErrTokenRevoked
	}
	return token, nil
}

// Peek decodes a grant's payload without verifying it. Clients use it
// to read the expiry of grants they hold.
func Peek(grant []byte) (*Token, error) {
	if len(grant) <= signatureSize {
		return nil, ErrTokenTooShort
	}
	var token Token
	if err := codec.Unmarshal(grant[:len(grant)-signatureSize], &token); err != nil {
		return nil, fmt.Errorf("servicetoken: decoding grant payload: %w", err)
	}
	return &token, nil
}
