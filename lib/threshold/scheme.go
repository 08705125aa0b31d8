// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package threshold

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/group"
	"github.com/cloudflare/circl/secretsharing"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/handoff/lib/codec"
	"github.com/bureau-foundation/handoff/lib/sealed"
	"github.com/bureau-foundation/handoff/lib/secret"
)

// schemeVersion is bumped on any incompatible change to the envelope
// or the key derivation.
const schemeVersion = 1

// maxShareUnits bounds the total server weight.
const maxShareUnits = 255

var suite = group.Ristretto255

var (
	ErrAccessDenied        = errors.New("threshold: access denied")
	ErrQuorumUnreachable   = errors.New("threshold: quorum unreachable")
	ErrDecryptionMalformed = errors.New("threshold: decryption malformed")
)

// Server describes one decryption server as configured by the
// encrypting party.
type Server struct {
	ID string

	// Recipient is the server's age public key.
	Recipient string

	// Weight is the number of share units the server holds.
	Weight int
}

// SealedShares is one server's slice of the key shares, sealed to that
// server.
type SealedShares struct {
	Server string `cbor:"1,keyasint"`
	Sealed []byte `cbor:"2,keyasint"`
}

// Ciphertext is the threshold-encrypted envelope.
type Ciphertext struct {
	Version   uint8          `cbor:"1,keyasint"`
	AccessID  string         `cbor:"2,keyasint"`
	Threshold uint16         `cbor:"3,keyasint"`
	Nonce     []byte         `cbor:"4,keyasint"`
	Payload   []byte         `cbor:"5,keyasint"`
	Shares    []SealedShares `cbor:"6,keyasint"`
}

// Marshal encodes the envelope.
func (c *Ciphertext) Marshal() ([]byte, error) { return codec.Marshal(c) }

// ParseCiphertext decodes an envelope produced by Marshal.
func ParseCiphertext(data []byte) (*Ciphertext, error) {
	var ciphertext Ciphertext
	if err := codec.Unmarshal(data, &ciphertext); err != nil {
		return nil, fmt.Errorf("threshold: decoding ciphertext: %w", err)
	}
	if ciphertext.Version != schemeVersion {
		return nil, fmt.Errorf("threshold: unsupported ciphertext version %d", ciphertext.Version)
	}
	if ciphertext.Threshold == 0 {
		return nil, fmt.Errorf("threshold: ciphertext has zero threshold")
	}
	return &ciphertext, nil
}

// shareBundle is what a server finds when it opens its sealed shares.
// The access id ties the shares to the policy the server enforces.
type shareBundle struct {
	AccessID string  `cbor:"1,keyasint"`
	Shares   []Share `cbor:"2,keyasint"`
}

// Share is one Shamir share of the data-key scalar.
type Share struct {
	ID    []byte `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// Encrypt threshold-encrypts plaintext for accessID across servers.
// Any threshold share units suffice to decrypt.
func Encrypt(plaintext []byte, accessID string, servers []Server, threshold int) (*Ciphertext, error) {
	if accessID == "" {
		return nil, fmt.Errorf("threshold: empty access id")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("threshold: empty plaintext")
	}
	units := 0
	seen := make(map[string]bool, len(servers))
	for _, server := range servers {
		if server.Weight <= 0 {
			return nil, fmt.Errorf("threshold: server %q has non-positive weight %d", server.ID, server.Weight)
		}
		if seen[server.ID] {
			return nil, fmt.Errorf("threshold: duplicate server %q", server.ID)
		}
		seen[server.ID] = true
		units += server.Weight
	}
	if units > maxShareUnits {
		return nil, fmt.Errorf("threshold: total weight %d exceeds %d", units, maxShareUnits)
	}
	if threshold < 1 || threshold > units {
		return nil, fmt.Errorf("threshold: threshold %d outside 1..%d", threshold, units)
	}

	scalar := suite.RandomScalar(rand.Reader)
	key, err := deriveKey(scalar, accessID)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("threshold: creating AEAD: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("threshold: generating nonce: %w", err)
	}

	// circl's t is the polynomial degree: t+1 shares recover.
	shares := secretsharing.New(rand.Reader, uint(threshold-1), scalar).Share(uint(units))

	ciphertext := &Ciphertext{
		Version:   schemeVersion,
		AccessID:  accessID,
		Threshold: uint16(threshold),
		Nonce:     nonce,
		Payload:   aead.Seal(nil, nonce, plaintext, []byte(accessID)),
	}
	next := 0
	for _, server := range servers {
		encoded := make([]Share, 0, server.Weight)
		for range server.Weight {
			share, err := encodeShare(shares[next])
			if err != nil {
				return nil, err
			}
			encoded = append(encoded, share)
			next++
		}
		plain, err := codec.Marshal(shareBundle{AccessID: accessID, Shares: encoded})
		if err != nil {
			return nil, fmt.Errorf("threshold: encoding shares for %q: %w", server.ID, err)
		}
		sealedShares, err := sealed.Seal(plain, server.Recipient)
		secret.Zero(plain)
		if err != nil {
			return nil, fmt.Errorf("threshold: sealing shares for %q: %w", server.ID, err)
		}
		ciphertext.Shares = append(ciphertext.Shares, SealedShares{Server: server.ID, Sealed: sealedShares})
	}
	return ciphertext, nil
}

// Combine recovers the plaintext from at least Threshold distinct
// shares. The caller must close the returned buffer.
func Combine(ciphertext *Ciphertext, shares []Share) (*secret.Buffer, error) {
	threshold := int(ciphertext.Threshold)
	decoded := make([]secretsharing.Share, 0, len(shares))
	seen := make(map[string]bool, len(shares))
	for _, share := range shares {
		if seen[string(share.ID)] {
			continue
		}
		parsed, err := decodeShare(share)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionMalformed, err)
		}
		seen[string(share.ID)] = true
		decoded = append(decoded, parsed)
	}
	if len(decoded) < threshold {
		return nil, fmt.Errorf("%w: %d distinct shares, threshold %d", ErrQuorumUnreachable, len(decoded), threshold)
	}

	scalar, err := secretsharing.Recover(uint(threshold-1), decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: recovering key: %v", ErrDecryptionMalformed, err)
	}
	key, err := deriveKey(scalar, ciphertext.AccessID)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("threshold: creating AEAD: %w", err)
	}
	if len(ciphertext.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce is %d bytes", ErrDecryptionMalformed, len(ciphertext.Nonce))
	}
	plaintext, err := aead.Open(nil, ciphertext.Nonce, ciphertext.Payload, []byte(ciphertext.AccessID))
	if err != nil {
		return nil, fmt.Errorf("%w: payload integrity check failed", ErrDecryptionMalformed)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecryptionMalformed)
	}
	return secret.NewFromBytes(plaintext)
}

func deriveKey(scalar group.Scalar, accessID string) ([]byte, error) {
	material, err := scalar.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("threshold: encoding scalar: %w", err)
	}
	defer secret.Zero(material)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, []byte(accessID)), key); err != nil {
		return nil, fmt.Errorf("threshold: deriving key: %w", err)
	}
	return key, nil
}

func encodeShare(share secretsharing.Share) (Share, error) {
	id, err := share.ID.MarshalBinary()
	if err != nil {
		return Share{}, fmt.Errorf("threshold: encoding share id: %w", err)
	}
	value, err := share.Value.MarshalBinary()
	if err != nil {
		return Share{}, fmt.Errorf("threshold: encoding share value: %w", err)
	}
	return Share{ID: id, Value: value}, nil
}

func decodeShare(share Share) (secretsharing.Share, error) {
	id := suite.NewScalar()
	if err := id.UnmarshalBinary(share.ID); err != nil {
		return secretsharing.Share{}, fmt.Errorf("decoding share id: %w", err)
	}
	value := suite.NewScalar()
	if err := value.UnmarshalBinary(share.Value); err != nil {
		return secretsharing.Share{}, fmt.Errorf("decoding share value: %w", err)
	}
	return secretsharing.Share{ID: id, Value: value}, nil
}

// OpenShares is run by a decryption server to open its own slice of a
// ciphertext's shares. It fails unless the shares were sealed for
// accessID.
func OpenShares(identity *sealed.Identity, sealedShares []byte, accessID string) ([]Share, error) {
	plain, err := identity.Open(sealedShares)
	if err != nil {
		return nil, fmt.Errorf("threshold: opening shares: %w", err)
	}
	defer plain.Close()
	var bundle shareBundle
	if err := codec.Unmarshal(plain.Bytes(), &bundle); err != nil {
		return nil, fmt.Errorf("threshold: decoding shares: %w", err)
	}
	if bundle.AccessID != accessID {
		return nil, fmt.Errorf("threshold: shares are sealed for access id %q, not %q", bundle.AccessID, accessID)
	}
	return bundle.Shares, nil
}

// SharesFor returns the sealed shares addressed to serverID.
func (c *Ciphertext) SharesFor(serverID string) ([]byte, bool) {
	for _, entry := range c.Shares {
		if entry.Server == serverID {
			return entry.Sealed, true
		}
	}
	return nil, false
}
