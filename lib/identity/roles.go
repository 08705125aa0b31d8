// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"fmt"

	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/secret"
)

// Admin is the operator identity that owns the admin capability and
// the project record before handoff.
type Admin struct{ key keypair }

// LoadAdmin builds the admin identity from a secret read from disk or
// a terminal. The input buffer is consumed.
func LoadAdmin(input *secret.Buffer) (*Admin, error) {
	seed, err := ParseSeed(input)
	if err != nil {
		return nil, fmt.Errorf("loading admin identity: %w", err)
	}
	return &Admin{key: fromSeed(seed)}, nil
}

// Address returns the admin's ledger address.
func (a *Admin) Address() ref.Address { return a.key.address }

// SignTransaction signs serialized transaction bytes.
func (a *Admin) SignTransaction(txBytes []byte) (Signature, error) {
	return a.key.signTransaction(txBytes)
}

// Close releases the seed.
func (a *Admin) Close() error { return a.key.close() }

// Ephemeral is a single-run identity. It is never written to durable
// storage by this module; ExportSecret hands a copy to the caller.
type Ephemeral struct{ key keypair }

// GenerateEphemeral creates a fresh ephemeral identity from the system
// random source.
func GenerateEphemeral() (*Ephemeral, error) {
	key, err := generate()
	if err != nil {
		return nil, err
	}
	return &Ephemeral{key: key}, nil
}

// LoadEphemeral restores an ephemeral identity a caller retained, for
// example to act on a stranded capability. The input buffer is
// consumed.
func LoadEphemeral(input *secret.Buffer) (*Ephemeral, error) {
	seed, err := ParseSeed(input)
	if err != nil {
		return nil, fmt.Errorf("loading ephemeral identity: %w", err)
	}
	return &Ephemeral{key: fromSeed(seed)}, nil
}

// Address returns the ephemeral identity's ledger address.
func (e *Ephemeral) Address() ref.Address { return e.key.address }

// SignTransaction signs serialized transaction bytes.
func (e *Ephemeral) SignTransaction(txBytes []byte) (Signature, error) {
	return e.key.signTransaction(txBytes)
}

// SignPersonalMessage signs an off-ledger message such as a session
// challenge. The signature can never verify as a transaction
// signature.
func (e *Ephemeral) SignPersonalMessage(message []byte) (Signature, error) {
	return e.key.sign(personalMessagePrefix, message)
}

// ExportSecret returns the seed in ed25519: text form. The caller owns
// the returned buffer and must close it.
func (e *Ephemeral) ExportSecret() (*secret.Buffer, error) {
	if e.key.seed == nil || e.key.seed.Closed() {
		return nil, ErrClosed
	}
	return encodeSecret(e.key.seed)
}

// Close releases the seed.
func (e *Ephemeral) Close() error { return e.key.close() }

// Holder is the identity recovered from the threshold-encrypted
// credential. It becomes the project's owner.
type Holder struct{ key keypair }

// RecoverHolder builds the holder identity from decrypted credential
// plaintext. The plaintext buffer is consumed.
func RecoverHolder(plaintext *secret.Buffer) (*Holder, error) {
	seed, err := ParseSeed(plaintext)
	if err != nil {
		return nil, fmt.Errorf("recovering holder identity: %w", err)
	}
	return &Holder{key: fromSeed(seed)}, nil
}

// Address returns the holder's ledger address.
func (h *Holder) Address() ref.Address { return h.key.address }

// SignTransaction signs serialized transaction bytes.
func (h *Holder) SignTransaction(txBytes []byte) (Signature, error) {
	return h.key.signTransaction(txBytes)
}

// Close releases the seed.
func (h *Holder) Close() error { return h.key.close() }

// Generate creates a raw seed for a new long-lived identity (admin or
// holder credential). The caller owns the returned buffer.
func Generate() (*secret.Buffer, ref.Address, error) {
	key, err := generate()
	if err != nil {
		return nil, ref.Address{}, err
	}
	return key.seed, key.address, nil
}

// EncodeSecret renders a raw seed in ed25519: text form.
func EncodeSecret(seed *secret.Buffer) (*secret.Buffer, error) {
	return encodeSecret(seed)
}

// AddressOfSeed derives the address controlled by a raw seed without
// taking ownership of it.
func AddressOfSeed(seed *secret.Buffer) (ref.Address, error) {
	if seed.Len() != 32 {
		return ref.Address{}, ErrMalformedSecret
	}
	clone, err := seed.Clone()
	if err != nil {
		return ref.Address{}, err
	}
	key := fromSeed(clone)
	defer key.close()
	return key.address, nil
}
