// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/secret"
)

// secretPrefix marks the text encoding of an exported seed.
const secretPrefix = "ed25519:"

// Domain prefixes keep a signature made for one purpose from being
// replayed for another.
var (
	transactionPrefix     = []byte("handoff.transaction\x00")
	personalMessagePrefix = []byte("handoff.personal-message\x00")
)

var (
	// ErrClosed is returned when signing with an identity whose seed
	// has already been released.
	ErrClosed = errors.New("identity: identity is closed")

	// ErrMalformedSecret is returned when a secret is neither a raw
	// 32-byte seed nor the ed25519: text form.
	ErrMalformedSecret = errors.New("identity: malformed secret")
)

// Signature is an Ed25519 signature together with the public key that
// produced it. The ledger derives the sender address from PublicKey.
type Signature struct {
	PublicKey ed25519.PublicKey
	Bytes     []byte
}

// keypair is the shared implementation behind the role types.
type keypair struct {
	seed    *secret.Buffer
	public  ed25519.PublicKey
	address ref.Address
}

func generate() (keypair, error) {
	seed, err := secret.New(ed25519.SeedSize)
	if err != nil {
		return keypair{}, fmt.Errorf("identity: allocating seed: %w", err)
	}
	if _, err := rand.Read(seed.Bytes()); err != nil {
		seed.Close()
		return keypair{}, fmt.Errorf("identity: generating seed: %w", err)
	}
	return fromSeed(seed), nil
}

// fromSeed takes ownership of seed.
func fromSeed(seed *secret.Buffer) keypair {
	private := ed25519.NewKeyFromSeed(seed.Bytes())
	public := private.Public().(ed25519.PublicKey)
	secret.Zero(private)
	return keypair{
		seed:    seed,
		public:  public,
		address: ref.AddressFromPublicKey(public),
	}
}

func (k *keypair) sign(prefix, message []byte) (Signature, error) {
	if k.seed == nil || k.seed.Closed() {
		return Signature{}, ErrClosed
	}
	private := ed25519.NewKeyFromSeed(k.seed.Bytes())
	defer secret.Zero(private)

	payload := make([]byte, 0, len(prefix)+len(message))
	payload = append(payload, prefix...)
	payload = append(payload, message...)
	return Signature{
		PublicKey: k.public,
		Bytes:     ed25519.Sign(private, payload),
	}, nil
}

func (k *keypair) signTransaction(txBytes []byte) (Signature, error) {
	digest := ref.DigestOf(txBytes)
	return k.sign(transactionPrefix, digest[:])
}

func (k *keypair) close() error {
	if k.seed == nil {
		return nil
	}
	return k.seed.Close()
}

// VerifyTransaction checks a transaction signature against the
// serialized transaction it claims to cover.
func VerifyTransaction(publicKey ed25519.PublicKey, txBytes, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	digest := ref.DigestOf(txBytes)
	return ed25519.Verify(publicKey, append(append([]byte{}, transactionPrefix...), digest[:]...), signature)
}

// VerifyPersonalMessage checks a signature produced by
// [Ephemeral.SignPersonalMessage].
func VerifyPersonalMessage(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, append(append([]byte{}, personalMessagePrefix...), message...), signature)
}

// ParseSeed moves a secret into a seed buffer. The input is either a
// raw 32-byte seed or the ed25519: text form, possibly surrounded by
// whitespace. The input buffer is always closed.
func ParseSeed(input *secret.Buffer) (*secret.Buffer, error) {
	defer input.Close()

	raw := input.Bytes()
	if len(raw) == ed25519.SeedSize {
		return input.Clone()
	}

	trimmed := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(trimmed, []byte(secretPrefix)) {
		return nil, ErrMalformedSecret
	}
	encoded := trimmed[len(secretPrefix):]
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(decoded, encoded)
	if err != nil || n != ed25519.SeedSize {
		secret.Zero(decoded)
		return nil, ErrMalformedSecret
	}
	return secret.NewFromBytes(decoded[:n])
}

// encodeSecret renders a seed in the ed25519: text form.
func encodeSecret(seed *secret.Buffer) (*secret.Buffer, error) {
	encoded := make([]byte, len(secretPrefix)+base64.StdEncoding.EncodedLen(seed.Len()))
	copy(encoded, secretPrefix)
	base64.StdEncoding.Encode(encoded[len(secretPrefix):], seed.Bytes())
	return secret.NewFromBytes(encoded)
}
