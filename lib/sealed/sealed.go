// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/bureau-foundation/handoff/lib/secret"
)

// ErrNoRecipients is returned by Seal when called without recipients.
var ErrNoRecipients = errors.New("sealed: at least one recipient is required")

// Keypair holds an age X25519 keypair. The private key lives in a
// secret.Buffer; the public key is safe to publish.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... string.
	PrivateKey *secret.Buffer

	// PublicKey is the age1... recipient string.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age X25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// identity.String() leaves a heap copy behind; the mmap buffer is
	// the durable copy.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Seal encrypts plaintext to every recipient (age1... strings). Any one
// of the matching identities can open the result.
func Seal(plaintext []byte, recipientKeys ...string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, ErrNoRecipients
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Identity is a parsed age identity ready to open many ciphertexts.
// Servers parse their key once at startup instead of per request.
type Identity struct {
	inner *age.X25519Identity
}

// LoadIdentity parses a private key. The buffer is borrowed, not
// closed.
func LoadIdentity(privateKey *secret.Buffer) (*Identity, error) {
	identity, err := age.ParseX25519Identity(privateKey.Reveal())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &Identity{inner: identity}, nil
}

// Recipient returns the public key matching this identity.
func (i *Identity) Recipient() string { return i.inner.Recipient().String() }

// Open decrypts age ciphertext. The caller must close the returned
// buffer.
func (i *Identity) Open(ciphertext []byte) (*secret.Buffer, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), i.inner)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("decrypted plaintext is empty")
	}
	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

// Open is a one-shot LoadIdentity followed by Identity.Open.
func Open(ciphertext []byte, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := LoadIdentity(privateKey)
	if err != nil {
		return nil, err
	}
	return identity.Open(ciphertext)
}

// ParsePublicKey validates an age public key string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// ParsePrivateKey validates an age private key held in a buffer.
func ParsePrivateKey(privateKey *secret.Buffer) error {
	if _, err := age.ParseX25519Identity(privateKey.Reveal()); err != nil {
		return fmt.Errorf("invalid age private key: %w", err)
	}
	return nil
}

// Armor returns the standard base64 text form of ciphertext.
func Armor(ciphertext []byte) string {
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// Dearmor reverses Armor.
func Dearmor(text string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}
	return ciphertext, nil
}
