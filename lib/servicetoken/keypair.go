// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bureau-foundation/handoff/lib/secret"
)

// LoadOrGenerateSigningKey reads a 32-byte Ed25519 seed from path, or
// creates one with mode 0600 if the file does not exist. Reports
// whether a new key was generated.
func LoadOrGenerateSigningKey(path string) (ed25519.PrivateKey, bool, error) {
	seed, err := os.ReadFile(path)
	if err == nil {
		defer secret.Zero(seed)
		if len(seed) != ed25519.SeedSize {
			return nil, false, fmt.Errorf("signing key %s has %d bytes, want %d", path, len(seed), ed25519.SeedSize)
		}
		return ed25519.NewKeyFromSeed(seed), false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("reading signing key: %w", err)
	}

	seed = make([]byte, ed25519.SeedSize)
	defer secret.Zero(seed)
	if _, err := rand.Read(seed); err != nil {
		return nil, false, fmt.Errorf("generating signing key: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, false, fmt.Errorf("creating signing key: %w", err)
	}
	if _, err := file.Write(seed); err != nil {
		file.Close()
		return nil, false, fmt.Errorf("writing signing key: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, false, fmt.Errorf("writing signing key: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), true, nil
}
