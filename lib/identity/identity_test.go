// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/handoff/lib/secret"
)

func TestEphemeralSignaturesAreDomainSeparated(t *testing.T) {
	ephemeral, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	defer ephemeral.Close()

	message := []byte("challenge bytes")
	personal, err := ephemeral.SignPersonalMessage(message)
	if err != nil {
		t.Fatalf("SignPersonalMessage: %v", err)
	}
	if !VerifyPersonalMessage(personal.PublicKey, message, personal.Bytes) {
		t.Fatal("personal message signature does not verify")
	}
	if VerifyTransaction(personal.PublicKey, message, personal.Bytes) {
		t.Fatal("personal message signature verified as a transaction signature")
	}

	transaction, err := ephemeral.SignTransaction(message)
	if err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}
	if !VerifyTransaction(transaction.PublicKey, message, transaction.Bytes) {
		t.Fatal("transaction signature does not verify")
	}
	if VerifyPersonalMessage(transaction.PublicKey, message, transaction.Bytes) {
		t.Fatal("transaction signature verified as a personal message")
	}
}

func TestExportSecretRecoversSameAddress(t *testing.T) {
	ephemeral, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	defer ephemeral.Close()

	exported, err := ephemeral.ExportSecret()
	if err != nil {
		t.Fatalf("ExportSecret: %v", err)
	}
	if !strings.HasPrefix(exported.Reveal(), "ed25519:") {
		t.Fatal("exported secret is not in ed25519: form")
	}

	holder, err := RecoverHolder(exported)
	if err != nil {
		t.Fatalf("RecoverHolder: %v", err)
	}
	defer holder.Close()
	if holder.Address() != ephemeral.Address() {
		t.Fatalf("recovered address %s, want %s", holder.Address(), ephemeral.Address())
	}
	if !exported.Closed() {
		t.Fatal("RecoverHolder did not consume its input")
	}
}

func TestLoadEphemeralRestoresExportedSecret(t *testing.T) {
	ephemeral, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	defer ephemeral.Close()
	exported, err := ephemeral.ExportSecret()
	if err != nil {
		t.Fatalf("ExportSecret: %v", err)
	}

	restored, err := LoadEphemeral(exported)
	if err != nil {
		t.Fatalf("LoadEphemeral: %v", err)
	}
	defer restored.Close()
	if restored.Address() != ephemeral.Address() {
		t.Errorf("restored address %s, want %s", restored.Address(), ephemeral.Address())
	}
	message := []byte("challenge")
	original, err := ephemeral.SignPersonalMessage(message)
	if err != nil {
		t.Fatalf("SignPersonalMessage: %v", err)
	}
	again, err := restored.SignPersonalMessage(message)
	if err != nil {
		t.Fatalf("SignPersonalMessage(restored): %v", err)
	}
	if !bytes.Equal(original.Bytes, again.Bytes) || !original.PublicKey.Equal(again.PublicKey) {
		t.Error("restored identity signs differently")
	}
}

func TestRecoverHolderFromRawSeed(t *testing.T) {
	seed, address, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	holder, err := RecoverHolder(seed)
	if err != nil {
		t.Fatalf("RecoverHolder: %v", err)
	}
	defer holder.Close()
	if holder.Address() != address {
		t.Fatalf("holder address %s, want %s", holder.Address(), address)
	}
}

func TestParseSeedRejectsMalformed(t *testing.T) {
	for _, input := range []string{"not a key", "ed25519:!!!!", "ed25519:AAAA"} {
		buffer, err := secret.NewFromBytes([]byte(input))
		if err != nil {
			t.Fatalf("NewFromBytes: %v", err)
		}
		if _, err := ParseSeed(buffer); !errors.Is(err, ErrMalformedSecret) {
			t.Errorf("ParseSeed(%q) error = %v, want ErrMalformedSecret", input, err)
		}
	}
}

func TestSignAfterCloseFails(t *testing.T) {
	ephemeral, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	ephemeral.Close()
	if _, err := ephemeral.SignTransaction([]byte("tx")); !errors.Is(err, ErrClosed) {
		t.Fatalf("SignTransaction after Close: err=%v, want ErrClosed", err)
	}
	if _, err := ephemeral.ExportSecret(); !errors.Is(err, ErrClosed) {
		t.Fatalf("ExportSecret after Close: err=%v, want ErrClosed", err)
	}
}
