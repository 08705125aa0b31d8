// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"crypto/ed25519"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseAddress(t *testing.T) {
	valid := "0x" + strings.Repeat("ab", 32)
	tests := []struct {
		input   string
		wantErr bool
	}{
		{valid, false},
		{"0X" + strings.Repeat("AB", 32), false},
		{"", true},
		{"0xAAA", true},
		{strings.Repeat("ab", 32), true},
		{"0x" + strings.Repeat("zz", 32), true},
		{"0x" + strings.Repeat("00", 32), true},
		{valid + "00", true},
	}
	for _, test := range tests {
		_, err := ParseAddress(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseAddress(%q): err=%v, wantErr=%v", test.input, err, test.wantErr)
		}
	}
}

func TestIsCanonicalAddress(t *testing.T) {
	lower := "0x" + strings.Repeat("ab", 32)
	if !IsCanonicalAddress(lower) {
		t.Errorf("IsCanonicalAddress(%q) = false", lower)
	}
	if IsCanonicalAddress("0x" + strings.Repeat("AB", 32)) {
		t.Error("upper-case address reported canonical")
	}
	if IsCanonicalAddress("0xAAA") {
		t.Error("short address reported canonical")
	}
}

func TestAddressFromPublicKeyDeterministic(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	public := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	first := AddressFromPublicKey(public)
	second := AddressFromPublicKey(public)
	if first != second {
		t.Fatal("address derivation is not deterministic")
	}
	if first.IsZero() {
		t.Fatal("derived address is zero")
	}
	if !IsCanonicalAddress(first.String()) {
		t.Fatalf("derived address %q is not canonical", first)
	}

	// The address domain and the transaction domain must not collide
	// on the same input.
	if [32]byte(first) == [32]byte(DigestOf(public)) {
		t.Fatal("address and digest domains produced identical hashes")
	}
}

func TestAddressJSONRoundTrip(t *testing.T) {
	original := MustParseAddress("0x" + strings.Repeat("0f", 32))
	type wrapper struct {
		Owner Address `json:"owner"`
	}
	data, err := json.Marshal(wrapper{Owner: original})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"owner":"0x` + strings.Repeat("0f", 32) + `"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
	var decoded wrapper
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Owner != original {
		t.Errorf("round trip = %v, want %v", decoded.Owner, original)
	}
}

func TestDeriveObjectIDDistinct(t *testing.T) {
	digest := DigestOf([]byte("tx"))
	first := DeriveObjectID(digest, 0)
	second := DeriveObjectID(digest, 1)
	if first == second {
		t.Fatal("distinct creation indexes produced the same object id")
	}
	if _, err := ParseObjectID(first.String()); err != nil {
		t.Fatalf("derived object id does not parse: %v", err)
	}
}

func TestParseObjectID(t *testing.T) {
	for _, valid := range []string{"P1", "0x01", "registry:main", "pkg.v2"} {
		if _, err := ParseObjectID(valid); err != nil {
			t.Errorf("ParseObjectID(%q): %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "has space", "semi;colon", strings.Repeat("a", 129)} {
		if _, err := ParseObjectID(invalid); err == nil {
			t.Errorf("ParseObjectID(%q) succeeded", invalid)
		}
	}
}

func TestObjectTypeRoundTrip(t *testing.T) {
	parsed, err := ParseObjectType("0x2a::project::CreationCap")
	if err != nil {
		t.Fatalf("ParseObjectType: %v", err)
	}
	if parsed.Module != "project" || parsed.Name != "CreationCap" {
		t.Fatalf("parsed = %+v", parsed)
	}
	if parsed.String() != "0x2a::project::CreationCap" {
		t.Errorf("String() = %q", parsed.String())
	}
	for _, invalid := range []string{"project::CreationCap", "0x2a::::Cap", "a::b::c::d"} {
		if _, err := ParseObjectType(invalid); err == nil {
			t.Errorf("ParseObjectType(%q) succeeded", invalid)
		}
	}
}

func TestParseDigest(t *testing.T) {
	digest := DigestOf([]byte("payload"))
	parsed, err := ParseDigest(digest.String())
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if parsed != digest {
		t.Fatal("digest round trip mismatch")
	}
	if _, err := ParseDigest("abc"); err == nil {
		t.Error("short digest accepted")
	}
}

func TestValidateResourceName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"acme", false},
		{"a1-b2", false},
		{"abc", false},
		{"ab", true},
		{strings.Repeat("a", 64), true},
		{"Acme", true},
		{"-acme", true},
		{"acme-", true},
		{"ac.me", true},
		{"ac me", true},
	}
	for _, test := range tests {
		err := ValidateResourceName(test.name)
		if (err != nil) != test.wantErr {
			t.Errorf("ValidateResourceName(%q): err=%v, wantErr=%v", test.name, err, test.wantErr)
		}
	}
}
