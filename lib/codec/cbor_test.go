// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"testing"
)

type sampleCall struct {
	Target string   `cbor:"1,keyasint"`
	Args   []string `cbor:"2,keyasint,omitempty"`
	Amount uint64   `cbor:"3,keyasint,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": 2, "mid": []string{"a", "b"}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("map encoding is not deterministic")
		}
	}
}

func TestUnmarshalCanonical(t *testing.T) {
	data, err := Marshal(sampleCall{Target: "project::check_access", Args: []string{"0x01"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleCall
	if err := UnmarshalCanonical(data, &decoded); err != nil {
		t.Fatalf("UnmarshalCanonical: %v", err)
	}
	if decoded.Target != "project::check_access" {
		t.Errorf("Target = %q", decoded.Target)
	}
}

func TestUnmarshalCanonical_RejectsUnknownField(t *testing.T) {
	data, err := Marshal(map[int]any{1: "project::check_access", 9: "smuggled"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleCall
	if err := UnmarshalCanonical(data, &decoded); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}

	// The lenient decoder accepts the same bytes.
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
}

func TestUnmarshalCanonical_RejectsNonMinimalEncoding(t *testing.T) {
	// {3: 1} with the integer 1 encoded in two bytes (0x18 0x01)
	// instead of the minimal single byte.
	data := []byte{0xa1, 0x03, 0x18, 0x01}

	var decoded sampleCall
	err := UnmarshalCanonical(data, &decoded)
	if !errors.Is(err, ErrNotCanonical) {
		t.Fatalf("err = %v, want ErrNotCanonical", err)
	}
}
