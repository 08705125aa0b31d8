// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// addressHexLength is the number of hex characters after the "0x"
// prefix in a canonical address.
const addressHexLength = 64

// Address is a 32-byte ledger account address. The zero value is the
// "null" address and is never a valid sender or recipient; use IsZero
// to check.
type Address [32]byte

// ParseAddress parses a "0x"-prefixed, 64-hex-character address. Hex
// digits may be upper or lower case; the parsed value always formats
// in lower case.
func ParseAddress(raw string) (Address, error) {
	var address Address
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		return address, fmt.Errorf("address must start with 0x: %q", raw)
	}
	digits := raw[2:]
	if len(digits) != addressHexLength {
		return address, fmt.Errorf("address has %d hex characters, want %d: %q", len(digits), addressHexLength, raw)
	}
	if _, err := hex.Decode(address[:], []byte(digits)); err != nil {
		return Address{}, fmt.Errorf("address %q: %w", raw, err)
	}
	if address.IsZero() {
		return Address{}, fmt.Errorf("address %q is the null address", raw)
	}
	return address, nil
}

// MustParseAddress is like ParseAddress but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseAddress(raw string) Address {
	address, err := ParseAddress(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseAddress(%q): %v", raw, err))
	}
	return address
}

// IsCanonicalAddress reports whether raw is already in canonical form:
// "0x", 64 lowercase hex characters, not the null address.
func IsCanonicalAddress(raw string) bool {
	address, err := ParseAddress(raw)
	if err != nil {
		return false
	}
	return address.String() == raw
}

// String returns the canonical "0x"-prefixed lowercase hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short returns an abbreviated form for logs ("0x1234…cdef").
func (a Address) Short() string {
	full := hex.EncodeToString(a[:])
	return "0x" + full[:4] + "…" + full[len(full)-4:]
}

// IsZero reports whether the address is the null address.
func (a Address) IsZero() bool { return a == Address{} }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return nil, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the null address.
func (a *Address) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
