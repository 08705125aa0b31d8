// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// maxObjectIDLength bounds object ids accepted from callers.
const maxObjectIDLength = 128

// ObjectID identifies a ledger object: a project record, a capability,
// a registry, a package. Ids minted by the ledger are canonical
// addresses ("0x" + 64 hex); ids seeded by genesis or fixtures may be
// any short token of letters, digits, '_', '-', ':' and '.'.
type ObjectID string

// ParseObjectID validates a raw object id.
func ParseObjectID(raw string) (ObjectID, error) {
	if raw == "" {
		return "", fmt.Errorf("empty object id")
	}
	if len(raw) > maxObjectIDLength {
		return "", fmt.Errorf("object id is %d characters, maximum is %d", len(raw), maxObjectIDLength)
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '-', c == ':', c == '.':
		default:
			return "", fmt.Errorf("object id %q: invalid character %q at position %d", raw, c, i)
		}
	}
	return ObjectID(raw), nil
}

// MustParseObjectID is like ParseObjectID but panics on error.
func MustParseObjectID(raw string) ObjectID {
	id, err := ParseObjectID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseObjectID(%q): %v", raw, err))
	}
	return id
}

func (id ObjectID) String() string { return string(id) }

// IsZero reports whether the id is unset.
func (id ObjectID) IsZero() bool { return id == "" }

// ObjectType is a fully qualified on-ledger type:
// "<package>::<module>::<name>".
type ObjectType struct {
	Package ObjectID `cbor:"1,keyasint" json:"package"`
	Module  string   `cbor:"2,keyasint" json:"module"`
	Name    string   `cbor:"3,keyasint" json:"name"`
}

// ParseObjectType parses the "<package>::<module>::<name>" form.
func ParseObjectType(raw string) (ObjectType, error) {
	parts := strings.Split(raw, "::")
	if len(parts) != 3 {
		return ObjectType{}, fmt.Errorf("object type %q: want <package>::<module>::<name>", raw)
	}
	pkg, err := ParseObjectID(parts[0])
	if err != nil {
		return ObjectType{}, fmt.Errorf("object type %q: %w", raw, err)
	}
	if parts[1] == "" || parts[2] == "" {
		return ObjectType{}, fmt.Errorf("object type %q: empty module or name", raw)
	}
	return ObjectType{Package: pkg, Module: parts[1], Name: parts[2]}, nil
}

func (t ObjectType) String() string {
	return string(t.Package) + "::" + t.Module + "::" + t.Name
}

// Digest is the 32-byte digest of a serialized transaction.
type Digest [32]byte

// ParseDigest parses the 64-character hex form of a digest.
func ParseDigest(raw string) (Digest, error) {
	var digest Digest
	if len(raw) != 64 {
		return digest, fmt.Errorf("digest has %d characters, want 64", len(raw))
	}
	if _, err := hex.Decode(digest[:], []byte(raw)); err != nil {
		return Digest{}, fmt.Errorf("parsing digest: %w", err)
	}
	return digest, nil
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool { return d == Digest{} }

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return nil, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*d = Digest{}
		return nil
	}
	parsed, err := ParseDigest(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
