// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed identifiers for ledger entities:
// account addresses, object ids, transaction digests, Move-style object
// types, and human-chosen resource names.
//
// Constructors validate their inputs and return errors for malformed
// values. Once constructed, a ref is an immutable value type that is
// safe to compare with == and to use as a map key.
//
// Addresses and digests are BLAKE3 keyed hashes. Each hash domain has
// its own fixed 32-byte key so the same input bytes never produce the
// same value in two different roles:
//
//   - handoff.address: Ed25519 public key -> account [Address]
//   - handoff.transaction: transaction bytes -> [Digest]
//   - handoff.object: digest || creation index -> created [ObjectID]
//
// The canonical text form of an address is "0x" followed by 64
// lowercase hex characters. JSON marshaling uses this form via
// encoding.TextMarshaler.
package ref
