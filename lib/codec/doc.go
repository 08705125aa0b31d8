// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration.
//
// Two serialization formats are used with a clear boundary:
//
//   - JSON for external interfaces: the ledger JSON-RPC endpoint, the
//     provisioning HTTP API, and CLI output.
//   - CBOR for everything that is signed, hashed, or exchanged with
//     the decryption network: transaction bytes, policy proofs,
//     session challenges and grants, sealed-record envelopes.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes, which is what
// makes a transaction digest or a signature over a challenge
// reproducible on both sides of a wire.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Bytes that carry a signature or a digest are decoded with
// [UnmarshalCanonical], which additionally rejects unknown fields,
// duplicate keys, and any encoding that does not re-encode to the
// exact same bytes.
package codec
