// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package threshold implements the credential threshold-encryption
// scheme and the client that recovers plaintext from a quorum of
// decryption servers.
//
// Encryption picks a random ristretto255 scalar, derives a data key
// from it with HKDF-SHA256 (info = access id), and seals the plaintext
// with XChaCha20-Poly1305 using the access id as associated data. The
// scalar is Shamir-split into one share per unit of server weight;
// each server's shares are age-sealed to that server's recipient and
// stored in the [Ciphertext] alongside the payload.
//
// A server releases its shares only after checking a session grant and
// re-executing a policy proof against the ledger. The [Decryptor] fans
// a request out to every server in parallel, keeps the first threshold
// share units that arrive, recovers the scalar, and opens the payload.
//
// Outcomes are kept distinct:
//
//   - [ErrAccessDenied]: at least one server explicitly refused and the
//     quorum was not reached.
//   - [ErrQuorumUnreachable]: too few servers answered at all. Empty
//     answers count as no answer.
//   - [ErrDecryptionMalformed]: enough shares arrived but the payload
//     failed its integrity check.
package threshold
