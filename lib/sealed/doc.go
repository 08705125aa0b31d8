// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for sealing threshold key shares
// to decryption servers.
//
// Every decryption server owns an age X25519 identity. When a
// credential is threshold-encrypted, each key share is sealed to the
// recipient of the server that will release it, so a server can only
// ever open its own shares. Ciphertext is raw age binary because it
// travels inside CBOR envelopes; [Armor] and [Dearmor] give the
// base64 text form used in configuration and CLI output.
//
// Private keys and opened plaintext are [secret.Buffer] values.
//
// Key exports:
//
//   - [GenerateKeypair]: new X25519 keypair in a secret.Buffer
//   - [Seal] / [Open]: seal to recipients, open with an identity
//   - [ParsePublicKey] / [ParsePrivateKey]: key validation
package sealed
