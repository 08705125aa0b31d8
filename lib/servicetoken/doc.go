// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package servicetoken implements the session grants a decryption key
// server issues after a requester proves control of an identity.
//
// A grant is raw bytes: the CBOR-encoded [Token] followed by a 64-byte
// Ed25519 signature from the issuing server's signing key.
//
//	[CBOR payload bytes] [64-byte Ed25519 signature]
//
// The split point is always len(grant) - 64. Each server verifies only
// grants it issued itself (the Audience is the server id), so a grant
// from one server is useless against another. Grants carry their own
// expiry; a server may additionally revoke a grant early through
// [Revocations] when the requester ends its session.
package servicetoken
