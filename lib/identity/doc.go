// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity models the three signing identities that take part
// in a capability handoff.
//
//   - [Admin] owns the project record and the admin capability before
//     provisioning starts. It funds and mints.
//   - [Ephemeral] is generated for a single provisioning run. It holds
//     the minted capability, signs the decryption network's session
//     challenge, and is the only identity whose secret may be exported.
//   - [Holder] is reconstructed from the decrypted credential. It
//     finalizes the capability and issues sub-resources.
//
// Each type carries only the methods its role needs, so passing the
// wrong identity to a step is a compile error rather than a ledger
// rejection. All three keep their Ed25519 seed in a [secret.Buffer]
// and must be closed when the run ends.
//
// Secrets have one text encoding, "ed25519:" followed by the standard
// base64 encoding of the 32-byte seed. [ParseSeed] also accepts the
// raw 32-byte seed, which is what sealed credentials contain.
package identity
