// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for key material: the
// ephemeral identity's signing seed, the holder credential recovered
// from the decryption network, and the admin seed loaded at startup.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. After Close, any access
// panics. Close is idempotent, so disposal can be deferred at every
// layer that touches a secret without coordinating ownership.
//
// A Buffer never prints itself: String, GoString, Format, and the
// slog.LogValuer implementation all render "[REDACTED]". Access to the
// contents is explicit and greppable: [Buffer.Bytes] for a slice into
// the protected region, [Buffer.Reveal] for a heap copy at API
// boundaries that require a string. [Buffer.Equal] compares in
// constant time.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [ReadFromPath] -- reads a file (or stdin for "-"), trims whitespace
//   - [ReadFromTerminal] -- prompts without echo
package secret
