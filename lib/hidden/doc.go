// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hidden stores records whose contents must stay off the public
// ledger until an authorized party unlocks them (job postings, private
// briefs). It reuses the credential disclosure path: a record is
// compressed, threshold-encrypted under its project's access id, and
// written to the blob store as a CBOR envelope. Reading it back takes a
// live session and a capability that passes the project's access check,
// exactly as recovering a holder credential does.
//
// The access check admits only an unconsumed capability owned by the
// session identity. A project's records can therefore be revealed
// between mint and finalize and not after: once finalize consumes the
// capability, every reveal under it is refused with
// threshold.ErrAccessDenied, and a later reader needs a newly minted
// capability for the project.
//
// Compression follows the record's media type: zstd for text-like
// records, LZ4 block mode for everything else, and no compression when
// neither makes the record smaller.
package hidden
