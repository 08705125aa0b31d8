// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore is a content-addressed store for encrypted
// credentials and hidden records. Blobs are keyed by CIDv1 (raw codec,
// sha2-256 multihash), immutable once written, and re-verified against
// their CID on every read.
package blobstore
