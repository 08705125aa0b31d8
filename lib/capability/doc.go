// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability builds and submits the three transactions that
// move a project through a creation capability: minting it (signed by
// the admin), proving access with it (never submitted), and finalizing
// it (signed by the recovered holder).
package capability
