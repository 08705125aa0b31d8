// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package api serves provisioning to the web UI over HTTP.
//
// Two routes are exposed:
//
//	POST /v1/projects/{projectObjectId}/provision
//	GET  /v1/budgets
//
// Provisioning requires a bearer grant: an EdDSA-signed JWT whose
// issuer and audience match the server configuration and whose
// subject is the caller's ledger address. The grant is verified
// before the request body is read. A body userAddress, when present,
// must equal the grant subject.
//
// A run is not canceled when the client disconnects. Once a
// capability is minted, abandoning the run would strand it, so runs
// are bounded by [Config.RunTimeout] instead of the request context.
package api
