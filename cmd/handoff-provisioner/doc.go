// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Handoff-provisioner serves the provisioning API.
//
// It reads its configuration from HANDOFF_* environment variables (see
// lib/config), dials every configured key server, and serves:
//
//	POST /v1/projects/{projectObjectId}/provision
//	GET  /v1/budgets
//	GET  /healthz
//
// Provisioning requests carry an EdDSA bearer grant whose subject is the
// caller's ledger address. On SIGINT or SIGTERM the listener closes and
// in-flight runs are given up to api.DefaultRunTimeout to finish, so a
// run that already minted is not abandoned mid-handoff.
package main
