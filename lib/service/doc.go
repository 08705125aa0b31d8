// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service assembles a provisioning process from
// configuration.
//
// [Bootstrap] performs every side-effecting step a binary needs
// before it can serve: it reads the admin seed, connects to the ledger
// node and to each key server, opens the credential store and the run
// journal, and wires the capability, sub-resource, session, and
// decryption services into a [provision.Orchestrator]. The returned
// [Provisioner] owns every connection and key it opened; Close
// releases them.
//
// The handoff CLI and the handoff-provisioner daemon both call
// Bootstrap, so a request provisioned from the command line takes
// exactly the same path as one arriving over HTTP.
package service
