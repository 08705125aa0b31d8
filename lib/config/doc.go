// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads handoff process configuration from HANDOFF_*
// environment variables and provisioning requests from files.
//
// The core library packages never read the environment. Binaries call
// [Load] (or [LoadKeyServer] for a key server daemon) once at startup,
// validate the result, and pass concrete values into constructors.
//
// Key servers are described by three parallel maps keyed by server id:
//
//	HANDOFF_KEY_SERVERS=ks-1=ks1.internal:7443,ks-2=ks2.internal:7443
//	HANDOFF_KEY_SERVER_RECIPIENTS=ks-1=age1...,ks-2=age1...
//	HANDOFF_KEY_SERVER_WEIGHTS=ks-2=2
//
// A server with no weight entry has weight 1. Every server must have a
// recipient.
//
// Request files for the operator CLI are YAML (.yaml, .yml) or JSON
// with comments (anything else); see [LoadRequest].
package config
