// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Handoff-keyserver is one member of the decryption network.
//
// It holds an age identity that opens its share of every sealed holder
// credential, and releases a share only inside a session whose policy
// proof the ledger accepts. Configuration comes from HANDOFF_KEYSERVER_*
// variables plus HANDOFF_LEDGER_URL and HANDOFF_PACKAGE.
//
// On startup the server logs its recipient and its grant verification
// key. The recipient goes into the provisioner's
// HANDOFF_KEY_SERVER_RECIPIENTS. The signing key file is created on
// first start if it does not exist.
package main
