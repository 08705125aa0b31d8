// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Handoff is the operator CLI for project handoff.
//
// Commands that talk to the ledger or the key servers read the same
// HANDOFF_* environment as handoff-provisioner (see lib/config):
//
//	handoff keygen --out admin.key
//	handoff seal-credential --project 0x51 --seed-file holder.key
//	handoff estimate --project 0x51
//	handoff provision --request request.yaml
//	handoff journal stranded
//	handoff hidden seal --project 0x51 --file posting.md
//	handoff devnet --projects 0x51,0x52
//
// provision runs the full pipeline once, in process, and prints the
// ephemeral secret on success. A failure prints what the run left on
// the ledger; a stranded capability is also listed by
// "handoff journal stranded" when HANDOFF_JOURNAL is set.
package main
