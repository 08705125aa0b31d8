// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the handoff operator CLI.
//
// A [Command] names a subcommand, its flag set factory, and either a
// Run function or nested subcommands. [Command.Execute] parses flags,
// routes to subcommands, and prints help. Unknown subcommands and
// flags get a "did you mean" suggestion when one is within edit
// distance 3.
package cli
