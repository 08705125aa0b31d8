// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package budget estimates gas budgets for the three provisioning
// transactions (mint, finalize, issue) by dry-running representative
// versions of each against sample ledger objects.
//
// Dry-run cost underestimates committed cost, so every estimate is
// inflated by a fixed 60% margin. Estimation never fails: a component
// whose dry run errors or aborts falls back to a conservative constant
// and the fallback is logged at Warn. A wrong budget only risks a
// downstream transaction failure, which provisioning reports on its
// own.
package budget
