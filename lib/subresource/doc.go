// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package subresource issues the named child records of a freshly
// handed-off project in one holder-signed transaction: the primary
// name (given to the ephemeral identity), the founder name (given to
// the caller), and an optional bulk role assignment.
//
// Participant lists arrive from a form where any entry may be blank.
// Blank addresses and blank roles are filtered independently and the
// two surviving lists must have equal length; [Filter] enforces this
// before anything is signed.
package subresource
