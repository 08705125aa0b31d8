// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

const (
	minResourceNameLength = 3
	maxResourceNameLength = 63
)

// ValidateResourceName checks a sub-resource label: 3 to 63
// characters of a-z, 0-9 and '-', not starting or ending with '-'.
// These are the rules for a single DNS-style label, which is how
// sub-resource names are rendered to users ("acme.project").
func ValidateResourceName(name string) error {
	if len(name) < minResourceNameLength || len(name) > maxResourceNameLength {
		return fmt.Errorf("resource name %q: length %d outside %d-%d", name, len(name), minResourceNameLength, maxResourceNameLength)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		return fmt.Errorf("resource name %q: invalid character %q at position %d (allowed: a-z, 0-9, -)", name, c, i)
	}
	if name[0] == '-' || name[len(name)-1] == '-' {
		return fmt.Errorf("resource name %q must not start or end with '-'", name)
	}
	return nil
}
