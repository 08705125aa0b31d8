// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"fmt"

	"github.com/bureau-foundation/handoff/lib/ref"
)

// ObjectRole declares one object a transaction is expected to produce:
// the kind of change and the module-qualified type. The package is
// supplied at resolution time.
type ObjectRole struct {
	Role   string
	Change ChangeKind
	Module string
	Name   string
}

// Schema is the full set of roles a transaction's effects must satisfy.
type Schema []ObjectRole

// Resolve matches every role against changes for objects whose type
// lives in pkg. Each role must match exactly one change; a missing or
// ambiguous match returns an error wrapping ErrUnexpectedLedgerShape.
// Changes that match no role are ignored.
func (s Schema) Resolve(pkg ref.ObjectID, changes []ObjectChange) (map[string]ObjectChange, error) {
	resolved := make(map[string]ObjectChange, len(s))
	for _, role := range s {
		var matches []ObjectChange
		for _, change := range changes {
			if change.Kind != role.Change {
				continue
			}
			if change.Type.Package != pkg || change.Type.Module != role.Module || change.Type.Name != role.Name {
				continue
			}
			matches = append(matches, change)
		}
		switch len(matches) {
		case 1:
			resolved[role.Role] = matches[0]
		case 0:
			return nil, fmt.Errorf("%w: no %s %s::%s::%s for role %q",
				ErrUnexpectedLedgerShape, role.Change, pkg, role.Module, role.Name, role.Role)
		default:
			return nil, fmt.Errorf("%w: %d %s objects of type %s::%s::%s for role %q",
				ErrUnexpectedLedgerShape, len(matches), role.Change, pkg, role.Module, role.Name, role.Role)
		}
	}
	return resolved, nil
}
