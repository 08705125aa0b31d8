// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subresource

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/handoff/lib/ref"
)

// ErrParticipantArrayMismatch is returned when the filtered address
// and role lists differ in length.
var ErrParticipantArrayMismatch = errors.New("subresource: participant address and role counts differ")

// Participant is one caller-supplied (address, role) pair. Either
// field may be blank.
type Participant struct {
	Address string `json:"name" yaml:"name"`
	Role    string `json:"role" yaml:"role"`
}

// Assignment is a participant that survived filtering.
type Assignment struct {
	Address ref.Address `json:"address"`
	Role    string      `json:"role"`
}

// Filtered is the outcome of Filter.
type Filtered struct {
	Assignments []Assignment

	// Skipped pairs survived blank filtering but their address is not
	// a canonical ledger address.
	Skipped []Participant
}

func blank(value string) bool { return strings.TrimSpace(value) == "" }

// Filter drops blank addresses and blank roles independently, pairs
// the survivors by position, and keeps pairs whose address parses as a
// canonical ledger address.
func Filter(participants []Participant) (*Filtered, error) {
	var addresses, roles []string
	for _, participant := range participants {
		if !blank(participant.Address) {
			addresses = append(addresses, strings.TrimSpace(participant.Address))
		}
		if !blank(participant.Role) {
			roles = append(roles, strings.TrimSpace(participant.Role))
		}
	}
	if len(addresses) != len(roles) {
		return nil, fmt.Errorf("%w: %d addresses, %d roles", ErrParticipantArrayMismatch, len(addresses), len(roles))
	}

	filtered := &Filtered{}
	for index, raw := range addresses {
		if !ref.IsCanonicalAddress(raw) {
			filtered.Skipped = append(filtered.Skipped, Participant{Address: raw, Role: roles[index]})
			continue
		}
		filtered.Assignments = append(filtered.Assignments, Assignment{
			Address: ref.MustParseAddress(raw),
			Role:    roles[index],
		})
	}
	return filtered, nil
}
