// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import "fmt"

// State is a position in the provisioning state machine.
type State uint8

const (
	StateInit State = iota
	StateCapMinted
	StateSessionEstablished
	StateCredentialRecovered
	StateCapabilityFinalized
	StateSubResourcesIssued
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:                "Init",
	StateCapMinted:           "CapMinted",
	StateSessionEstablished:  "SessionEstablished",
	StateCredentialRecovered: "CredentialRecovered",
	StateCapabilityFinalized: "CapabilityFinalized",
	StateSubResourcesIssued:  "SubResourcesIssued",
	StateDone:                "Done",
	StateFailed:              "Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// ParseState parses the String form.
func ParseState(name string) (State, error) {
	for state, stateName := range stateNames {
		if stateName == name {
			return State(state), nil
		}
	}
	return 0, fmt.Errorf("provision: unknown state %q", name)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// next is the state reached when stage completes. Policy has no state
// of its own: the proof is pure serialization between the session and
// the decryption.
func (s Stage) next() (State, bool) {
	switch s {
	case StageMint:
		return StateCapMinted, true
	case StageSession:
		return StateSessionEstablished, true
	case StageDecrypt:
		return StateCredentialRecovered, true
	case StageFinalize:
		return StateCapabilityFinalized, true
	case StageIssue:
		return StateSubResourcesIssued, true
	}
	return 0, false
}
