// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/subresource"
)

// RequestFile is a provisioning request in the field names the UI
// sends.
type RequestFile struct {
	ProjectObjectID          string                    `json:"projectObjectId" yaml:"projectObjectId"`
	SubName                  string                    `json:"subName" yaml:"subName"`
	ExpirationMs             uint64                    `json:"expirationMs,omitempty" yaml:"expirationMs,omitempty"`
	UserAddress              string                    `json:"userAddress" yaml:"userAddress"`
	TeamMembers              []subresource.Participant `json:"teamMembers,omitempty" yaml:"teamMembers,omitempty"`
	GasBudgetOverride        uint64                    `json:"gasBudgetOverride,omitempty" yaml:"gasBudgetOverride,omitempty"`
	RetainEphemeralOnFailure bool                      `json:"retainEphemeralOnFailure,omitempty" yaml:"retainEphemeralOnFailure,omitempty"`
}

// LoadRequest reads a request file. Files ending in .yaml or .yml are
// YAML; anything else is JSON, with comments and trailing commas
// allowed.
func LoadRequest(path string) (*RequestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading request: %w", err)
	}
	var request *RequestFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		request, err = ParseRequestYAML(data)
	default:
		request, err = ParseRequestJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return request, nil
}

// ParseRequestJSON decodes JSON or JSONC. Unknown fields are errors.
func ParseRequestJSON(data []byte) (*RequestFile, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	var request RequestFile
	if err := decoder.Decode(&request); err != nil {
		return nil, fmt.Errorf("parsing request: %w", err)
	}
	return &request, nil
}

// ParseRequestYAML decodes YAML. Unknown fields are errors.
func ParseRequestYAML(data []byte) (*RequestFile, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var request RequestFile
	if err := decoder.Decode(&request); err != nil {
		return nil, fmt.Errorf("parsing request: %w", err)
	}
	return &request, nil
}

// Request converts the file form into a provision.Request. Only the
// caller address is checked here; everything else is validated by
// the orchestrator.
func (f *RequestFile) Request() (provision.Request, error) {
	if strings.TrimSpace(f.UserAddress) == "" {
		return provision.Request{}, errors.New("userAddress is required")
	}
	caller, err := ref.ParseAddress(strings.TrimSpace(f.UserAddress))
	if err != nil {
		return provision.Request{}, fmt.Errorf("userAddress: %w", err)
	}
	return provision.Request{
		Project:                  ref.ObjectID(strings.TrimSpace(f.ProjectObjectID)),
		TargetName:               f.SubName,
		ExpirationMs:             f.ExpirationMs,
		Caller:                   caller,
		Participants:             f.TeamMembers,
		GasBudgetOverride:        f.GasBudgetOverride,
		RetainEphemeralOnFailure: f.RetainEphemeralOnFailure,
	}, nil
}
