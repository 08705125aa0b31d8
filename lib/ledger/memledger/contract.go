// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
)

type param uint8

const (
	paramObject param = iota
	paramAddress
	paramText
	paramNumber
	paramAddressList
	paramTextList
)

func (p param) accepts(kind ledger.ArgumentKind) bool {
	switch p {
	case paramObject:
		return kind == ledger.ArgObject || kind == ledger.ArgResult
	case paramAddress:
		return kind == ledger.ArgAddress
	case paramText:
		return kind == ledger.ArgText
	case paramNumber:
		return kind == ledger.ArgNumber
	case paramAddressList:
		return kind == ledger.ArgAddressList
	case paramTextList:
		return kind == ledger.ArgTextList
	}
	return false
}

type entryPoint struct {
	params []param
	run    func(e *execution, location string, arguments []ledger.Argument) (ref.ObjectID, error)
}

var entryPoints = map[string]entryPoint{
	ledger.ModuleProject + "::" + ledger.FunctionMintCapability: {
		params: []param{paramObject, paramObject, paramAddress},
		run:    mintCapability,
	},
	ledger.ModuleProject + "::" + ledger.FunctionCheckAccess: {
		params: []param{paramObject, paramObject, paramText},
		run:    checkAccess,
	},
	ledger.ModuleProject + "::" + ledger.FunctionFinalizeCapability: {
		params: []param{paramObject, paramObject, paramAddress},
		run:    finalizeCapability,
	},
	ledger.ModuleRegistry + "::" + ledger.FunctionCreateSubname: {
		params: []param{paramObject, paramObject, paramText, paramNumber},
		run:    createSubname,
	},
	ledger.ModuleRegistry + "::" + ledger.FunctionAssignRoles: {
		params: []param{paramObject, paramObject, paramAddressList, paramTextList},
		run:    assignRoles,
	},
}

// typed resolves an object argument and checks its type.
func (e *execution) typed(argument ledger.Argument, module, name string) (*object, error) {
	id, err := e.objectID(argument)
	if err != nil {
		return nil, err
	}
	obj, err := e.get(id)
	if err != nil {
		return nil, err
	}
	if obj.typ.Package != e.ledger.pkg || obj.typ.Module != module || obj.typ.Name != name {
		return nil, fmt.Errorf("object %s has type %s, want %s::%s::%s", id, obj.typ, e.ledger.pkg, module, name)
	}
	return obj, nil
}

func (e *execution) typedMutable(argument ledger.Argument, module, name string) (*object, error) {
	obj, err := e.typed(argument, module, name)
	if err != nil {
		return nil, err
	}
	return e.mutable(obj.id)
}

func mintCapability(e *execution, location string, arguments []ledger.Argument) (ref.ObjectID, error) {
	adminCap, err := e.typed(arguments[0], ledger.ModuleProject, ledger.TypeAdminCap)
	if err != nil {
		return "", err
	}
	project, err := e.typed(arguments[1], ledger.ModuleProject, ledger.TypeProject)
	if err != nil {
		return "", err
	}
	holder := arguments[2].Address
	if adminCap.owner != e.sender {
		return "", &abort{ledger.AbortNotAuthorized, location, "sender does not own the admin capability"}
	}
	if project.owner != e.sender {
		return "", &abort{ledger.AbortNotAuthorized, location, "sender does not own the project"}
	}
	if holder.IsZero() {
		return "", &abort{ledger.AbortNotAuthorized, location, "null holder"}
	}
	return e.create(ledger.ModuleProject, ledger.TypeCreationCap, holder, map[string]string{
		ledger.FieldProject:  string(project.id),
		ledger.FieldHolder:   holder.String(),
		ledger.FieldConsumed: "false",
	}), nil
}

func checkAccess(e *execution, location string, arguments []ledger.Argument) (ref.ObjectID, error) {
	deny := func(message string) error {
		return &abort{ledger.AbortAccessDenied, location, message}
	}
	capability, err := e.typed(arguments[0], ledger.ModuleProject, ledger.TypeCreationCap)
	if err != nil {
		return "", deny(err.Error())
	}
	project, err := e.typed(arguments[1], ledger.ModuleProject, ledger.TypeProject)
	if err != nil {
		return "", deny(err.Error())
	}
	switch {
	case capability.fields[ledger.FieldConsumed] == "true":
		return "", deny("capability consumed")
	case capability.owner != e.sender:
		return "", deny("sender does not hold the capability")
	case capability.fields[ledger.FieldProject] != string(project.id):
		return "", deny("capability is bound to a different project")
	case arguments[2].Text != string(project.id):
		return "", deny("access id does not name the project")
	}
	return "", nil
}

func finalizeCapability(e *execution, location string, arguments []ledger.Argument) (ref.ObjectID, error) {
	capability, err := e.typedMutable(arguments[0], ledger.ModuleProject, ledger.TypeCreationCap)
	if err != nil {
		return "", err
	}
	project, err := e.typedMutable(arguments[1], ledger.ModuleProject, ledger.TypeProject)
	if err != nil {
		return "", err
	}
	holder := arguments[2].Address
	if capability.fields[ledger.FieldConsumed] == "true" {
		return "", &abort{ledger.AbortCapabilityConsumed, location, "capability already consumed"}
	}
	if capability.fields[ledger.FieldProject] != string(project.id) {
		return "", &abort{ledger.AbortWrongProject, location, "capability is bound to a different project"}
	}
	if project.fields[ledger.FieldFinalOwner] != e.sender.String() {
		return "", &abort{ledger.AbortNotAuthorized, location, "sender is not the project's final owner"}
	}
	if holder.IsZero() {
		return "", &abort{ledger.AbortNotAuthorized, location, "null holder"}
	}
	capability.fields[ledger.FieldConsumed] = "true"
	project.owner = holder
	return "", nil
}

func createSubname(e *execution, location string, arguments []ledger.Argument) (ref.ObjectID, error) {
	registry, err := e.typedMutable(arguments[0], ledger.ModuleRegistry, ledger.TypeRegistry)
	if err != nil {
		return "", err
	}
	project, err := e.typed(arguments[1], ledger.ModuleProject, ledger.TypeProject)
	if err != nil {
		return "", err
	}
	name := arguments[2].Text
	expiration := arguments[3].Number

	if project.owner != e.sender {
		return "", &abort{ledger.AbortNotAuthorized, location, "sender does not own the project"}
	}
	for _, label := range strings.Split(name, ".") {
		if err := ref.ValidateResourceName(label); err != nil {
			return "", &abort{ledger.AbortInvalidName, location, err.Error()}
		}
	}
	if now := e.ledger.clock.Now().UnixMilli(); int64(expiration) <= now {
		return "", &abort{ledger.AbortExpirationInPast, location, "expiration is not in the future"}
	}
	nameKey := "name:" + name
	if _, taken := registry.fields[nameKey]; taken {
		return "", &abort{ledger.AbortNameTaken, location, fmt.Sprintf("name %q is taken", name)}
	}

	id := e.create(ledger.ModuleRegistry, ledger.TypeSubName, e.sender, map[string]string{
		ledger.FieldName:       name,
		ledger.FieldProject:    string(project.id),
		ledger.FieldExpiration: strconv.FormatUint(expiration, 10),
	})
	registry.fields[nameKey] = string(id)
	return id, nil
}

func assignRoles(e *execution, location string, arguments []ledger.Argument) (ref.ObjectID, error) {
	registry, err := e.typedMutable(arguments[0], ledger.ModuleRegistry, ledger.TypeRegistry)
	if err != nil {
		return "", err
	}
	project, err := e.typed(arguments[1], ledger.ModuleProject, ledger.TypeProject)
	if err != nil {
		return "", err
	}
	addresses := arguments[2].Addresses
	roles := arguments[3].List

	if project.owner != e.sender {
		return "", &abort{ledger.AbortNotAuthorized, location, "sender does not own the project"}
	}
	if len(addresses) != len(roles) {
		return "", &abort{ledger.AbortLengthMismatch, location,
			fmt.Sprintf("%d addresses but %d roles", len(addresses), len(roles))}
	}
	for index, address := range addresses {
		e.assignments = append(e.assignments, RoleAssignment{
			Registry: registry.id,
			Project:  project.id,
			Address:  address,
			Role:     roles[index],
		})
		registry.fields["role:"+string(project.id)+":"+address.String()] = roles[index]
	}
	return "", nil
}
