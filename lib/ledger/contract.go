// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

// Entry points and types of the project contract package.
const (
	ModuleProject  = "project"
	ModuleRegistry = "registry"

	FunctionMintCapability     = "mint_capability"
	FunctionCheckAccess        = "check_access"
	FunctionFinalizeCapability = "finalize_capability"
	FunctionCreateSubname      = "create_subname"
	FunctionAssignRoles        = "assign_roles"

	TypeAdminCap     = "AdminCap"
	TypeProject      = "Project"
	TypeCreationCap  = "CreationCap"
	TypeRegistry     = "Registry"
	TypeSubName      = "SubName"
	TypeRoleBindings = "RoleBindings"
)

// Abort codes raised by the project contract.
const (
	AbortCapabilityConsumed uint64 = 1
	AbortNotAuthorized      uint64 = 2
	AbortAccessDenied       uint64 = 3
	AbortLengthMismatch     uint64 = 4
	AbortNameTaken          uint64 = 5
	AbortExpirationInPast   uint64 = 6
	AbortWrongProject       uint64 = 7
	AbortInvalidName        uint64 = 8
)

// Project record fields exposed through ObjectState.Fields.
const (
	FieldTitle      = "title"
	FieldFinalOwner = "final_owner"
	FieldConsumed   = "consumed"
	FieldProject    = "project"
	FieldHolder     = "holder"
	FieldName       = "name"
	FieldExpiration = "expiration_ms"

	// FieldCredential holds the content id of the project's
	// threshold-encrypted holder credential.
	FieldCredential = "credential"
)
