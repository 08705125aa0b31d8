// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
)

var (
	// ErrMintFailed is returned when the mint transaction is refused
	// or aborts.
	ErrMintFailed = errors.New("capability: mint failed")

	// ErrCapabilityNotFound is returned when a successful mint did
	// not create exactly one capability. Also wraps
	// ledger.ErrUnexpectedLedgerShape.
	ErrCapabilityNotFound = errors.New("capability: capability not found in mint effects")

	// ErrInvalidPolicyInput is returned by BuildPolicyProof for
	// unusable ids.
	ErrInvalidPolicyInput = errors.New("capability: invalid policy input")

	// ErrCapabilityConsumed is returned when finalizing a capability
	// that was already spent.
	ErrCapabilityConsumed = errors.New("capability: capability already consumed")

	// ErrTransferRejected is returned for any other finalize failure.
	ErrTransferRejected = errors.New("capability: ownership transfer rejected")
)

var (
	mintSchema = ledger.Schema{
		{Role: "capability", Change: ledger.ChangeCreated, Module: ledger.ModuleProject, Name: ledger.TypeCreationCap},
	}
	mintProjectSchema = ledger.Schema{
		{Role: "project", Change: ledger.ChangeTransferred, Module: ledger.ModuleProject, Name: ledger.TypeProject},
	}
	finalizeSchema = ledger.Schema{
		{Role: "capability", Change: ledger.ChangeMutated, Module: ledger.ModuleProject, Name: ledger.TypeCreationCap},
		{Role: "project", Change: ledger.ChangeTransferred, Module: ledger.ModuleProject, Name: ledger.TypeProject},
	}
)

// Service holds what every capability transaction needs.
type Service struct {
	executor *ledger.Executor
	pkg      ref.ObjectID
	adminCap ref.ObjectID
	logger   *slog.Logger
}

// NewService returns a Service submitting through executor against
// pkg. adminCap is the admin capability object that authorizes minting.
func NewService(executor *ledger.Executor, pkg, adminCap ref.ObjectID, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{executor: executor, pkg: pkg, adminCap: adminCap, logger: logger}
}

// Receipt identifies a committed capability transaction.
type Receipt struct {
	Digest  ref.Digest
	GasUsed uint64
}

// MintRequest describes one mint.
type MintRequest struct {
	Project   ref.ObjectID
	Ephemeral ref.Address

	// Funding is split from the admin's gas and sent to Ephemeral.
	// Zero skips the split.
	Funding uint64

	GasBudget uint64
}

// MintReceipt is the outcome of a successful mint.
type MintReceipt struct {
	Receipt
	Capability ref.ObjectID
}

// Mint submits the mint transaction signed by admin. On failure the
// returned digest is non-zero if the transaction was submitted.
func (s *Service) Mint(ctx context.Context, admin *identity.Admin, request MintRequest) (*MintReceipt, ref.Digest, error) {
	builder := ledger.NewTransaction(admin.Address(), s.pkg, request.GasBudget)
	if request.Funding > 0 {
		builder.SplitGas(request.Funding, request.Ephemeral)
	}
	builder.Call(ledger.ModuleProject, ledger.FunctionMintCapability,
		ledger.Object(s.adminCap), ledger.Object(request.Project), ledger.AddressArg(request.Ephemeral))
	builder.Transfer(request.Ephemeral, ledger.Object(request.Project))

	digest, result, err := s.executor.Execute(ctx, builder.Build(), admin)
	if err != nil {
		return nil, digest, classifyLedgerError(ErrMintFailed, err)
	}

	resolved, err := mintSchema.Resolve(s.pkg, result.ObjectChanges)
	if err != nil {
		return nil, digest, fmt.Errorf("%w: %w", ErrCapabilityNotFound, err)
	}
	created := resolved["capability"]
	if created.Owner != request.Ephemeral {
		return nil, digest, fmt.Errorf("%w: capability %s is owned by %s, not the ephemeral identity",
			ledger.ErrUnexpectedLedgerShape, created.ObjectID, created.Owner)
	}
	project, err := mintProjectSchema.Resolve(s.pkg, result.ObjectChanges)
	if err != nil {
		return nil, digest, err
	}
	if project["project"].ObjectID != request.Project {
		return nil, digest, fmt.Errorf("%w: mint transferred %s, not project %s",
			ledger.ErrUnexpectedLedgerShape, project["project"].ObjectID, request.Project)
	}

	s.logger.Info("capability minted",
		"project", request.Project,
		"capability", created.ObjectID,
		"digest", digest,
		"gas_used", result.GasUsed,
	)
	return &MintReceipt{
		Receipt:    Receipt{Digest: digest, GasUsed: result.GasUsed},
		Capability: created.ObjectID,
	}, digest, nil
}

// BuildPolicyProof serializes, without signing or submitting, the
// access-check transaction decryption servers dry-run before releasing
// shares. The access id is the project id.
func (s *Service) BuildPolicyProof(sender ref.Address, capability, project ref.ObjectID) ([]byte, error) {
	switch {
	case sender.IsZero():
		return nil, fmt.Errorf("%w: zero sender", ErrInvalidPolicyInput)
	case capability.IsZero():
		return nil, fmt.Errorf("%w: empty capability id", ErrInvalidPolicyInput)
	case project.IsZero():
		return nil, fmt.Errorf("%w: empty project id", ErrInvalidPolicyInput)
	}
	if _, err := ref.ParseObjectID(string(capability)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicyInput, err)
	}
	if _, err := ref.ParseObjectID(string(project)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicyInput, err)
	}

	builder := ledger.NewTransaction(sender, s.pkg, 0)
	builder.Call(ledger.ModuleProject, ledger.FunctionCheckAccess,
		ledger.Object(capability), ledger.Object(project), ledger.Text(AccessID(project)))
	txBytes, err := builder.Build().Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicyInput, err)
	}
	return txBytes, nil
}

// AccessID is the label a project's credential is encrypted under.
func AccessID(project ref.ObjectID) string { return string(project) }

// FinalizeRequest describes one finalize.
type FinalizeRequest struct {
	Capability ref.ObjectID
	Project    ref.ObjectID

	// Holder receives the project.
	Holder ref.Address

	GasBudget uint64
}

// Finalize consumes the capability, signed by the recovered holder
// identity, and transfers the project to request.Holder.
func (s *Service) Finalize(ctx context.Context, holder *identity.Holder, request FinalizeRequest) (*Receipt, ref.Digest, error) {
	builder := ledger.NewTransaction(holder.Address(), s.pkg, request.GasBudget)
	builder.Call(ledger.ModuleProject, ledger.FunctionFinalizeCapability,
		ledger.Object(request.Capability), ledger.Object(request.Project), ledger.AddressArg(request.Holder))

	digest, result, err := s.executor.Execute(ctx, builder.Build(), holder)
	if err != nil {
		if code, ok := ledger.AbortCode(err); ok && code == ledger.AbortCapabilityConsumed {
			return nil, digest, fmt.Errorf("%w: %w", ErrCapabilityConsumed, err)
		}
		return nil, digest, classifyLedgerError(ErrTransferRejected, err)
	}

	resolved, err := finalizeSchema.Resolve(s.pkg, result.ObjectChanges)
	if err != nil {
		return nil, digest, err
	}
	if owner := resolved["project"].Owner; owner != request.Holder {
		return nil, digest, fmt.Errorf("%w: project is owned by %s after finalize, not %s",
			ledger.ErrUnexpectedLedgerShape, owner, request.Holder)
	}

	s.logger.Info("capability finalized",
		"project", request.Project,
		"capability", request.Capability,
		"holder", request.Holder,
		"digest", digest,
	)
	return &Receipt{Digest: digest, GasUsed: result.GasUsed}, digest, nil
}

// classifyLedgerError tags rejections and aborts with sentinel.
// Context errors pass through untouched so callers can tell a timeout
// from a refusal.
func classifyLedgerError(sentinel, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
