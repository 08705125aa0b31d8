// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subresource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// FounderPrefix is prepended to the target name to form the caller's
// own sub-resource.
const FounderPrefix = "founder."

// DefaultLifetime is used when no expiration is supplied.
const DefaultLifetime = 365 * 24 * time.Hour

var (
	// ErrIssueRejected is returned when the issue transaction is
	// refused or aborts.
	ErrIssueRejected = errors.New("subresource: issue rejected")

	// ErrInvalidName is returned for target names that are not a
	// single valid resource label.
	ErrInvalidName = errors.New("subresource: invalid target name")

	// ErrInvalidExpiration is returned for expirations in the past.
	ErrInvalidExpiration = errors.New("subresource: expiration is not in the future")
)

// ValidateTargetName checks that name can be issued both on its own
// and under the founder prefix.
func ValidateTargetName(name string) error {
	if err := ref.ValidateResourceName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return nil
}

// ResolveExpiration returns the expiration to issue with. Zero means
// DefaultLifetime from now.
func ResolveExpiration(expirationMs uint64, now time.Time) (uint64, error) {
	if expirationMs == 0 {
		return uint64(now.Add(DefaultLifetime).UnixMilli()), nil
	}
	if int64(expirationMs) <= now.UnixMilli() {
		return 0, fmt.Errorf("%w: %d ms is not after %d ms", ErrInvalidExpiration, expirationMs, now.UnixMilli())
	}
	return expirationMs, nil
}

// Issuer submits issue transactions.
type Issuer struct {
	executor *ledger.Executor
	pkg      ref.ObjectID
	registry ref.ObjectID
	logger   *slog.Logger
}

// NewIssuer returns an Issuer creating names in registry.
func NewIssuer(executor *ledger.Executor, pkg, registry ref.ObjectID, logger *slog.Logger) *Issuer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Issuer{executor: executor, pkg: pkg, registry: registry, logger: logger}
}

// Request describes one issue.
type Request struct {
	Project    ref.ObjectID
	TargetName string

	// Ephemeral receives the primary resource, Caller the founder
	// resource.
	Ephemeral ref.Address
	Caller    ref.Address

	// Participants must already have passed Filter.
	Participants *Filtered

	ExpirationMs uint64
	GasBudget    uint64
}

// Set is what an issue created.
type Set struct {
	Digest      ref.Digest   `json:"digest"`
	Primary     ref.ObjectID `json:"primary"`
	PrimaryName string       `json:"primaryName"`
	Founder     ref.ObjectID `json:"founder"`
	FounderName string       `json:"founderName"`

	Assigned []Assignment  `json:"assigned,omitempty"`
	Skipped  []Participant `json:"skipped,omitempty"`
}

// Issue builds, signs with holder, and submits the issue transaction.
func (i *Issuer) Issue(ctx context.Context, holder *identity.Holder, request Request) (*Set, ref.Digest, error) {
	if request.Participants == nil {
		request.Participants = &Filtered{}
	}
	founderName := FounderPrefix + request.TargetName

	builder := ledger.NewTransaction(holder.Address(), i.pkg, request.GasBudget)
	primary := builder.Call(ledger.ModuleRegistry, ledger.FunctionCreateSubname,
		ledger.Object(i.registry), ledger.Object(request.Project),
		ledger.Text(request.TargetName), ledger.Number(request.ExpirationMs))
	founder := builder.Call(ledger.ModuleRegistry, ledger.FunctionCreateSubname,
		ledger.Object(i.registry), ledger.Object(request.Project),
		ledger.Text(founderName), ledger.Number(request.ExpirationMs))
	if assignments := request.Participants.Assignments; len(assignments) > 0 {
		addresses := make([]ref.Address, len(assignments))
		roles := make([]string, len(assignments))
		for index, assignment := range assignments {
			addresses[index] = assignment.Address
			roles[index] = assignment.Role
		}
		builder.Call(ledger.ModuleRegistry, ledger.FunctionAssignRoles,
			ledger.Object(i.registry), ledger.Object(request.Project),
			ledger.AddressList(addresses), ledger.TextList(roles))
	}
	builder.Transfer(request.Ephemeral, primary)
	builder.Transfer(request.Caller, founder)

	digest, result, err := i.executor.Execute(ctx, builder.Build(), holder)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, digest, err
		}
		return nil, digest, fmt.Errorf("%w: %w", ErrIssueRejected, err)
	}

	set := &Set{
		Digest:      digest,
		PrimaryName: request.TargetName,
		FounderName: founderName,
		Assigned:    request.Participants.Assignments,
		Skipped:     request.Participants.Skipped,
	}
	created := 0
	for _, change := range result.ObjectChanges {
		if change.Kind != ledger.ChangeCreated || change.Type.Package != i.pkg ||
			change.Type.Module != ledger.ModuleRegistry || change.Type.Name != ledger.TypeSubName {
			continue
		}
		created++
		switch change.Owner {
		case request.Ephemeral:
			set.Primary = change.ObjectID
		case request.Caller:
			set.Founder = change.ObjectID
		}
	}
	if created != 2 || set.Primary.IsZero() || set.Founder.IsZero() {
		return nil, digest, fmt.Errorf("%w: issue created %d names, primary %q founder %q",
			ledger.ErrUnexpectedLedgerShape, created, set.Primary, set.Founder)
	}

	i.logger.Info("sub-resources issued",
		"project", request.Project,
		"primary", set.Primary,
		"founder", set.Founder,
		"assigned", len(set.Assigned),
		"skipped", len(set.Skipped),
		"digest", digest,
	)
	return set, digest, nil
}
