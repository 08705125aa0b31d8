// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memledger

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// GasSchedule prices execution. Every transaction pays Base, plus
// PerCommand for each command, plus PerCreated for each created object
// and PerMutated for each pre-existing object it changes.
type GasSchedule struct {
	Base       uint64
	PerCommand uint64
	PerCreated uint64
	PerMutated uint64
}

// DefaultGasSchedule is used when Config.Gas is zero.
var DefaultGasSchedule = GasSchedule{
	Base:       1_000_000,
	PerCommand: 500_000,
	PerCreated: 2_000_000,
	PerMutated: 300_000,
}

// Config configures a Ledger.
type Config struct {
	// Package is the id of the project contract package. Only calls
	// against this package execute; anything else aborts.
	Package ref.ObjectID

	// Clock supplies the time for expiration checks. Defaults to
	// clock.Real().
	Clock clock.Clock

	Gas GasSchedule
}

// RoleAssignment records one address/role pair written by
// registry::assign_roles.
type RoleAssignment struct {
	Registry ref.ObjectID
	Project  ref.ObjectID
	Address  ref.Address
	Role     string
}

// Ledger is an in-memory ledger. All methods are safe for concurrent
// use.
type Ledger struct {
	pkg   ref.ObjectID
	clock clock.Clock
	gas   GasSchedule

	mu          sync.Mutex
	objects     map[ref.ObjectID]*object
	balances    map[ref.Address]uint64
	results     map[ref.Digest]*ledger.TransactionResult
	assignments []RoleAssignment
	checkpoint  uint64

	// finalized is closed and replaced every time a transaction
	// becomes final, waking WaitForFinality callers.
	finalized chan struct{}
}

type object struct {
	id      ref.ObjectID
	typ     ref.ObjectType
	owner   ref.Address
	version uint64
	fields  map[string]string
}

func (o *object) clone() *object {
	copied := *o
	copied.fields = maps.Clone(o.fields)
	return &copied
}

func (o *object) state() *ledger.ObjectState {
	return &ledger.ObjectState{
		ID:      o.id,
		Type:    o.typ,
		Owner:   o.owner,
		Version: o.version,
		Fields:  maps.Clone(o.fields),
	}
}

// New creates an empty ledger.
func New(config Config) *Ledger {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Gas == (GasSchedule{}) {
		config.Gas = DefaultGasSchedule
	}
	return &Ledger{
		pkg:       config.Package,
		clock:     config.Clock,
		gas:       config.Gas,
		objects:   make(map[ref.ObjectID]*object),
		balances:  make(map[ref.Address]uint64),
		results:   make(map[ref.Digest]*ledger.TransactionResult),
		finalized: make(chan struct{}),
	}
}

// Submit implements ledger.Client.
func (l *Ledger) Submit(ctx context.Context, signed *ledger.SignedTransaction) (ref.Digest, error) {
	if err := ctx.Err(); err != nil {
		return ref.Digest{}, err
	}
	tx, err := ledger.DecodeTransaction(signed.TxBytes)
	if err != nil {
		return ref.Digest{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}
	if !identity.VerifyTransaction(signed.PublicKey, signed.TxBytes, signed.Signature) {
		return ref.Digest{}, fmt.Errorf("%w: invalid signature", ledger.ErrRejected)
	}
	if ref.AddressFromPublicKey(signed.PublicKey) != tx.Sender {
		return ref.Digest{}, fmt.Errorf("%w: public key does not control sender %s", ledger.ErrRejected, tx.Sender)
	}

	digest := signed.Digest()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.results[digest]; exists {
		return ref.Digest{}, fmt.Errorf("%w: duplicate transaction %s", ledger.ErrRejected, digest)
	}
	if tx.GasBudget == 0 {
		return ref.Digest{}, fmt.Errorf("%w: zero gas budget", ledger.ErrRejected)
	}
	if balance := l.balances[tx.Sender]; balance < tx.GasBudget {
		return ref.Digest{}, fmt.Errorf("%w: sender %s balance %d below gas budget %d",
			ledger.ErrRejected, tx.Sender, balance, tx.GasBudget)
	}

	run := l.execute(tx, tx.Sender, digest, true)
	l.checkpoint++
	result := &ledger.TransactionResult{
		Digest:     digest,
		Status:     run.status,
		GasUsed:    run.charged,
		Checkpoint: l.checkpoint,
	}
	if run.status.Success {
		result.ObjectChanges = run.commit()
	}
	l.balances[tx.Sender] -= run.charged

	l.results[digest] = result
	close(l.finalized)
	l.finalized = make(chan struct{})
	return digest, nil
}

// WaitForFinality implements ledger.Client.
func (l *Ledger) WaitForFinality(ctx context.Context, digest ref.Digest, options ledger.WaitOptions) (*ledger.TransactionResult, error) {
	for {
		l.mu.Lock()
		result, found := l.results[digest]
		wake := l.finalized
		l.mu.Unlock()

		if found {
			copied := *result
			if !options.ShowObjectChanges {
				copied.ObjectChanges = nil
			} else {
				copied.ObjectChanges = append([]ledger.ObjectChange(nil), result.ObjectChanges...)
			}
			if !options.ShowEffects {
				copied.GasUsed = 0
			}
			return &copied, nil
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", digest, ctx.Err())
		}
	}
}

// GetObject implements ledger.Client.
func (l *Ledger) GetObject(ctx context.Context, id ref.ObjectID) (*ledger.ObjectState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	obj, exists := l.objects[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ledger.ErrObjectNotFound, id)
	}
	return obj.state(), nil
}

// DryRun implements ledger.Client. The transaction executes as sender
// regardless of its declared Sender and its gas budget is ignored.
func (l *Ledger) DryRun(ctx context.Context, txBytes []byte, sender ref.Address) (*ledger.DryRunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := ledger.DecodeTransaction(txBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	run := l.execute(tx, sender, ref.DigestOf(txBytes), false)
	return &ledger.DryRunResult{Status: run.status, GasUsed: run.metered}, nil
}

// Fund credits amount gas units to address.
func (l *Ledger) Fund(address ref.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[address] += amount
}

// Balance returns the gas balance of address.
func (l *Ledger) Balance(address ref.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[address]
}

// CreateAdminCap seeds an admin capability owned by owner.
func (l *Ledger) CreateAdminCap(id ref.ObjectID, owner ref.Address) error {
	return l.seed(id, ledger.ModuleProject, ledger.TypeAdminCap, owner, nil)
}

// CreateProject seeds a project record owned by owner. finalOwner is
// the address that must sign finalize_capability.
func (l *Ledger) CreateProject(id ref.ObjectID, title string, owner, finalOwner ref.Address) error {
	return l.seed(id, ledger.ModuleProject, ledger.TypeProject, owner, map[string]string{
		ledger.FieldTitle:      title,
		ledger.FieldFinalOwner: finalOwner.String(),
	})
}

// SetCredential records the content id of project's encrypted holder
// credential.
func (l *Ledger) SetCredential(project ref.ObjectID, contentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	obj, exists := l.objects[project]
	if !exists || obj.typ.Name != ledger.TypeProject {
		return fmt.Errorf("memledger: no project %s", project)
	}
	obj.fields[ledger.FieldCredential] = contentID
	obj.version++
	return nil
}

// CreateRegistry seeds a shared name registry.
func (l *Ledger) CreateRegistry(id ref.ObjectID) error {
	return l.seed(id, ledger.ModuleRegistry, ledger.TypeRegistry, ref.Address{}, nil)
}

func (l *Ledger) seed(id ref.ObjectID, module, name string, owner ref.Address, fields map[string]string) error {
	if _, err := ref.ParseObjectID(string(id)); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.objects[id]; exists {
		return fmt.Errorf("memledger: object %s already exists", id)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	l.objects[id] = &object{
		id:      id,
		typ:     ref.ObjectType{Package: l.pkg, Module: module, Name: name},
		owner:   owner,
		version: 1,
		fields:  fields,
	}
	return nil
}

// RoleAssignments returns every committed role assignment for project.
func (l *Ledger) RoleAssignments(project ref.ObjectID) []RoleAssignment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var matching []RoleAssignment
	for _, assignment := range l.assignments {
		if assignment.Project == project {
			matching = append(matching, assignment)
		}
	}
	return matching
}

// ObjectsOfType returns the ids of every object with the given module
// and type name, in no particular order.
func (l *Ledger) ObjectsOfType(module, name string) []ref.ObjectID {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []ref.ObjectID
	for id, obj := range l.objects {
		if obj.typ.Module == module && obj.typ.Name == name {
			ids = append(ids, id)
		}
	}
	return ids
}

// TransactionCount returns the number of final transactions.
func (l *Ledger) TransactionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.results)
}
