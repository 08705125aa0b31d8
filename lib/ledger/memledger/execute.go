// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// abort is a contract-level failure with an abort code.
type abort struct {
	code     uint64
	location string
	message  string
}

func (a *abort) Error() string {
	return fmt.Sprintf("abort %d in %s: %s", a.code, a.location, a.message)
}

// execution is the staged state of one transaction. Nothing it touches
// reaches the ledger until commit.
type execution struct {
	ledger  *Ledger
	tx      *ledger.Transaction
	sender  ref.Address
	digest  ref.Digest
	enforce bool

	staged      map[ref.ObjectID]*object
	created     []ref.ObjectID
	balances    map[ref.Address]uint64
	assignments []RoleAssignment
	results     []ref.ObjectID

	status  ledger.ExecutionStatus
	metered uint64
	charged uint64
}

// execute runs tx as sender. The caller must hold l.mu. When enforce is
// false (dry run) the gas budget is not checked.
func (l *Ledger) execute(tx *ledger.Transaction, sender ref.Address, digest ref.Digest, enforce bool) *execution {
	run := &execution{
		ledger:   l,
		tx:       tx,
		sender:   sender,
		digest:   digest,
		enforce:  enforce,
		staged:   make(map[ref.ObjectID]*object),
		balances: make(map[ref.Address]uint64),
	}

	err := run.runCommands()
	run.metered = run.meter()

	switch {
	case err != nil:
		run.fail(err)
		run.charged = min(run.metered, tx.GasBudget)
	case enforce && run.metered > tx.GasBudget:
		run.fail(fmt.Errorf("insufficient gas: metered cost %d exceeds budget %d", run.metered, tx.GasBudget))
		run.charged = tx.GasBudget
	default:
		run.status = ledger.ExecutionStatus{Success: true}
		run.charged = run.metered
	}
	if !enforce {
		run.charged = 0
	}
	return run
}

func (e *execution) fail(err error) {
	var contractAbort *abort
	if errors.As(err, &contractAbort) {
		e.status = ledger.ExecutionStatus{
			AbortCode: contractAbort.code,
			Location:  contractAbort.location,
			Error:     contractAbort.message,
		}
		return
	}
	e.status = ledger.ExecutionStatus{Error: err.Error()}
}

func (e *execution) meter() uint64 {
	schedule := e.ledger.gas
	mutated := 0
	for id := range e.staged {
		if _, existed := e.ledger.objects[id]; existed {
			mutated++
		}
	}
	return schedule.Base +
		schedule.PerCommand*uint64(len(e.tx.Commands)) +
		schedule.PerCreated*uint64(len(e.created)) +
		schedule.PerMutated*uint64(mutated)
}

func (e *execution) runCommands() error {
	if e.tx.Package != e.ledger.pkg {
		return fmt.Errorf("unknown package %s", e.tx.Package)
	}
	for index, command := range e.tx.Commands {
		var produced ref.ObjectID
		var err error
		switch command.Kind {
		case ledger.KindSplitGas:
			err = e.splitGas(command)
		case ledger.KindTransfer:
			err = e.transfer(command)
		case ledger.KindCall:
			produced, err = e.call(command)
		default:
			err = fmt.Errorf("unknown command kind %q", command.Kind)
		}
		if err != nil {
			return fmt.Errorf("command %d: %w", index+1, err)
		}
		e.results = append(e.results, produced)
	}
	return nil
}

func (e *execution) balance(address ref.Address) uint64 {
	if staged, exists := e.balances[address]; exists {
		return staged
	}
	return e.ledger.balances[address]
}

func (e *execution) splitGas(command ledger.Command) error {
	if command.Amount == 0 {
		return fmt.Errorf("split_gas: zero amount")
	}
	if command.Recipient.IsZero() {
		return fmt.Errorf("split_gas: null recipient")
	}
	available := e.balance(e.sender)
	reserved := uint64(0)
	if e.enforce {
		reserved = e.tx.GasBudget
	}
	if available < reserved || available-reserved < command.Amount {
		return fmt.Errorf("split_gas: insufficient balance: have %d, need %d plus gas budget %d", available, command.Amount, reserved)
	}
	e.balances[e.sender] = available - command.Amount
	e.balances[command.Recipient] = e.balance(command.Recipient) + command.Amount
	return nil
}

func (e *execution) transfer(command ledger.Command) error {
	if command.Recipient.IsZero() {
		return fmt.Errorf("transfer: null recipient")
	}
	for _, argument := range command.Arguments {
		id, err := e.objectID(argument)
		if err != nil {
			return fmt.Errorf("transfer: %w", err)
		}
		obj, err := e.mutable(id)
		if err != nil {
			return fmt.Errorf("transfer: %w", err)
		}
		if obj.owner != e.sender {
			return fmt.Errorf("transfer: object %s is not owned by sender", id)
		}
		obj.owner = command.Recipient
	}
	return nil
}

func (e *execution) call(command ledger.Command) (ref.ObjectID, error) {
	module, function, found := strings.Cut(command.Target, "::")
	if !found {
		return "", fmt.Errorf("malformed call target %q", command.Target)
	}
	entry, exists := entryPoints[module+"::"+function]
	if !exists {
		return "", fmt.Errorf("unknown entry point %s", command.Target)
	}
	if len(command.Arguments) != len(entry.params) {
		return "", fmt.Errorf("%s: got %d arguments, want %d", command.Target, len(command.Arguments), len(entry.params))
	}
	for index, argument := range command.Arguments {
		if !entry.params[index].accepts(argument.Kind) {
			return "", fmt.Errorf("%s: argument %d has kind %d", command.Target, index+1, argument.Kind)
		}
	}
	return entry.run(e, command.Target, command.Arguments)
}

// objectID resolves an object or result argument.
func (e *execution) objectID(argument ledger.Argument) (ref.ObjectID, error) {
	switch argument.Kind {
	case ledger.ArgObject:
		return argument.Object, nil
	case ledger.ArgResult:
		index := int(argument.Result)
		if index < 1 || index > len(e.results) {
			return "", fmt.Errorf("result %d does not refer to an earlier command", index)
		}
		if e.results[index-1] == "" {
			return "", fmt.Errorf("command %d produced no object", index)
		}
		return e.results[index-1], nil
	default:
		return "", fmt.Errorf("argument kind %d is not an object", argument.Kind)
	}
}

func (e *execution) get(id ref.ObjectID) (*object, error) {
	if obj, exists := e.staged[id]; exists {
		return obj, nil
	}
	if obj, exists := e.ledger.objects[id]; exists {
		return obj, nil
	}
	return nil, fmt.Errorf("object %s not found", id)
}

func (e *execution) mutable(id ref.ObjectID) (*object, error) {
	if obj, exists := e.staged[id]; exists {
		return obj, nil
	}
	obj, exists := e.ledger.objects[id]
	if !exists {
		return nil, fmt.Errorf("object %s not found", id)
	}
	copied := obj.clone()
	e.staged[id] = copied
	return copied, nil
}

func (e *execution) create(module, name string, owner ref.Address, fields map[string]string) ref.ObjectID {
	id := ref.DeriveObjectID(e.digest, uint32(len(e.created)))
	e.staged[id] = &object{
		id:      id,
		typ:     ref.ObjectType{Package: e.ledger.pkg, Module: module, Name: name},
		owner:   owner,
		version: 1,
		fields:  fields,
	}
	e.created = append(e.created, id)
	return id
}

// commit applies staged state and returns the object-change list.
// The caller must hold the ledger lock.
func (e *execution) commit() []ledger.ObjectChange {
	var changes []ledger.ObjectChange
	createdSet := make(map[ref.ObjectID]bool, len(e.created))
	for _, id := range e.created {
		createdSet[id] = true
		obj := e.staged[id]
		changes = append(changes, ledger.ObjectChange{
			Kind:     ledger.ChangeCreated,
			ObjectID: id,
			Type:     obj.typ,
			Owner:    obj.owner,
			Version:  obj.version,
		})
	}

	var existing []ref.ObjectID
	for id := range e.staged {
		if !createdSet[id] {
			existing = append(existing, id)
		}
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i] < existing[j] })
	for _, id := range existing {
		obj := e.staged[id]
		previous := e.ledger.objects[id]
		obj.version = previous.version + 1
		kind := ledger.ChangeMutated
		if obj.owner != previous.owner {
			kind = ledger.ChangeTransferred
		}
		changes = append(changes, ledger.ObjectChange{
			Kind:     kind,
			ObjectID: id,
			Type:     obj.typ,
			Owner:    obj.owner,
			Version:  obj.version,
		})
	}

	for id, obj := range e.staged {
		e.ledger.objects[id] = obj
	}
	for address, balance := range e.balances {
		e.ledger.balances[address] = balance
	}
	e.ledger.assignments = append(e.ledger.assignments, e.assignments...)
	return changes
}
