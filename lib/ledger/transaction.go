// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bureau-foundation/handoff/lib/codec"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// CommandKind identifies what a command does.
type CommandKind string

const (
	// KindSplitGas moves Amount gas units from the sender to Recipient.
	KindSplitGas CommandKind = "split_gas"

	// KindCall invokes Target ("module::function") with Arguments.
	KindCall CommandKind = "call"

	// KindTransfer transfers every object in Arguments to Recipient.
	KindTransfer CommandKind = "transfer"
)

// ArgumentKind identifies which field of an Argument is populated.
type ArgumentKind uint8

const (
	ArgObject ArgumentKind = iota + 1
	ArgResult
	ArgText
	ArgTextList
	ArgNumber
	ArgAddress
	ArgAddressList
)

// Argument is one input to a call or transfer.
type Argument struct {
	Kind      ArgumentKind  `cbor:"1,keyasint"`
	Object    ref.ObjectID  `cbor:"2,keyasint,omitempty"`
	Result    uint16        `cbor:"3,keyasint,omitempty"`
	Text      string        `cbor:"4,keyasint,omitempty"`
	List      []string      `cbor:"5,keyasint,omitempty"`
	Number    uint64        `cbor:"6,keyasint,omitempty"`
	Address   ref.Address   `cbor:"7,keyasint,omitempty"`
	Addresses []ref.Address `cbor:"8,keyasint,omitempty"`
}

// Object references an existing ledger object.
func Object(id ref.ObjectID) Argument { return Argument{Kind: ArgObject, Object: id} }

// Result references the object produced by the index-th command
// (1-based).
func Result(index uint16) Argument { return Argument{Kind: ArgResult, Result: index} }

// Text is a pure string argument.
func Text(value string) Argument { return Argument{Kind: ArgText, Text: value} }

// TextList is a pure vector<string> argument.
func TextList(values []string) Argument { return Argument{Kind: ArgTextList, List: values} }

// Number is a pure u64 argument.
func Number(value uint64) Argument { return Argument{Kind: ArgNumber, Number: value} }

// AddressArg is a pure address argument.
func AddressArg(address ref.Address) Argument { return Argument{Kind: ArgAddress, Address: address} }

// AddressList is a pure vector<address> argument.
func AddressList(addresses []ref.Address) Argument {
	return Argument{Kind: ArgAddressList, Addresses: addresses}
}

// Command is one step of a transaction.
type Command struct {
	Kind      CommandKind `cbor:"1,keyasint"`
	Target    string      `cbor:"2,keyasint,omitempty"`
	Arguments []Argument  `cbor:"3,keyasint,omitempty"`
	Amount    uint64      `cbor:"4,keyasint,omitempty"`
	Recipient ref.Address `cbor:"5,keyasint,omitempty"`
}

// Transaction is an unsigned programmable transaction.
type Transaction struct {
	Sender    ref.Address  `cbor:"1,keyasint"`
	GasBudget uint64       `cbor:"2,keyasint"`
	Package   ref.ObjectID `cbor:"3,keyasint"`
	Commands  []Command    `cbor:"4,keyasint"`

	// Nonce distinguishes otherwise identical transactions so that
	// each has its own digest.
	Nonce uint64 `cbor:"5,keyasint"`
}

// Bytes returns the canonical serialization.
func (t *Transaction) Bytes() ([]byte, error) {
	data, err := codec.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("ledger: encoding transaction: %w", err)
	}
	return data, nil
}

// DecodeTransaction parses canonical transaction bytes. Encodings that
// would not re-encode to the same bytes are rejected so that a digest
// always identifies exactly one transaction.
func DecodeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := codec.UnmarshalCanonical(data, &tx); err != nil {
		return nil, fmt.Errorf("ledger: decoding transaction: %w", err)
	}
	return &tx, nil
}

// Builder assembles a transaction command by command.
type Builder struct {
	tx Transaction
}

// NewTransaction starts a transaction from sender against pkg. A zero
// gasBudget is allowed for transactions that are only dry-run or used
// as a policy proof.
func NewTransaction(sender ref.Address, pkg ref.ObjectID, gasBudget uint64) *Builder {
	return &Builder{tx: Transaction{
		Sender:    sender,
		GasBudget: gasBudget,
		Package:   pkg,
		Nonce:     randomNonce(),
	}}
}

// SplitGas appends a gas transfer to recipient.
func (b *Builder) SplitGas(amount uint64, recipient ref.Address) *Builder {
	b.tx.Commands = append(b.tx.Commands, Command{Kind: KindSplitGas, Amount: amount, Recipient: recipient})
	return b
}

// Call appends an entry-point invocation and returns an argument that
// references its result.
func (b *Builder) Call(module, function string, arguments ...Argument) Argument {
	b.tx.Commands = append(b.tx.Commands, Command{
		Kind:      KindCall,
		Target:    module + "::" + function,
		Arguments: arguments,
	})
	return Result(uint16(len(b.tx.Commands)))
}

// Transfer appends a transfer of objects to recipient.
func (b *Builder) Transfer(recipient ref.Address, objects ...Argument) *Builder {
	b.tx.Commands = append(b.tx.Commands, Command{Kind: KindTransfer, Arguments: objects, Recipient: recipient})
	return b
}

// Build returns the assembled transaction.
func (b *Builder) Build() *Transaction {
	tx := b.tx
	return &tx
}

func randomNonce() uint64 {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic("ledger: reading random nonce: " + err.Error())
	}
	return binary.BigEndian.Uint64(raw[:])
}

// Signer is satisfied by every identity role type.
type Signer interface {
	Address() ref.Address
	SignTransaction(txBytes []byte) (identity.Signature, error)
}

// SignedTransaction is what gets submitted to the ledger.
type SignedTransaction struct {
	TxBytes   []byte `json:"txBytes"`
	PublicKey []byte `json:"publicKey"`
	Signature []byte `json:"signature"`
}

// ErrSenderMismatch is returned by Sign when the signer does not
// control the transaction's sender address.
var ErrSenderMismatch = errors.New("ledger: signer is not the transaction sender")

// Sign serializes tx and signs it with signer.
func Sign(tx *Transaction, signer Signer) (*SignedTransaction, error) {
	if signer.Address() != tx.Sender {
		return nil, fmt.Errorf("%w: sender %s, signer %s", ErrSenderMismatch, tx.Sender, signer.Address())
	}
	txBytes, err := tx.Bytes()
	if err != nil {
		return nil, err
	}
	signature, err := signer.SignTransaction(txBytes)
	if err != nil {
		return nil, fmt.Errorf("ledger: signing transaction: %w", err)
	}
	return &SignedTransaction{
		TxBytes:   txBytes,
		PublicKey: signature.PublicKey,
		Signature: signature.Bytes,
	}, nil
}

// Digest returns the digest of the signed transaction's bytes.
func (s *SignedTransaction) Digest() ref.Digest { return ref.DigestOf(s.TxBytes) }
