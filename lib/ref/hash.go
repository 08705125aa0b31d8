// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// domainKey is a 32-byte key for BLAKE3 keyed hashing. The byte values
// are the ASCII domain name, zero-padded to 32 bytes. Changing a key
// invalidates every value ever derived in that domain.
type domainKey [32]byte

var (
	addressDomainKey = domainKey{
		'h', 'a', 'n', 'd', 'o', 'f', 'f', '.', 'a', 'd', 'd', 'r', 'e', 's', 's', 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	transactionDomainKey = domainKey{
		'h', 'a', 'n', 'd', 'o', 'f', 'f', '.', 't', 'r', 'a', 'n', 's', 'a', 'c', 't',
		'i', 'o', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	objectDomainKey = domainKey{
		'h', 'a', 'n', 'd', 'o', 'f', 'f', '.', 'o', 'b', 'j', 'e', 'c', 't', 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// AddressFromPublicKey derives the ledger account address controlled
// by an Ed25519 public key.
func AddressFromPublicKey(publicKey ed25519.PublicKey) Address {
	return Address(keyedHash(addressDomainKey, publicKey))
}

// DigestOf computes the transaction digest of serialized transaction
// bytes. Signatures are made over the digest, never over raw bytes.
func DigestOf(txBytes []byte) Digest {
	return Digest(keyedHash(transactionDomainKey, txBytes))
}

// DeriveObjectID computes the id of the index-th object created by
// the transaction with the given digest.
func DeriveObjectID(digest Digest, index uint32) ObjectID {
	var input [36]byte
	copy(input[:32], digest[:])
	binary.BigEndian.PutUint32(input[32:], index)
	hash := keyedHash(objectDomainKey, input[:])
	return ObjectID(Address(hash).String())
}

// keyedHash computes a BLAKE3 keyed hash with the given domain key.
func keyedHash(key domainKey, data []byte) [32]byte {
	// NewKeyed only fails for a key that is not 32 bytes, which the
	// domainKey type rules out.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("ref: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}
