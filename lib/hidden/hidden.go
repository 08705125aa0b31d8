// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hidden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ipfs/go-cid"

	"github.com/bureau-foundation/handoff/lib/blobstore"
	"github.com/bureau-foundation/handoff/lib/capability"
	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/codec"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/session"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

const envelopeVersion = 1

// maxRecordSize bounds the declared plaintext size of an envelope so a
// corrupt header cannot force a huge allocation.
const maxRecordSize = 16 << 20

var (
	// ErrEmptyRecord is returned by Seal for zero-length records.
	ErrEmptyRecord = errors.New("hidden: empty record")

	// ErrRecordTooLarge is returned by Seal, and by Reveal for
	// envelopes declaring an oversized record.
	ErrRecordTooLarge = errors.New("hidden: record too large")

	// ErrMalformedEnvelope is returned by Reveal when the stored blob
	// is not a usable envelope.
	ErrMalformedEnvelope = errors.New("hidden: malformed envelope")

	// ErrSessionExpired is returned by Reveal before any server is
	// contacted when the session is already past its TTL.
	ErrSessionExpired = errors.New("hidden: session expired")
)

// Envelope is the stored form of a hidden record.
type Envelope struct {
	Version     uint8       `cbor:"1,keyasint"`
	Project     string      `cbor:"2,keyasint"`
	MediaType   string      `cbor:"3,keyasint,omitempty"`
	Compression Compression `cbor:"4,keyasint"`
	Size        uint64      `cbor:"5,keyasint"`
	Ciphertext  []byte      `cbor:"6,keyasint"`
}

// Record is a revealed hidden record.
type Record struct {
	Project   ref.ObjectID
	MediaType string
	Data      []byte
}

// Sealer writes hidden records.
type Sealer struct {
	Store     blobstore.Store
	Servers   []threshold.Server
	Threshold int
	Logger    *slog.Logger
}

// Seal compresses, threshold-encrypts under project's access id, and
// stores data. It returns the envelope's content id.
func (s *Sealer) Seal(ctx context.Context, project ref.ObjectID, mediaType string, data []byte) (cid.Cid, error) {
	if len(data) == 0 {
		return cid.Undef, ErrEmptyRecord
	}
	if len(data) > maxRecordSize {
		return cid.Undef, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(data))
	}
	compressed, compression, err := compress(data, SelectCompression(mediaType))
	if err != nil {
		return cid.Undef, err
	}
	ciphertext, err := threshold.Encrypt(compressed, capability.AccessID(project), s.Servers, s.Threshold)
	if err != nil {
		return cid.Undef, fmt.Errorf("hidden: encrypting record: %w", err)
	}
	sealedCiphertext, err := ciphertext.Marshal()
	if err != nil {
		return cid.Undef, err
	}
	envelope, err := codec.Marshal(&Envelope{
		Version:     envelopeVersion,
		Project:     string(project),
		MediaType:   mediaType,
		Compression: compression,
		Size:        uint64(len(data)),
		Ciphertext:  sealedCiphertext,
	})
	if err != nil {
		return cid.Undef, fmt.Errorf("hidden: encoding envelope: %w", err)
	}
	id, err := s.Store.Put(ctx, envelope)
	if err != nil {
		return cid.Undef, err
	}
	if s.Logger != nil {
		s.Logger.Info("hidden record sealed",
			"project", project,
			"cid", id.String(),
			"compression", compression.String(),
			"size", len(data),
			"stored", len(envelope),
		)
	}
	return id, nil
}

// Revealer reads hidden records.
type Revealer struct {
	Store        blobstore.Store
	Decryptor    *threshold.Decryptor
	Capabilities *capability.Service

	// Clock defaults to clock.Real().
	Clock clock.Clock
}

// Reveal fetches the envelope stored under id, proves access with
// capabilityID through token, and returns the decrypted record. The
// envelope must belong to project.
func (r *Revealer) Reveal(ctx context.Context, id cid.Cid, token *session.Token, capabilityID, project ref.ObjectID) (*Record, error) {
	clk := clock.Real()
	if r.Clock != nil {
		clk = r.Clock
	}
	if token.Expired(clk.Now()) {
		return nil, ErrSessionExpired
	}
	stored, err := r.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var envelope Envelope
	if err := codec.Unmarshal(stored, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	switch {
	case envelope.Version != envelopeVersion:
		return nil, fmt.Errorf("%w: version %d", ErrMalformedEnvelope, envelope.Version)
	case envelope.Project != string(project):
		return nil, fmt.Errorf("%w: record belongs to %q, not %q", ErrMalformedEnvelope, envelope.Project, project)
	case envelope.Size == 0:
		return nil, fmt.Errorf("%w: zero size", ErrMalformedEnvelope)
	case envelope.Size > maxRecordSize:
		return nil, fmt.Errorf("%w: envelope declares %d bytes", ErrRecordTooLarge, envelope.Size)
	}
	ciphertext, err := threshold.ParseCiphertext(envelope.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	proof, err := r.Capabilities.BuildPolicyProof(token.Identity, capabilityID, project)
	if err != nil {
		return nil, err
	}
	plaintext, err := r.Decryptor.Decrypt(ctx, ciphertext, token, proof)
	if err != nil {
		return nil, err
	}
	defer plaintext.Close()

	data, err := decompress(plaintext.Bytes(), envelope.Compression, int(envelope.Size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if envelope.Compression == CompressionNone {
		data = append([]byte(nil), data...)
	}
	return &Record{Project: project, MediaType: envelope.MediaType, Data: data}, nil
}
