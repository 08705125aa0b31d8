// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/bureau-foundation/handoff/lib/blobstore"
	"github.com/bureau-foundation/handoff/lib/capability"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/secret"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

// SealCredential threshold-encrypts a holder seed under project's
// access id and stores the ciphertext. The returned content id belongs
// in the project's credential field. The seed is borrowed.
func SealCredential(ctx context.Context, store blobstore.Store, servers []threshold.Server, units int, project ref.ObjectID, seed *secret.Buffer) (cid.Cid, error) {
	text, err := identity.EncodeSecret(seed)
	if err != nil {
		return cid.Undef, fmt.Errorf("provision: encoding credential: %w", err)
	}
	defer text.Close()

	ciphertext, err := threshold.Encrypt(text.Bytes(), capability.AccessID(project), servers, units)
	if err != nil {
		return cid.Undef, fmt.Errorf("provision: encrypting credential: %w", err)
	}
	data, err := ciphertext.Marshal()
	if err != nil {
		return cid.Undef, err
	}
	return store.Put(ctx, data)
}

// loadCredential fetches and parses the credential referenced by
// project. Missing or unusable credentials are invalid input: the
// project cannot be provisioned.
func loadCredential(ctx context.Context, store blobstore.Store, project *ledger.ObjectState) (*threshold.Ciphertext, error) {
	raw, ok := project.Fields[ledger.FieldCredential]
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: project %s has no credential", ErrInvalidInput, project.ID)
	}
	id, err := blobstore.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: project %s credential: %v", ErrInvalidInput, project.ID, err)
	}
	data, err := store.Get(ctx, id)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: project %s credential %s is not stored", ErrInvalidInput, project.ID, id)
	}
	if err != nil {
		return nil, fmt.Errorf("provision: fetching credential %s: %w", id, err)
	}
	ciphertext, err := threshold.ParseCiphertext(data)
	if err != nil {
		return nil, fmt.Errorf("%w: project %s credential: %v", ErrInvalidInput, project.ID, err)
	}
	if ciphertext.AccessID != capability.AccessID(project.ID) {
		return nil, fmt.Errorf("%w: credential is bound to %q, not project %s",
			ErrInvalidInput, ciphertext.AccessID, project.ID)
	}
	return ciphertext, nil
}
