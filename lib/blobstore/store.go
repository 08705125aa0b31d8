// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrNotFound    = errors.New("blobstore: not found")
	ErrInvalidCID  = errors.New("blobstore: invalid cid")
	ErrCIDMismatch = errors.New("blobstore: content does not match cid")
	ErrImmutable   = errors.New("blobstore: different content already stored under cid")
)

// Store is a content-addressed blob store. Put is idempotent.
type Store interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
}

// Sum returns the CID data is stored under.
func Sum(data []byte) (cid.Cid, error) {
	hash, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("blobstore: hashing: %w", err)
	}
	return cid.NewCidV1(cid.Raw, hash), nil
}

// Parse decodes a CID string.
func Parse(raw string) (cid.Cid, error) {
	id, err := cid.Decode(raw)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	return id, nil
}

func verify(id cid.Cid, data []byte) error {
	got, err := Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return fmt.Errorf("%w: %s holds %s", ErrCIDMismatch, id, got)
	}
	return nil
}

// Dir stores blobs as files under a root directory, fanned out by the
// first two characters of the CID string.
type Dir struct {
	root string
}

// OpenDir creates root if needed and returns a Dir over it.
func OpenDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("blobstore: empty root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: creating root: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(id cid.Cid) string {
	name := id.String()
	return filepath.Join(d.root, name[:2], name)
}

// Put writes data atomically (temp file then rename).
func (d *Dir) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	path := d.path(id)
	if existing, err := os.ReadFile(path); err == nil {
		if !bytes.Equal(existing, data) {
			return cid.Undef, fmt.Errorf("%w: %s", ErrImmutable, id)
		}
		return id, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, fmt.Errorf("blobstore: creating shard directory: %w", err)
	}
	temporary, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return cid.Undef, fmt.Errorf("blobstore: creating temp file: %w", err)
	}
	defer os.Remove(temporary.Name())
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return cid.Undef, fmt.Errorf("blobstore: writing %s: %w", id, err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return cid.Undef, fmt.Errorf("blobstore: syncing %s: %w", id, err)
	}
	if err := temporary.Close(); err != nil {
		return cid.Undef, fmt.Errorf("blobstore: closing %s: %w", id, err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return cid.Undef, fmt.Errorf("blobstore: publishing %s: %w", id, err)
	}
	return id, nil
}

// Get reads and verifies the blob stored under id.
func (d *Dir) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	data, err := os.ReadFile(d.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: reading %s: %w", id, err)
	}
	if err := verify(id, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	blobs map[cid.Cid][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[cid.Cid][]byte)}
}

// Put stores a copy of data.
func (m *Memory) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id] = bytes.Clone(data)
	return id, nil
}

// Get returns a copy of the blob stored under id.
func (m *Memory) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return bytes.Clone(data), nil
}
