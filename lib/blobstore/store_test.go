// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestStores(t *testing.T) {
	dir, err := OpenDir(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	for name, store := range map[string]Store{"dir": dir, "memory": NewMemory()} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := store.Put(ctx, []byte("sealed credential"))
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			again, err := store.Put(ctx, []byte("sealed credential"))
			if err != nil || !again.Equals(id) {
				t.Fatalf("second Put = %v, %v; want %v", again, err, id)
			}
			data, err := store.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(data) != "sealed credential" {
				t.Fatalf("Get = %q", data)
			}

			parsed, err := Parse(id.String())
			if err != nil || !parsed.Equals(id) {
				t.Fatalf("Parse(%s) = %v, %v", id, parsed, err)
			}

			missing, _ := Sum([]byte("never stored"))
			if _, err := store.Get(ctx, missing); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDirDetectsCorruption(t *testing.T) {
	dir, err := OpenDir(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	ctx := context.Background()
	id, err := dir.Put(ctx, []byte("original"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := os.WriteFile(dir.path(id), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := dir.Get(ctx, id); !errors.Is(err, ErrCIDMismatch) {
		t.Fatalf("Get after tamper: error = %v, want ErrCIDMismatch", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-cid"); !errors.Is(err, ErrInvalidCID) {
		t.Fatalf("error = %v, want ErrInvalidCID", err)
	}
}
