// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_ValidSize(t *testing.T) {
	buffer, err := New(64)
	if err != nil {
		t.Fatalf("New(64) failed: %v", err)
	}
	defer buffer.Close()

	if buffer.Len() != 64 {
		t.Errorf("expected length 64, got %d", buffer.Len())
	}

	// Memory should be zero-initialized by mmap.
	for index, value := range buffer.Bytes() {
		if value != 0 {
			t.Fatalf("expected zero at index %d, got %d", index, value)
		}
	}
}

func TestNew_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := New(size); err == nil {
			t.Errorf("New(%d): expected error", size)
		}
	}
}

func TestNewFromBytes_ZerosSource(t *testing.T) {
	source := []byte("ed25519-seed-material")
	original := string(source)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	defer buffer.Close()

	if got := buffer.Reveal(); got != original {
		t.Errorf("Reveal() = %q, want %q", got, original)
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source not zeroed at index %d", index)
		}
	}
}

func TestNewFromBytes_Empty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestBuffer_NeverFormatsContents(t *testing.T) {
	buffer, err := NewFromBytes([]byte("do-not-print-me"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	for _, rendered := range []string{
		buffer.String(),
		fmt.Sprintf("%v", buffer),
		fmt.Sprintf("%s", buffer),
		fmt.Sprintf("%#v", buffer),
		fmt.Sprintf("%+v", buffer),
	} {
		if strings.Contains(rendered, "do-not-print-me") {
			t.Errorf("formatted output leaked the secret: %q", rendered)
		}
	}

	var logOutput bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logOutput, nil))
	logger.Info("debug dump", "seed", buffer)
	if strings.Contains(logOutput.String(), "do-not-print-me") {
		t.Errorf("slog output leaked the secret: %s", logOutput.String())
	}
	if !strings.Contains(logOutput.String(), redacted) {
		t.Errorf("slog output missing redaction marker: %s", logOutput.String())
	}
}

func TestBuffer_Equal(t *testing.T) {
	buffer, err := NewFromBytes([]byte("holder-credential"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if !buffer.Equal([]byte("holder-credential")) {
		t.Error("Equal returned false for identical contents")
	}
	if buffer.Equal([]byte("holder-credentiaL")) {
		t.Error("Equal returned true for different contents")
	}
	if buffer.Equal([]byte("holder")) {
		t.Error("Equal returned true for a prefix")
	}
}

func TestBuffer_Clone(t *testing.T) {
	buffer, err := NewFromBytes([]byte("ephemeral"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}

	clone, err := buffer.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	defer clone.Close()

	buffer.Close()
	if clone.Reveal() != "ephemeral" {
		t.Errorf("clone contents changed after closing the original")
	}
}

func TestBuffer_Close_ZerosAndIsIdempotent(t *testing.T) {
	buffer, err := NewFromBytes([]byte("wipe-me"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}

	if err := buffer.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !buffer.Closed() {
		t.Error("Closed() = false after Close")
	}

	var nilBuffer *Buffer
	if err := nilBuffer.Close(); err != nil {
		t.Errorf("Close on nil buffer: %v", err)
	}
}

func TestBuffer_PanicsAfterClose(t *testing.T) {
	accessors := map[string]func(*Buffer){
		"Bytes":  func(b *Buffer) { b.Bytes() },
		"Reveal": func(b *Buffer) { b.Reveal() },
		"Equal":  func(b *Buffer) { b.Equal(nil) },
	}
	for name, access := range accessors {
		t.Run(name, func(t *testing.T) {
			buffer, err := New(8)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			buffer.Close()

			defer func() {
				if recover() == nil {
					t.Errorf("%s after Close did not panic", name)
				}
			}()
			access(buffer)
		})
	}
}
