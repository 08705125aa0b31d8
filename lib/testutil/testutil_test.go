// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"os"
	"testing"
	"time"
)

// recordingTB captures Fatalf instead of stopping the test.
type recordingTB struct {
	message string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Fatalf(format string, args ...any) {
	r.message = fmt.Sprintf(format, args...)
	panic(r)
}

func expectFatal(t *testing.T, fn func(tb *recordingTB)) string {
	t.Helper()
	tb := &recordingTB{}
	func() {
		defer func() {
			if recovered := recover(); recovered != tb {
				panic(recovered)
			}
		}()
		fn(tb)
	}()
	return tb.message
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "buffered value"); got != 7 {
		t.Errorf("got %d, want 7", got)
	}

	message := expectFatal(t, func(tb *recordingTB) {
		RequireReceive(tb, make(chan int), time.Millisecond, "waiting for %s", "nothing")
	})
	if message != "timed out after 1ms: waiting for nothing" {
		t.Errorf("timeout message %q", message)
	}

	closed := make(chan int)
	close(closed)
	message = expectFatal(t, func(tb *recordingTB) {
		RequireReceive(tb, closed, time.Second)
	})
	if message != "channel closed without sending a value: (no message)" {
		t.Errorf("closed-channel message %q", message)
	}
}

func TestWriteSecretFile(t *testing.T) {
	path := WriteSecretFile(t, t.TempDir(), "seed", "ed25519:AAAA")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "ed25519:AAAA\n" {
		t.Errorf("file holds %q", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode %v", info.Mode().Perm())
	}
}
