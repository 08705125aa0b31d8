// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
)

type codedError struct{ code int }

func (e codedError) Error() string { return "coded" }
func (e codedError) ExitCode() int { return e.code }

func TestReport(t *testing.T) {
	var out bytes.Buffer
	if code := report(&out, errors.New("disk full")); code != 1 {
		t.Errorf("plain error exit code %d, want 1", code)
	}
	if out.String() != "error: disk full\n" {
		t.Errorf("plain error printed %q", out.String())
	}

	out.Reset()
	wrapped := fmt.Errorf("provision: %w", codedError{code: 2})
	if code := report(&out, wrapped); code != 2 {
		t.Errorf("coded error exit code %d, want 2", code)
	}
	if out.Len() != 0 {
		t.Errorf("coded error printed %q", out.String())
	}
}

func TestSignalContextFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SignalContext(parent)
	defer stop()
	cancel()
	<-ctx.Done()
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("ctx.Err() = %v", ctx.Err())
	}
}
