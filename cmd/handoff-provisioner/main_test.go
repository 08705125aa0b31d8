// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/service"
)

func TestNewHandlerNeedsGrantConfiguration(t *testing.T) {
	public, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	provisioner := &service.Provisioner{Orchestrator: &provision.Orchestrator{}}
	logger := slog.New(slog.DiscardHandler)

	cfg := &config.Config{GrantAudience: "handoff"}
	if _, err := newHandler(cfg, provisioner, logger); err == nil {
		t.Error("missing grant key accepted")
	}
	cfg.GrantPublicKey = base64.StdEncoding.EncodeToString(public)
	if _, err := newHandler(cfg, provisioner, logger); err == nil {
		t.Error("missing grant issuer accepted")
	}
	cfg.GrantIssuer = "https://ui.handoff.test"
	handler, err := newHandler(cfg, provisioner, logger)
	if err != nil {
		t.Fatalf("newHandler: %v", err)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusNoContent {
		t.Errorf("healthz status %d", recorder.Code)
	}
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/projects/P1/provision", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated provision status %d, want 401", recorder.Code)
	}
}
