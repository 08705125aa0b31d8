// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/bureau-foundation/handoff/lib/budget"
	"github.com/bureau-foundation/handoff/lib/config"
	"github.com/bureau-foundation/handoff/lib/netutil"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/subresource"
)

// DefaultRunTimeout bounds a run when Config.RunTimeout is zero.
const DefaultRunTimeout = 3 * time.Minute

// Runner executes provisioning runs. *provision.Orchestrator
// satisfies it.
type Runner interface {
	Run(ctx context.Context, request provision.Request) (*provision.Result, error)
}

// BudgetSource reports the current gas budgets.
type BudgetSource interface {
	Budgets(ctx context.Context) budget.Budgets
}

// Config configures a Server.
type Config struct {
	Runner Runner
	Grants *GrantVerifier

	// Budgets defaults to budget.Fallback.
	Budgets BudgetSource

	// CORSOrigins lists the UI origins allowed to call the API.
	CORSOrigins []string

	RunTimeout time.Duration

	Logger *slog.Logger
}

// Server is the HTTP surface.
type Server struct {
	config  Config
	logger  *slog.Logger
	handler http.Handler
}

// New validates cfg and builds the routes.
func New(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("api: no runner")
	}
	if cfg.Grants == nil {
		return nil, errors.New("api: no grant verifier")
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{config: cfg, logger: logger}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	router.Get("/v1/budgets", s.handleBudgets)
	router.Post("/v1/projects/{projectObjectId}/provision", s.handleProvision)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(router)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ProvisionResponse is the body of every provisioning response.
// Success fields and failure fields are mutually exclusive.
type ProvisionResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"runId,omitempty"`

	ProjectID          ref.ObjectID     `json:"projectId,omitempty"`
	CapabilityID       ref.ObjectID     `json:"capabilityId,omitempty"`
	HolderAddress      string           `json:"holderAddress,omitempty"`
	EphemeralAddress   string           `json:"ephemeralAddress,omitempty"`
	EphemeralSecret    string           `json:"ephemeralSecret,omitempty"`
	TransactionDigests []ref.Digest     `json:"transactionDigests,omitempty"`
	SubResources       *subresource.Set `json:"subResources,omitempty"`
	Budgets            *budget.Budgets  `json:"budgets,omitempty"`

	ErrorKind        provision.Kind    `json:"errorKind,omitempty"`
	Message          string            `json:"message,omitempty"`
	Stage            provision.Stage   `json:"stage,omitempty"`
	Outcome          provision.Outcome `json:"outcome,omitempty"`
	Stranded         bool              `json:"stranded,omitempty"`
	CommittedDigests []ref.Digest      `json:"committedDigests,omitempty"`
	FailedDigest     string            `json:"failedDigest,omitempty"`
	UnresolvedDigest string            `json:"unresolvedDigest,omitempty"`
	SecretProduced   bool              `json:"secretProduced,omitempty"`
}

// Request-level rejections that never reach the orchestrator.
const (
	kindUnauthorized provision.Kind = "Unauthorized"
	kindForbidden    provision.Kind = "Forbidden"
)

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		s.reject(w, http.StatusUnauthorized, kindUnauthorized, "bearer grant required")
		return
	}
	grant, err := s.config.Grants.Verify(token)
	if err != nil {
		s.logger.Warn("provisioning grant rejected", "error", err)
		s.reject(w, http.StatusUnauthorized, kindUnauthorized, err.Error())
		return
	}

	var file config.RequestFile
	if err := netutil.DecodeRequest(r.Body, &file); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, netutil.ErrRequestTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.reject(w, status, provision.KindInvalidInput, err.Error())
		return
	}
	project := chi.URLParam(r, "projectObjectId")
	if file.ProjectObjectID != "" && strings.TrimSpace(file.ProjectObjectID) != project {
		s.reject(w, http.StatusBadRequest, provision.KindInvalidInput,
			fmt.Sprintf("body projectObjectId %q does not match path %q", file.ProjectObjectID, project))
		return
	}
	file.ProjectObjectID = project
	if file.UserAddress == "" {
		file.UserAddress = grant.Subject.String()
	}
	request, err := file.Request()
	if err != nil {
		s.reject(w, http.StatusBadRequest, provision.KindInvalidInput, err.Error())
		return
	}
	if request.Caller != grant.Subject {
		s.reject(w, http.StatusForbidden, kindForbidden, "userAddress does not match the grant subject")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.config.RunTimeout)
	defer cancel()
	result, err := s.config.Runner.Run(ctx, request)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	defer result.Close()

	response := SuccessResponse(result)
	s.logger.Info("project provisioned",
		"run_id", result.RunID,
		"project", result.Project,
		"caller", request.Caller,
		"capability", result.Capability,
	)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var failure *provision.Error
	if !errors.As(err, &failure) {
		s.logger.Error("provisioning returned an unclassified error", "error", err)
		s.reject(w, http.StatusInternalServerError, provision.KindInternal, err.Error())
		return
	}
	writeJSON(w, statusForKind(failure.Kind), FailureResponse(failure))
}

// SuccessResponse reports a completed run. It reveals the ephemeral
// secret but leaves result open.
func SuccessResponse(result *provision.Result) ProvisionResponse {
	response := ProvisionResponse{
		Success:            true,
		RunID:              result.RunID,
		ProjectID:          result.Project,
		CapabilityID:       result.Capability,
		HolderAddress:      result.HolderAddress.String(),
		EphemeralAddress:   result.EphemeralAddress.String(),
		TransactionDigests: result.TransactionDigests(),
		SubResources:       result.SubResources,
		Budgets:            &result.Budgets,
	}
	if result.EphemeralSecret != nil {
		response.EphemeralSecret = result.EphemeralSecret.Reveal()
	}
	return response
}

// FailureResponse reports a failed run. A retained ephemeral secret is
// revealed into the response and closed.
func FailureResponse(failure *provision.Error) ProvisionResponse {
	response := ProvisionResponse{
		RunID:            failure.RunID,
		ProjectID:        failure.Project,
		CapabilityID:     failure.Capability,
		ErrorKind:        failure.Kind,
		Message:          failure.Error(),
		Stage:            failure.Stage,
		Outcome:          failure.Outcome(),
		Stranded:         failure.Stranded(),
		CommittedDigests: failure.Committed,
		SecretProduced:   failure.SecretProduced,
	}
	if !failure.Failed.IsZero() {
		response.FailedDigest = failure.Failed.String()
	}
	if !failure.Unresolved.IsZero() {
		response.UnresolvedDigest = failure.Unresolved.String()
	}
	if !failure.EphemeralAddress.IsZero() {
		response.EphemeralAddress = failure.EphemeralAddress.String()
	}
	if failure.EphemeralSecret != nil {
		response.EphemeralSecret = failure.EphemeralSecret.Reveal()
		failure.EphemeralSecret.Close()
		failure.EphemeralSecret = nil
	}
	return response
}

func statusForKind(kind provision.Kind) int {
	switch kind {
	case provision.KindInvalidInput, provision.KindParticipantArrayMismatch:
		return http.StatusBadRequest
	case provision.KindTimeout:
		return http.StatusGatewayTimeout
	case provision.KindQuorumUnreachable, provision.KindCanceled:
		return http.StatusServiceUnavailable
	case provision.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	budgets := budget.Fallback
	if s.config.Budgets != nil {
		budgets = s.config.Budgets.Budgets(r.Context())
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) reject(w http.ResponseWriter, status int, kind provision.Kind, message string) {
	writeJSON(w, status, ProvisionResponse{ErrorKind: kind, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
