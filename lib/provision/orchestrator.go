// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bureau-foundation/handoff/lib/blobstore"
	"github.com/bureau-foundation/handoff/lib/budget"
	"github.com/bureau-foundation/handoff/lib/capability"
	"github.com/bureau-foundation/handoff/lib/clock"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/secret"
	"github.com/bureau-foundation/handoff/lib/session"
	"github.com/bureau-foundation/handoff/lib/subresource"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

const tracerName = "github.com/bureau-foundation/handoff/lib/provision"

// Defaults for Config fields left zero.
const (
	DefaultEphemeralFunding = 10_000_000
	DefaultLookupTimeout    = 15 * time.Second
	DefaultSessionTimeout   = 30 * time.Second
	DefaultDecryptTimeout   = 30 * time.Second

	// closeTimeout bounds grant revocation after a run.
	closeTimeout = 5 * time.Second
)

// Minter submits the mint transaction.
type Minter interface {
	Mint(ctx context.Context, admin *identity.Admin, request capability.MintRequest) (*capability.MintReceipt, ref.Digest, error)
}

// Prover builds policy proofs.
type Prover interface {
	BuildPolicyProof(sender ref.Address, capabilityID, project ref.ObjectID) ([]byte, error)
}

// Finalizer submits the finalize transaction.
type Finalizer interface {
	Finalize(ctx context.Context, holder *identity.Holder, request capability.FinalizeRequest) (*capability.Receipt, ref.Digest, error)
}

// Issuer submits the sub-resource transaction.
type Issuer interface {
	Issue(ctx context.Context, holder *identity.Holder, request subresource.Request) (*subresource.Set, ref.Digest, error)
}

// Authenticator opens and closes key-server sessions.
type Authenticator interface {
	Create(ctx context.Context, signer session.Signer, pkg ref.ObjectID) (*session.Token, error)
	Close(ctx context.Context, token *session.Token)
}

// Decryptor recovers the holder credential.
type Decryptor interface {
	Decrypt(ctx context.Context, ciphertext *threshold.Ciphertext, grants threshold.Grants, policyTx []byte) (*secret.Buffer, error)
}

// BudgetSource supplies gas budgets for runs without an override.
type BudgetSource interface {
	Budgets(ctx context.Context) budget.Budgets
}

// Recorder persists run reports.
type Recorder interface {
	Record(ctx context.Context, report *Report) error
}

// Config wires an Orchestrator.
type Config struct {
	Ledger  ledger.Client
	Store   blobstore.Store
	Package ref.ObjectID

	// Admin signs every mint. It must own the admin capability and
	// every project provisioned.
	Admin *identity.Admin

	Minter    Minter
	Prover    Prover
	Finalizer Finalizer
	Issuer    Issuer
	Sessions  Authenticator
	Decryptor Decryptor

	// Budgets defaults to the fixed budget.Fallback.
	Budgets BudgetSource

	// EphemeralFunding is split from the admin to the ephemeral
	// identity in the mint transaction.
	EphemeralFunding uint64

	LookupTimeout  time.Duration
	SessionTimeout time.Duration
	DecryptTimeout time.Duration

	// Recorder is optional.
	Recorder Recorder

	Clock  clock.Clock
	Logger *slog.Logger
	Tracer trace.Tracer
}

// Orchestrator runs provisioning. It holds no per-run state and is
// safe for concurrent use.
type Orchestrator struct {
	config Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New validates config and returns an Orchestrator.
func New(config Config) (*Orchestrator, error) {
	switch {
	case config.Ledger == nil:
		return nil, errors.New("provision: no ledger client")
	case config.Store == nil:
		return nil, errors.New("provision: no credential store")
	case config.Package.IsZero():
		return nil, errors.New("provision: no package")
	case config.Admin == nil:
		return nil, errors.New("provision: no admin identity")
	case config.Minter == nil, config.Prover == nil, config.Finalizer == nil:
		return nil, errors.New("provision: capability services are required")
	case config.Issuer == nil:
		return nil, errors.New("provision: no sub-resource issuer")
	case config.Sessions == nil:
		return nil, errors.New("provision: no session authenticator")
	case config.Decryptor == nil:
		return nil, errors.New("provision: no decryptor")
	}
	if config.EphemeralFunding == 0 {
		config.EphemeralFunding = DefaultEphemeralFunding
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}
	if config.SessionTimeout == 0 {
		config.SessionTimeout = DefaultSessionTimeout
	}
	if config.DecryptTimeout == 0 {
		config.DecryptTimeout = DefaultDecryptTimeout
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Orchestrator{config: config, logger: logger, tracer: tracer}, nil
}

// run is the request-scoped state of one provisioning run.
type run struct {
	*Orchestrator

	id        string
	request   Request
	logger    *slog.Logger
	startedAt time.Time

	state      State
	budgets    budget.Budgets
	expiration uint64
	filtered   *subresource.Filtered
	credential *threshold.Ciphertext

	ephemeral *identity.Ephemeral
	token     *session.Token
	proof     []byte
	holder    *identity.Holder

	capability  ref.ObjectID
	digests     Digests
	committed   []ref.Digest
	failed      ref.Digest
	unresolved  ref.Digest
	produced    bool
	transferred bool
	set         *subresource.Set
}

// Run provisions request.Project. On success the caller owns
// Result.EphemeralSecret. Every failure is an *Error.
func (o *Orchestrator) Run(ctx context.Context, request Request) (*Result, error) {
	r := &run{
		Orchestrator: o,
		id:           uuid.NewString(),
		request:      request,
		startedAt:    o.config.Clock.Now(),
		state:        StateInit,
	}
	r.logger = o.logger.With("run_id", r.id, "project", request.Project)

	ctx, span := o.tracer.Start(ctx, "provision.Run", trace.WithAttributes(
		attribute.String("handoff.run_id", r.id),
		attribute.String("handoff.project", string(request.Project)),
	))
	defer span.End()

	defer r.release()
	result, err := r.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	o.record(ctx, r, err)
	return result, err
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	if err := r.stage(ctx, StageValidate, r.validate); err != nil {
		return nil, err
	}
	for _, step := range []struct {
		stage Stage
		do    func(context.Context) error
	}{
		{StageMint, r.mint},
		{StageSession, r.openSession},
		{StagePolicy, r.buildProof},
		{StageDecrypt, r.decrypt},
		{StageFinalize, r.finalize},
		{StageIssue, r.issue},
	} {
		if err := r.stage(ctx, step.stage, step.do); err != nil {
			return nil, err
		}
	}

	secretText, err := r.ephemeral.ExportSecret()
	if err != nil {
		return nil, r.fail(StageIssue, err)
	}
	r.state = StateDone
	r.logger.Info("provisioning done",
		"capability", r.capability,
		"holder", r.holder.Address(),
		"ephemeral", r.ephemeral.Address(),
	)
	return &Result{
		RunID:            r.id,
		Project:          r.request.Project,
		Capability:       r.capability,
		HolderAddress:    r.holder.Address(),
		EphemeralAddress: r.ephemeral.Address(),
		EphemeralSecret:  secretText,
		Digests:          r.digests,
		SubResources:     r.set,
		Budgets:          r.budgets,
	}, nil
}

// stage runs one step inside its own span and converts its failure
// into an *Error.
func (r *run) stage(ctx context.Context, stage Stage, do func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return r.fail(stage, err)
	}
	ctx, span := r.tracer.Start(ctx, "provision."+string(stage))
	defer span.End()

	r.logger.Info("provisioning stage started", "stage", stage, "state", r.state)
	if err := do(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return r.fail(stage, err)
	}
	if next, ok := stage.next(); ok {
		r.state = next
	}
	r.logger.Info("provisioning stage completed", "stage", stage, "state", r.state)
	return nil
}

func (r *run) fail(stage Stage, err error) *Error {
	failure := &Error{
		RunID:                r.id,
		Project:              r.request.Project,
		Stage:                stage,
		Kind:                 kindForStage(stage, err),
		State:                r.state,
		Capability:           r.capability,
		Committed:            append([]ref.Digest(nil), r.committed...),
		Failed:               r.failed,
		Unresolved:           r.unresolved,
		SecretProduced:       r.produced,
		OwnershipTransferred: r.transferred,
		Err:                  err,
	}
	if r.ephemeral != nil {
		failure.EphemeralAddress = r.ephemeral.Address()
		// An unresolved mint may have handed the project to the
		// ephemeral identity even though no capability id is known.
		controls := !r.capability.IsZero() || !r.unresolved.IsZero()
		if r.request.RetainEphemeralOnFailure && controls {
			exported, exportErr := r.ephemeral.ExportSecret()
			if exportErr != nil {
				r.logger.Error("exporting ephemeral secret failed", "error", exportErr)
			} else {
				failure.EphemeralSecret = exported
			}
		}
	}
	r.state = StateFailed

	level := slog.LevelError
	if failure.Kind == KindInvalidInput || failure.Kind == KindParticipantArrayMismatch {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "provisioning failed",
		"stage", stage,
		"kind", failure.Kind,
		"capability", failure.Capability,
		"outcome", failure.Outcome(),
		"committed", len(failure.Committed),
		"secret_produced", failure.SecretProduced,
		"error", err,
	)
	return failure
}

// commit records a final, successful transaction.
func (r *run) commit(digest ref.Digest) {
	r.committed = append(r.committed, digest)
}

// settle records what a failed stage's transaction left behind. A zero
// digest was never submitted. A final failure is Failed. A wait that
// never saw finality is Unresolved. Anything else succeeded on the
// ledger and failed afterwards, so it is both committed and
// unresolved.
func (r *run) settle(digest ref.Digest, err error) {
	if digest.IsZero() {
		return
	}
	var execution *ledger.ExecutionError
	switch {
	case errors.Is(err, ledger.ErrOutcomeUnknown):
		r.unresolved = digest
	case errors.As(err, &execution):
		r.failed = digest
	default:
		r.commit(digest)
		r.unresolved = digest
	}
}

// release zeroes request-scoped key material and revokes the session.
func (r *run) release() {
	if r.token != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		r.config.Sessions.Close(ctx, r.token)
		cancel()
	}
	if r.holder != nil {
		r.holder.Close()
	}
	if r.ephemeral != nil {
		r.ephemeral.Close()
	}
}

func (r *run) validate(ctx context.Context) error {
	request := r.request
	if _, err := ref.ParseObjectID(string(request.Project)); err != nil {
		return fmt.Errorf("%w: project id: %v", ErrInvalidInput, err)
	}
	if err := subresource.ValidateTargetName(request.TargetName); err != nil {
		return err
	}
	if request.Caller.IsZero() {
		return fmt.Errorf("%w: no caller address", ErrInvalidInput)
	}
	expiration, err := subresource.ResolveExpiration(request.ExpirationMs, r.config.Clock.Now())
	if err != nil {
		return err
	}
	r.expiration = expiration
	filtered, err := subresource.Filter(request.Participants)
	if err != nil {
		return err
	}
	r.filtered = filtered
	for _, skipped := range filtered.Skipped {
		r.logger.Warn("participant skipped: not a ledger address", "address", skipped.Address, "role", skipped.Role)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()
	project, err := r.config.Ledger.GetObject(lookupCtx, request.Project)
	if errors.Is(err, ledger.ErrObjectNotFound) {
		return fmt.Errorf("%w: project %s does not exist", ErrInvalidInput, request.Project)
	}
	if err != nil {
		return err
	}
	if project.Type.Package != r.config.Package || project.Type.Module != ledger.ModuleProject || project.Type.Name != ledger.TypeProject {
		return fmt.Errorf("%w: %s is a %s, not a project", ErrInvalidInput, request.Project, project.Type)
	}
	if project.Owner != r.config.Admin.Address() {
		return fmt.Errorf("%w: project %s is owned by %s, not the admin", ErrInvalidInput, request.Project, project.Owner)
	}
	r.credential, err = loadCredential(lookupCtx, r.config.Store, project)
	if err != nil {
		return err
	}

	switch {
	case request.GasBudgetOverride > 0:
		r.budgets = budget.Uniform(request.GasBudgetOverride)
	case r.config.Budgets != nil:
		r.budgets = r.config.Budgets.Budgets(ctx)
	default:
		r.budgets = budget.Fallback
	}
	return nil
}

func (r *run) mint(ctx context.Context) error {
	ephemeral, err := identity.GenerateEphemeral()
	if err != nil {
		return err
	}
	r.ephemeral = ephemeral
	r.logger.Info("ephemeral identity generated", "ephemeral", ephemeral.Address())

	receipt, digest, err := r.config.Minter.Mint(ctx, r.config.Admin, capability.MintRequest{
		Project:   r.request.Project,
		Ephemeral: ephemeral.Address(),
		Funding:   r.config.EphemeralFunding,
		GasBudget: r.budgets.Mint,
	})
	if err != nil {
		r.settle(digest, err)
		return err
	}
	r.capability = receipt.Capability
	r.digests.Mint = digest
	r.commit(digest)
	return nil
}

func (r *run) openSession(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.SessionTimeout)
	defer cancel()
	token, err := r.config.Sessions.Create(ctx, r.ephemeral, r.config.Package)
	if err != nil {
		return err
	}
	r.token = token
	return nil
}

func (r *run) buildProof(context.Context) error {
	proof, err := r.config.Prover.BuildPolicyProof(r.ephemeral.Address(), r.capability, r.request.Project)
	if err != nil {
		return err
	}
	r.proof = proof
	return nil
}

func (r *run) decrypt(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.DecryptTimeout)
	defer cancel()
	plaintext, err := r.config.Decryptor.Decrypt(ctx, r.credential, r.token, r.proof)
	if err != nil {
		return err
	}
	r.produced = true
	holder, err := identity.RecoverHolder(plaintext)
	if err != nil {
		return fmt.Errorf("%w: %w", threshold.ErrDecryptionMalformed, err)
	}
	r.holder = holder
	r.logger.Info("holder credential recovered", "holder", holder.Address())
	return nil
}

func (r *run) finalize(ctx context.Context) error {
	_, digest, err := r.config.Finalizer.Finalize(ctx, r.holder, capability.FinalizeRequest{
		Capability: r.capability,
		Project:    r.request.Project,
		Holder:     r.holder.Address(),
		GasBudget:  r.budgets.Finalize,
	})
	if err != nil {
		r.settle(digest, err)
		return err
	}
	r.digests.Finalize = digest
	r.commit(digest)
	r.transferred = true
	return nil
}

func (r *run) issue(ctx context.Context) error {
	set, digest, err := r.config.Issuer.Issue(ctx, r.holder, subresource.Request{
		Project:      r.request.Project,
		TargetName:   r.request.TargetName,
		Ephemeral:    r.ephemeral.Address(),
		Caller:       r.request.Caller,
		Participants: r.filtered,
		ExpirationMs: r.expiration,
		GasBudget:    r.budgets.Issue,
	})
	if err != nil {
		r.settle(digest, err)
		return err
	}
	r.set = set
	r.digests.Issue = digest
	r.commit(digest)
	return nil
}

func (o *Orchestrator) record(ctx context.Context, r *run, err error) {
	if o.config.Recorder == nil {
		return
	}
	report := &Report{
		RunID:          r.id,
		Project:        r.request.Project,
		Caller:         r.request.Caller,
		TargetName:     r.request.TargetName,
		State:          r.state,
		Capability:     r.capability,
		Committed:      append([]ref.Digest(nil), r.committed...),
		Failed:         r.failed,
		Unresolved:     r.unresolved,
		SecretProduced: r.produced,
		Outcome:        OutcomeDone,
		StartedAt:      r.startedAt,
		FinishedAt:     o.config.Clock.Now(),
	}
	if r.ephemeral != nil {
		report.Ephemeral = r.ephemeral.Address()
	}
	if r.holder != nil {
		report.Holder = r.holder.Address()
	}
	var failure *Error
	if errors.As(err, &failure) {
		report.Stage = failure.Stage
		report.Kind = failure.Kind
		report.Outcome = failure.Outcome()
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if recordErr := o.config.Recorder.Record(recordCtx, report); recordErr != nil {
		r.logger.Error("recording provisioning report failed", "error", recordErr)
	}
}
