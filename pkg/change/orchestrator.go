// Package change runs the single-device change saga: backup, fetch intent,
// render, hygiene gate, deploy, validate, and compensate on failure.
//
// Every step is journaled before it runs, so an interrupted saga can be
// recovered from its last record. Once a deploy has been attempted, any
// failure (cancellation included) restores the pre-change backup and marks
// the device for maintenance.
package change

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/network-synapse/synapse/pkg/audit"
	"github.com/network-synapse/synapse/pkg/backup"
	"github.com/network-synapse/synapse/pkg/device"
	"github.com/network-synapse/synapse/pkg/hygiene"
	"github.com/network-synapse/synapse/pkg/intent"
	"github.com/network-synapse/synapse/pkg/render"
	"github.com/network-synapse/synapse/pkg/util"
	"github.com/network-synapse/synapse/pkg/validate"
)

// Source is the source-of-truth surface the saga uses.
type Source interface {
	Fetch(ctx context.Context, hostname string) (*intent.DeviceIntent, error)
	UpdateDeviceStatus(ctx context.Context, hostname, status string) (string, error)
}

// Archive keeps backups outside the journal.
type Archive interface {
	Save(host, changeID string, blob []byte) (backup.Entry, error)
}

// Request names the device to change.
type Request struct {
	Hostname string `json:"hostname"`
	Address  string `json:"address"`
}

var errInterrupted = errors.New("saga interrupted before completion")

// Orchestrator runs sagas. It holds no per-saga state and may run several
// sagas concurrently for different devices.
type Orchestrator struct {
	source      Source
	gw          device.Gateway
	journal     Journal
	transformer *render.Transformer
	checker     *hygiene.Checker
	validator   *validate.Validator
	archive     Archive

	fetchPolicy  RetryPolicy
	deployPolicy RetryPolicy
	clock        Clock
	metrics      *Metrics
	auditLog     audit.Logger
	user         string
	newID        func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTransformer sets the renderer. The default uses render.DefaultOptions.
func WithTransformer(t *render.Transformer) Option { return func(o *Orchestrator) { o.transformer = t } }

// WithChecker sets the hygiene gate. The default accepts SR Linux names.
func WithChecker(c *hygiene.Checker) Option { return func(o *Orchestrator) { o.checker = c } }

// WithValidator sets the post-deploy checks. The default reads state from
// the gateway in the "default" network instance.
func WithValidator(v *validate.Validator) Option { return func(o *Orchestrator) { o.validator = v } }

// WithArchive keeps a copy of every pre-change backup outside the journal.
func WithArchive(a Archive) Option { return func(o *Orchestrator) { o.archive = a } }

// WithClock replaces the clock used for retry delays.
func WithClock(c Clock) Option { return func(o *Orchestrator) { o.clock = c } }

// WithMetrics records saga outcomes, step durations and retries on m.
func WithMetrics(m *Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithAuditLogger sends the per-saga audit event to l instead of the
// default audit logger.
func WithAuditLogger(l audit.Logger) Option { return func(o *Orchestrator) { o.auditLog = l } }

// WithUser sets the user recorded on audit events and records.
func WithUser(user string) Option { return func(o *Orchestrator) { o.user = user } }

// WithIDGenerator replaces NewChangeID.
func WithIDGenerator(f func() string) Option { return func(o *Orchestrator) { o.newID = f } }

// WithPolicies sets the source-of-truth and device retry policies.
func WithPolicies(fetch, deploy RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.fetchPolicy = fetch
		o.deployPolicy = deploy
	}
}

// NewOrchestrator creates an orchestrator with reference defaults for
// anything not set by an option.
func NewOrchestrator(source Source, gw device.Gateway, journal Journal, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:       source,
		gw:           gw,
		journal:      journal,
		fetchPolicy:  DefaultRetryPolicy(),
		deployPolicy: DefaultRetryPolicy(),
		clock:        RealClock(),
		newID:        NewChangeID,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.transformer == nil {
		o.transformer = render.NewTransformer(render.DefaultOptions())
	}
	if o.checker == nil {
		o.checker = hygiene.NewChecker(nil)
	}
	if o.validator == nil {
		o.validator = validate.NewValidator(gw, "default")
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	if o.user == "" {
		o.user = audit.CurrentUser()
	}
	return o
}

var randRead = rand.Read

// NewChangeID returns a sortable, unique change id. If the system random
// source fails the suffix falls back to the clock's nanoseconds.
func NewChangeID() string {
	now := time.Now().UTC()
	var b [3]byte
	if _, err := randRead(b[:]); err != nil {
		util.Warnf("change id: random source: %v", err)
		ns := now.Nanosecond()
		b = [3]byte{byte(ns >> 16), byte(ns >> 8), byte(ns)}
	}
	return "chg-" + now.Format("20060102-150405") + "-" + hex.EncodeToString(b[:])
}

// Run executes one saga to a terminal phase. The record is returned even
// when the saga fails; the error is a *ChangeError.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Record, error) {
	if req.Hostname == "" || req.Address == "" {
		return nil, util.NewValidationError("hostname and address are required")
	}
	rec := newRecord(o.newID(), req.Hostname, req.Address, o.clock.Now())
	if err := o.journal.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("journal %s: %w", rec.ID, err)
	}

	s := o.saga(rec)
	s.log.Infof("Starting change (address %s)", rec.Address)
	err := s.run(ctx)
	o.finish(ctx, s, audit.OpChangeRun, err)
	return rec, err
}

// Recover drives an interrupted saga to a terminal phase. A saga that
// attempted a deploy is compensated from its journaled backup; one that did
// not is aborted.
func (o *Orchestrator) Recover(ctx context.Context, id string) (*Record, error) {
	rec, err := o.journal.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Terminal() {
		return rec, fmt.Errorf("%w: %s is %s", ErrAlreadyFinished, id, rec.Phase)
	}

	s := o.saga(rec)
	s.log.Infof("Recovering change from phase %s", rec.Phase)
	err = s.recover(ctx)
	o.finish(ctx, s, audit.OpChangeRecover, err)
	return rec, err
}

// Pending lists records that have not reached a terminal phase.
func (o *Orchestrator) Pending(ctx context.Context) ([]*Record, error) {
	return o.journal.List(ctx, JournalFilter{PendingOnly: true})
}

func (o *Orchestrator) finish(ctx context.Context, s *saga, op string, err error) {
	rec := s.rec
	now := o.clock.Now()
	if rec.Outcome == "" {
		rec.Outcome = OutcomeAborted
	}
	rec.FinishedAt = &now
	rec.UpdatedAt = now
	if err != nil {
		rec.Error = err.Error()
	}
	s.save(ctx)
	o.metrics.outcome(rec.Outcome)

	event := audit.NewEvent(o.user, rec.Hostname, op).
		WithChange(rec.ID, string(rec.Phase), string(rec.Outcome)).
		WithDetail("address", rec.Address).
		WithDuration(now.Sub(rec.StartedAt))
	if rec.BackupPath != "" {
		event.WithDetail("backup", rec.BackupPath)
	}
	if err != nil {
		event.WithError(err)
	} else {
		event.WithSuccess()
	}
	logEvent := audit.Log
	if o.auditLog != nil {
		logEvent = o.auditLog.Log
	}
	if aerr := logEvent(event); aerr != nil {
		s.log.Warnf("audit log failed: %v", aerr)
	}

	if err != nil {
		s.log.Errorf("Change ended %s at %s: %v", rec.Outcome, rec.Phase, err)
		return
	}
	s.log.Infof("Change %s", rec.Outcome)
}

// saga holds the state of one run or recovery.
type saga struct {
	o   *Orchestrator
	rec *Record
	log *logrus.Entry
}

func (o *Orchestrator) saga(rec *Record) *saga {
	return &saga{o: o, rec: rec, log: util.WithChange(rec.ID, rec.Hostname)}
}

// save journals the record. Journaling outlives cancellation.
func (s *saga) save(ctx context.Context) error {
	if err := s.o.journal.Save(context.WithoutCancel(ctx), s.rec); err != nil {
		s.log.Errorf("journal write failed: %v", err)
		return err
	}
	return nil
}

func (s *saga) advance(ctx context.Context, to Phase, kind TransitionKind, cause error) {
	if err := s.rec.advance(to, kind, cause, s.o.clock.Now()); err != nil {
		s.log.Errorf("%v", err)
		return
	}
	s.log.Debugf("phase %s (%s)", to, kind)
	s.save(ctx)
}

func kindFor(err error) TransitionKind {
	if util.IsRetryable(err) {
		return KindRetryableFailure
	}
	return KindFatalFailure
}

var single = RetryPolicy{MaxAttempts: 1}

// attempt runs fn under policy. Each attempt gets its own idempotency key
// and is journaled before fn runs.
func (s *saga) attempt(ctx context.Context, step string, policy RetryPolicy, retryable func(error) bool, fn func(context.Context) error) error {
	start := s.o.clock.Now()
	defer func() { s.o.metrics.observe(step, s.o.clock.Now().Sub(start)) }()

	onRetry := func(attempt int, err error, wait time.Duration) {
		s.o.metrics.retry(step)
		s.log.WithField("step", step).Warnf("attempt %d failed, retrying in %s: %v", attempt, wait, err)
	}
	return policy.Do(ctx, s.o.clock, retryable, onRetry, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, key := s.rec.beginAttempt(step)
		if err := s.save(ctx); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			s.rec.stepFailed(step, key, n, err, s.o.clock.Now())
			return err
		}
		s.rec.Keys[key] = KeySucceeded
		return nil
	})
}

func (s *saga) fail(step string, outcome Outcome, err error) *ChangeError {
	s.rec.Outcome = outcome
	return &ChangeError{
		ID:       s.rec.ID,
		Hostname: s.rec.Hostname,
		Phase:    s.rec.Phase,
		Step:     step,
		Outcome:  outcome,
		Err:      err,
	}
}

func (s *saga) abort(ctx context.Context, step string, cause error) error {
	s.advance(ctx, PhaseAborted, kindFor(cause), cause)
	return s.fail(step, OutcomeAborted, cause)
}

func (s *saga) run(ctx context.Context) error {
	o, rec := s.o, s.rec

	// Backup
	err := s.attempt(ctx, StepBackup, o.deployPolicy, util.IsRetryable, func(ctx context.Context) error {
		blob, err := o.gw.Backup(ctx, rec.Address)
		if err != nil {
			return err
		}
		if len(blob) == 0 {
			return util.NewMalformedPayloadError("backup", rec.Address, "empty running config")
		}
		rec.Backup = blob
		return nil
	})
	if err != nil {
		return s.abort(ctx, StepBackup, err)
	}
	if o.archive != nil {
		if entry, err := o.archive.Save(rec.Hostname, rec.ID, rec.Backup); err != nil {
			s.log.Warnf("backup archive failed: %v", err)
		} else {
			rec.BackupPath = entry.File
		}
	}
	s.advance(ctx, PhaseBackedUp, KindSuccess, nil)

	// Intent
	err = s.attempt(ctx, StepFetch, o.fetchPolicy, util.IsRetryable, func(ctx context.Context) error {
		d, err := o.source.Fetch(ctx, rec.Hostname)
		if err != nil {
			return err
		}
		rec.Intent = d
		return nil
	})
	if err != nil {
		return s.abort(ctx, StepFetch, err)
	}
	s.advance(ctx, PhaseIntentFetched, KindSuccess, nil)

	// Render
	err = s.attempt(ctx, StepRender, single, never, func(ctx context.Context) error {
		arts, err := o.transformer.Render(rec.Intent)
		if err != nil {
			return err
		}
		rec.Artifacts = arts
		return nil
	})
	if err != nil {
		return s.abort(ctx, StepRender, err)
	}
	s.advance(ctx, PhaseRendered, KindSuccess, nil)

	// Hygiene gate
	err = s.attempt(ctx, StepHygiene, single, never, func(context.Context) error {
		return o.checker.RunAll(rec.Artifacts.BGP, rec.Artifacts.Interfaces)
	})
	if err != nil {
		if ctx.Err() != nil {
			return s.abort(ctx, StepHygiene, err)
		}
		s.setStatus(ctx, intent.StatusMaintenance)
		s.advance(ctx, PhaseAborted, KindFatalFailure, err)
		return s.fail(StepHygiene, OutcomeHygieneRejected, err)
	}
	s.advance(ctx, PhaseHygienePassed, KindSuccess, nil)

	// Deploy
	payload, err := rec.Artifacts.Merged()
	if err != nil {
		return s.abort(ctx, StepRender, err)
	}
	if err := ctx.Err(); err != nil {
		return s.abort(ctx, StepDeploy, err)
	}
	err = s.attempt(ctx, StepDeploy, o.deployPolicy, util.IsRetryable, func(ctx context.Context) error {
		return o.gw.Deploy(ctx, rec.Address, payload, device.Merge)
	})
	if err != nil {
		return s.compensate(ctx, StepDeploy, err)
	}
	s.advance(ctx, PhaseDeployed, KindSuccess, nil)
	if err := ctx.Err(); err != nil {
		return s.compensate(ctx, StepDeploy, err)
	}

	// Validate
	intended := o.transformer.InterfaceView(rec.Intent).Interfaces
	untilCancelled := func(error) bool { return ctx.Err() == nil }
	err = s.attempt(ctx, StepValidate, o.deployPolicy, untilCancelled, func(ctx context.Context) error {
		bgp, err := o.validator.CheckBGPEstablished(ctx, rec.Address)
		rec.Validation = []*validate.ValidationResult{bgp}
		if err != nil {
			return err
		}
		if !bgp.Passed {
			return resultError(bgp)
		}
		ifaces, err := o.validator.CheckInterfaceState(ctx, rec.Address, intended)
		rec.Validation = append(rec.Validation, ifaces)
		if err != nil {
			return err
		}
		if !ifaces.Passed {
			return resultError(ifaces)
		}
		return nil
	})
	if err != nil {
		return s.compensate(ctx, StepValidate, err)
	}
	s.advance(ctx, PhaseValidated, KindSuccess, nil)

	return s.succeed(ctx)
}

func never(error) bool { return false }

func (s *saga) succeed(ctx context.Context) error {
	s.setStatus(ctx, intent.StatusActive)
	s.advance(ctx, PhaseSucceeded, KindSuccess, nil)
	s.rec.Outcome = OutcomeSucceeded
	return nil
}

// resultError turns a failed check into a ValidationError listing each
// failed detail.
func resultError(r *validate.ValidationResult) error {
	var b util.ValidationBuilder
	for _, d := range r.Failures() {
		b.AddErrorf("%s %s: %s", r.Check, d.Name, d.Reason)
	}
	return b.Build()
}

// compensate restores the backup after a failure that followed a deploy
// attempt. It ignores cancellation of ctx.
func (s *saga) compensate(ctx context.Context, step string, cause error) error {
	cctx := context.WithoutCancel(ctx)
	s.log.Warnf("Compensating after %s failure: %v", step, cause)
	s.advance(cctx, PhaseRollingBack, kindFor(cause), cause)
	return s.restore(cctx, step, cause)
}

func (s *saga) restore(ctx context.Context, step string, cause error) error {
	o, rec := s.o, s.rec
	err := s.attempt(ctx, StepRestore, o.deployPolicy, util.IsRetryable, func(ctx context.Context) error {
		if len(rec.Backup) == 0 {
			return fmt.Errorf("no backup captured for %s", rec.Hostname)
		}
		return o.gw.Deploy(ctx, rec.Address, rec.Backup, device.Replace)
	})
	if err != nil {
		rf := util.NewRollbackFailedError(rec.Hostname, rec.ID, cause, err)
		s.advance(ctx, PhaseRollbackFailed, KindFatalFailure, err)
		s.setStatus(ctx, intent.StatusMaintenance)
		return s.fail(StepRestore, OutcomeRollbackFailed, rf)
	}
	s.advance(ctx, PhaseRolledBack, KindSuccess, nil)
	s.setStatus(ctx, intent.StatusMaintenance)
	return s.fail(step, OutcomeRolledBack, cause)
}

// setStatus updates the device status in the source of truth. A failure is
// recorded and logged but never changes the saga's outcome.
func (s *saga) setStatus(ctx context.Context, status string) {
	ctx = context.WithoutCancel(ctx)
	err := s.attempt(ctx, StepStatus, s.o.fetchPolicy, util.IsRetryable, func(ctx context.Context) error {
		_, err := s.o.source.UpdateDeviceStatus(ctx, s.rec.Hostname, status)
		return err
	})
	if err != nil {
		s.log.Warnf("Status update to %s failed: %v", status, err)
		return
	}
	s.log.Infof("Device status set to %s", status)
}

func (s *saga) recover(ctx context.Context) error {
	rec := s.rec
	switch {
	case rec.Phase == PhaseRollingBack:
		cctx := context.WithoutCancel(ctx)
		if rec.StepSucceeded(StepRestore) {
			s.advance(cctx, PhaseRolledBack, KindSuccess, nil)
			s.setStatus(cctx, intent.StatusMaintenance)
			return s.fail(StepRestore, OutcomeRolledBack, errInterrupted)
		}
		return s.restore(cctx, lastFailedStep(rec), errInterrupted)
	case rec.Phase == PhaseValidated:
		return s.succeed(ctx)
	case rec.DeployAttempted():
		return s.compensate(ctx, StepDeploy, errInterrupted)
	}
	return s.abort(ctx, StepRecover, errInterrupted)
}

// lastFailedStep names the step that triggered compensation, for messages.
func lastFailedStep(rec *Record) string {
	for i := len(rec.StepErrors) - 1; i >= 0; i-- {
		if step := rec.StepErrors[i].Step; step != StepStatus && step != StepRestore {
			return step
		}
	}
	return StepDeploy
}
