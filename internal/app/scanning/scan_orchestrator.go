// Package scanning drives multi-stage liveness scan sessions: stage
// sequencing, per-stage and whole-scan timeouts, attempt-limited retry, and
// the cooperative polling loop that feeds validation results back into the
// session state machine.
package scanning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/liveness-gate/internal/domain/events"
	"github.com/ahrav/liveness-gate/internal/domain/liveness"
	"github.com/ahrav/liveness-gate/pkg/common/logger"
)

// ErrScanInProgress is returned by Start when a session is already running.
var ErrScanInProgress = errors.New("scan session already in progress")

// metrics defines the interface for tracking scan lifecycle metrics.
type metrics interface {
	IncScanStarted(ctx context.Context)
	ObserveScanCompleted(ctx context.Context, duration time.Duration)
	IncScanFailed(ctx context.Context, reason string)
	ObserveStageCompleted(ctx context.Context, stage string, duration time.Duration)
	IncStageFailure(ctx context.Context, stage string, reason string)
}

// noopMetrics is used when the host does not supply a metrics recorder.
type noopMetrics struct{}

func (noopMetrics) IncScanStarted(context.Context) {}

func (noopMetrics) ObserveScanCompleted(context.Context, time.Duration) {}

func (noopMetrics) IncScanFailed(context.Context, string) {}

func (noopMetrics) ObserveStageCompleted(context.Context, string, time.Duration) {}

func (noopMetrics) IncStageFailure(context.Context, string, string) {}

type timeProvider interface {
	Now() time.Time
}

// realTimeProvider is a real implementation of the timeProvider interface.
type realTimeProvider struct{}

// Now returns the current time.
func (realTimeProvider) Now() time.Time { return time.Now() }

// validationResult carries the outcome of one validator invocation back into
// the driver loop. The seq field pairs it with the invocation that produced
// it so results from abandoned calls can be discarded.
type validationResult struct {
	seq int64
	ok  bool
	err error
}

// noReschedule signals the run loop that the pending timer should keep
// running untouched (e.g. a stale validation result was discarded).
const noReschedule = time.Duration(-1)

// ScanOrchestrator is the driver loop for liveness scan sessions. A single
// goroutine owns the Session aggregate and applies every transition; hosts
// interact only through Start, Stop, Restart, and Snapshot. At most one
// validation call and one pending tick timer exist at any time.
type ScanOrchestrator struct {
	cfg       Config
	validator StageValidator
	callbacks Callbacks
	publisher events.DomainEventPublisher

	mu        sync.Mutex
	session   *liveness.Session
	running   bool
	announced bool
	cancel    context.CancelCauseFunc
	loopDone  chan struct{}

	// Validation serialization state. Guarded by mu.
	validationSeq     int64
	validationPending bool
	validationCancel  context.CancelFunc

	timeProvider timeProvider
	sessionTime  liveness.TimeProvider

	logger  *logger.Logger
	metrics metrics
	tracer  trace.Tracer
}

// Option defines functional options for configuring a ScanOrchestrator.
type Option func(*ScanOrchestrator)

// WithMetrics sets the metrics recorder for the orchestrator.
func WithMetrics(m metrics) Option {
	return func(o *ScanOrchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTimeProvider sets a custom clock, used by tests to drive timeout
// branches deterministically.
func WithTimeProvider(tp liveness.TimeProvider) Option {
	return func(o *ScanOrchestrator) {
		o.timeProvider = tp
		o.sessionTime = tp
	}
}

// WithCallbacks registers host notification callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(o *ScanOrchestrator) { o.callbacks = cb }
}

// NewScanOrchestrator creates an orchestrator for the given configuration and
// validator port. The session itself is not created until Start.
func NewScanOrchestrator(
	cfg Config,
	validator StageValidator,
	publisher events.DomainEventPublisher,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...Option,
) (*ScanOrchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan config: %w", err)
	}
	if validator == nil {
		return nil, errors.New("stage validator is required")
	}

	log = log.With("component", "scan_orchestrator")

	o := &ScanOrchestrator{
		cfg:          cfg,
		validator:    validator,
		publisher:    publisher,
		timeProvider: realTimeProvider{},
		logger:       log,
		metrics:      noopMetrics{},
		tracer:       tracer,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start launches a new scan session and its driver loop. It returns
// ErrScanInProgress if a session is already running. A session whose previous
// run ended in a terminal state is restarted with a fresh shuffle and a fully
// restored attempt budget.
func (o *ScanOrchestrator) Start(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.start")
	defer span.End()

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		span.SetStatus(codes.Error, ErrScanInProgress.Error())
		return ErrScanInProgress
	}

	switch {
	case o.session == nil:
		o.session = o.newSession()
	case o.session.Status().IsTerminal():
		// A fresh run over a terminal session: new shuffle, counters reset.
		if err := o.session.Restart(); err != nil {
			o.mu.Unlock()
			span.RecordError(err)
			return fmt.Errorf("restarting session: %w", err)
		}
	case o.session.Status() == liveness.SessionStatusIdle:
		// A previously stopped session; the first tick starts it.
	default:
		o.mu.Unlock()
		return ErrScanInProgress
	}

	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.loopDone = make(chan struct{})
	o.running = true
	o.announced = false
	o.validationPending = false
	o.validationCancel = nil

	sessionID := o.session.SessionID()
	done := o.loopDone
	o.mu.Unlock()

	span.SetAttributes(attribute.String("session_id", sessionID.String()))
	span.AddEvent("scan_session_launched")

	go o.run(runCtx, done)
	return nil
}

// Stop requests a cooperative shutdown of the driver loop, waits for it to
// exit, and resets the session to idle with its counters restored. Any
// pending tick timer and transition timer are cancelled; an outstanding
// validation call is abandoned and its result discarded. Stop is idempotent.
func (o *ScanOrchestrator) Stop(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.stop")
	defer span.End()

	o.mu.Lock()
	if !o.running {
		// Loop already exited (terminal state or never started); just make
		// sure the session is reset.
		if o.session != nil {
			if err := o.session.Stop(); err != nil {
				o.mu.Unlock()
				span.RecordError(err)
				return err
			}
		}
		o.mu.Unlock()
		return nil
	}

	o.session.RequestStop()
	cancel := o.cancel
	done := o.loopDone
	o.mu.Unlock()

	cancel(errors.New("stop requested"))

	select {
	case <-done:
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return ctx.Err()
	}

	// The loop may have exited through a terminal transition that raced the
	// stop request; make sure the session still ends up reset.
	o.mu.Lock()
	if o.session.Status() != liveness.SessionStatusIdle {
		if err := o.session.Stop(); err != nil {
			o.mu.Unlock()
			span.RecordError(err)
			return err
		}
	}
	o.mu.Unlock()

	span.AddEvent("scan_session_stopped")
	return nil
}

// Restart stops any running session and starts a fresh one: new stage
// shuffle, counters reset to their configured values.
func (o *ScanOrchestrator) Restart(ctx context.Context) error {
	if err := o.Stop(ctx); err != nil {
		return fmt.Errorf("stopping before restart: %w", err)
	}
	return o.Start(ctx)
}

// Snapshot returns a read-only view of the current session state.
func (o *ScanOrchestrator) Snapshot() liveness.SessionSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return liveness.SessionSnapshot{Status: liveness.SessionStatusIdle}
	}
	return o.session.Snapshot()
}

func (o *ScanOrchestrator) newSession() *liveness.Session {
	opts := []liveness.SessionOption{}
	if o.sessionTime != nil {
		opts = append(opts, liveness.WithTimeProvider(o.sessionTime))
	}
	return liveness.NewSession(uuid.New(), o.cfg.Stages, o.cfg.NumberOfAttempts, opts...)
}

// run is the driver loop. It is the only goroutine that mutates the session.
// Each wakeup is either a tick (timeout checks, validation dispatch) or a
// validation result continuation; both compute the delay until the next tick
// or report that a terminal transition occurred.
func (o *ScanOrchestrator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.run")
	defer span.End()

	results := make(chan validationResult, 8)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			o.finishStop(ctx)
			return

		case res := <-results:
			delay, terminal := o.applyValidation(ctx, res)
			if terminal {
				return
			}
			if delay != noReschedule {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(delay)
			}

		case <-timer.C:
			delay, terminal := o.tick(ctx, results)
			if terminal {
				return
			}
			timer.Reset(delay)
		}
	}
}

// tick performs one pass of the driver loop: stop check, session start,
// budget checks, stage activation, stage timeout, and validation dispatch.
// It returns the delay until the next tick and whether the session reached a
// terminal state.
func (o *ScanOrchestrator) tick(ctx context.Context, results chan validationResult) (time.Duration, bool) {
	o.mu.Lock()
	session := o.session

	// A stop wins over everything else; no further state changes.
	if session.StopRequested() {
		o.mu.Unlock()
		o.finishStop(ctx)
		return 0, true
	}

	now := o.timeProvider.Now()

	// First tick of a session anchors the session clock and generates the
	// stage order.
	if session.Status() == liveness.SessionStatusIdle {
		if err := session.Start(); err != nil {
			o.mu.Unlock()
			o.logger.Error(ctx, "failed to start scan session", "error", err)
			o.teardown()
			return 0, true
		}
	}

	var announce *liveness.ScanStartedEvent
	if !o.announced {
		o.announced = true
		evt := liveness.NewScanStartedEvent(session.SessionID(), session.StageOrder(), session.AttemptsRemaining())
		announce = &evt
	}

	// Any transition pause that led to this tick is over.
	session.SetTransitioning(false)

	if session.Status().IsTerminal() {
		o.mu.Unlock()
		o.teardown()
		return 0, true
	}

	// Whole-scan budgets. These end the session regardless of stage state.
	if session.Timeline().SessionElapsed(now) > o.cfg.TotalScanTimeout {
		if o.validationPending {
			return o.resolveExpiredValidation(ctx, results, true, announce)
		}
		return o.failSessionLocked(ctx, liveness.ScanFailureTimeout, announce)
	}
	if session.AttemptsExhausted() {
		return o.failSessionLocked(ctx, liveness.ScanFailureAttemptsExceeded, announce)
	}

	stage := session.ActiveStage()
	if stage == nil {
		// All stages done; CompleteActiveStage normally handles this, so
		// reaching here means the session already completed.
		o.mu.Unlock()
		o.teardown()
		return 0, true
	}

	// Activate the head stage, fresh or retried, anchoring the stage clock.
	if st := stage.Status(); st == liveness.StageStatusInitial || st == liveness.StageStatusErrored {
		if err := session.BeginActiveStage(); err != nil {
			o.mu.Unlock()
			o.logger.Error(ctx, "failed to begin stage", "stage", stage.ID(), "error", err)
			o.teardown()
			return 0, true
		}
	}

	// Per-stage budget. A call still in flight was dispatched before the
	// deadline, so its verdict is awaited and honored before the stage is
	// declared timed out.
	if session.Timeline().StageElapsed(now) > o.cfg.StageTimeout {
		if o.validationPending {
			return o.resolveExpiredValidation(ctx, results, false, announce)
		}
		return o.failStageLocked(ctx, liveness.StageFailureTimeout, announce)
	}

	// Dispatch validation unless one is already outstanding. Strict
	// serialization: a new call never starts while one is pending.
	if !o.validationPending {
		o.validationSeq++
		seq := o.validationSeq
		o.validationPending = true

		vctx, vcancel := context.WithCancel(ctx)
		o.validationCancel = vcancel

		stageID := stage.ID()
		go func() {
			ok, err := o.validator.Validate(vctx, stageID)
			vcancel()
			select {
			case results <- validationResult{seq: seq, ok: ok, err: err}:
			case <-ctx.Done():
			}
		}()
	}
	o.mu.Unlock()

	o.announceStarted(ctx, announce)
	return o.cfg.PollInterval, false
}

// announceStarted publishes the session-start notification produced by the
// first tick, if this tick produced one.
func (o *ScanOrchestrator) announceStarted(ctx context.Context, announce *liveness.ScanStartedEvent) {
	if announce == nil {
		return
	}
	o.logger.Info(ctx, "scan session started",
		"session_id", announce.SessionID,
		"stage_order", announce.StageOrder,
		"attempts", announce.Attempts)
	o.metrics.IncScanStarted(ctx)
	o.publishEvents(ctx, *announce)
}

// applyValidation is the continuation of an awaited validator call. Stale
// results from abandoned invocations are discarded without touching state.
func (o *ScanOrchestrator) applyValidation(ctx context.Context, res validationResult) (time.Duration, bool) {
	o.mu.Lock()
	session := o.session

	if res.seq != o.validationSeq || !o.validationPending {
		o.mu.Unlock()
		return noReschedule, false
	}
	o.validationPending = false
	o.validationCancel = nil

	// A stop requested while the call was in flight discards the result.
	if session.StopRequested() {
		o.mu.Unlock()
		o.finishStop(ctx)
		return 0, true
	}

	stage := session.ActiveStage()
	if stage == nil {
		o.mu.Unlock()
		o.teardown()
		return 0, true
	}
	stageID := stage.ID()

	if res.err != nil || !res.ok {
		if res.err != nil {
			o.logger.Debug(ctx, "validator rejected stage",
				"stage", stageID, "error", res.err)
		}
		return o.failStageLocked(ctx, liveness.StageFailureValidation, nil)
	}

	stageElapsed := session.Timeline().StageElapsed(o.timeProvider.Now())

	if err := session.CompleteActiveStage(); err != nil {
		o.mu.Unlock()
		o.logger.Error(ctx, "failed to complete stage", "stage", stageID, "error", err)
		o.teardown()
		return 0, true
	}

	completed := session.Status() == liveness.SessionStatusCompleted
	sessionID := session.SessionID()
	var sessionElapsed time.Duration
	if completed {
		sessionElapsed = session.Timeline().SessionElapsed(o.timeProvider.Now())
	} else {
		session.SetTransitioning(true)
	}
	o.mu.Unlock()

	o.metrics.ObserveStageCompleted(ctx, stageID.String(), stageElapsed)
	stageEvt := liveness.NewStageCompletedEvent(sessionID, stageID, stageElapsed)
	o.publishEvents(ctx, stageEvt)
	o.invokeCallback(ctx, "on_scan_stage_completed", func() {
		if o.callbacks.OnScanStageCompleted != nil {
			o.callbacks.OnScanStageCompleted()
		}
	})

	if completed {
		o.logger.Info(ctx, "scan session completed",
			"session_id", sessionID, "elapsed", sessionElapsed)
		o.metrics.ObserveScanCompleted(ctx, sessionElapsed)
		doneEvt := liveness.NewScanCompletedEvent(sessionID, sessionElapsed)
		o.publishEvents(ctx, doneEvt)
		o.invokeCallback(ctx, "on_scan_completed", func() {
			if o.callbacks.OnScanCompleted != nil {
				o.callbacks.OnScanCompleted()
			}
		})
		o.teardown()
		return 0, true
	}

	return o.cfg.StageTransitionTime, false
}

// resolveExpiredValidation handles a stage or scan deadline expiring while a
// validator call is outstanding. The call started inside the budget, so it is
// cancelled and its result awaited: a truthy verdict still completes the
// stage, anything else becomes the timeout failure. Called with mu held;
// releases it.
func (o *ScanOrchestrator) resolveExpiredValidation(ctx context.Context, results chan validationResult, scanExpired bool, announce *liveness.ScanStartedEvent) (time.Duration, bool) {
	seq := o.validationSeq
	cancel := o.validationCancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	for {
		select {
		case res := <-results:
			if res.seq != seq {
				// Leftover from an earlier abandoned call.
				continue
			}
			if res.err == nil && res.ok {
				o.announceStarted(ctx, announce)
				return o.applyValidation(ctx, res)
			}
			o.mu.Lock()
			o.validationPending = false
			o.validationCancel = nil
			if scanExpired {
				return o.failSessionLocked(ctx, liveness.ScanFailureTimeout, announce)
			}
			return o.failStageLocked(ctx, liveness.StageFailureTimeout, announce)

		case <-ctx.Done():
			o.finishStop(ctx)
			return 0, true
		}
	}
}

// failStageLocked records a recoverable stage failure, consuming one attempt.
// If the budget is exhausted the session fails terminally; otherwise the
// stage is retried in place after the transition delay. Called with mu held;
// releases it.
func (o *ScanOrchestrator) failStageLocked(ctx context.Context, reason liveness.StageFailureReason, announce *liveness.ScanStartedEvent) (time.Duration, bool) {
	session := o.session
	stage := session.ActiveStage()
	stageID := stage.ID()

	// A failed attempt abandons any in-flight validation for the stage.
	o.cancelValidationLocked()

	if err := session.FailActiveStage(reason); err != nil {
		o.mu.Unlock()
		o.logger.Error(ctx, "failed to record stage failure", "stage", stageID, "error", err)
		o.teardown()
		return 0, true
	}

	sessionID := session.SessionID()
	remaining := session.AttemptsRemaining()
	exhausted := session.AttemptsExhausted()
	if !exhausted {
		session.SetTransitioning(true)
	}
	o.mu.Unlock()

	o.logger.Info(ctx, "stage attempt failed",
		"session_id", sessionID, "stage", stageID,
		"reason", reason, "attempts_remaining", remaining)
	o.metrics.IncStageFailure(ctx, stageID.String(), reason.String())

	o.announceStarted(ctx, announce)
	failEvt := liveness.NewStageFailedEvent(sessionID, stageID, reason, remaining)
	o.publishEvents(ctx, failEvt)
	o.invokeCallback(ctx, "on_scan_stage_error", func() {
		if o.callbacks.OnScanStageError != nil {
			o.callbacks.OnScanStageError(reason)
		}
	})

	if exhausted {
		o.mu.Lock()
		return o.failSessionLocked(ctx, liveness.ScanFailureAttemptsExceeded, nil)
	}

	return o.cfg.StageTransitionTime, false
}

// failSessionLocked ends the session with a terminal failure. Called with mu
// held; releases it. Always terminal.
func (o *ScanOrchestrator) failSessionLocked(ctx context.Context, reason liveness.ScanFailureReason, announce *liveness.ScanStartedEvent) (time.Duration, bool) {
	session := o.session
	o.cancelValidationLocked()

	if err := session.FailSession(reason); err != nil {
		o.logger.Error(ctx, "failed to record session failure", "reason", reason, "error", err)
	}
	sessionID := session.SessionID()
	o.mu.Unlock()

	o.logger.Info(ctx, "scan session failed", "session_id", sessionID, "reason", reason)
	o.metrics.IncScanFailed(ctx, reason.String())

	o.announceStarted(ctx, announce)
	failEvt := liveness.NewScanFailedEvent(sessionID, reason)
	o.publishEvents(ctx, failEvt)
	o.invokeCallback(ctx, "on_scan_error", func() {
		if o.callbacks.OnScanError != nil {
			o.callbacks.OnScanError(reason)
		}
	})

	o.teardown()
	return 0, true
}

// finishStop resets the session after a cooperative stop and releases the
// loop. No failure callbacks fire: a stop is a host decision, not an outcome.
func (o *ScanOrchestrator) finishStop(ctx context.Context) {
	o.mu.Lock()
	session := o.session
	o.cancelValidationLocked()

	started := session.Timeline().SessionStarted()
	sessionID := session.SessionID()
	if err := session.Stop(); err != nil {
		o.logger.Error(ctx, "failed to reset session on stop", "error", err)
	}
	o.running = false
	o.mu.Unlock()

	if started {
		stopEvt := liveness.NewScanStoppedEvent(sessionID)
		o.publishEvents(ctx, stopEvt)
	}
	o.logger.Debug(ctx, "scan session stopped", "session_id", sessionID)
}

// teardown marks the loop as no longer running after a terminal transition.
func (o *ScanOrchestrator) teardown() {
	o.mu.Lock()
	o.cancelValidationLocked()
	o.running = false
	o.mu.Unlock()
}

// cancelValidationLocked abandons any outstanding validator call. Its
// eventual result no longer matches the current sequence and is discarded.
func (o *ScanOrchestrator) cancelValidationLocked() {
	if o.validationPending {
		o.validationPending = false
		o.validationSeq++
		if o.validationCancel != nil {
			o.validationCancel()
			o.validationCancel = nil
		}
	}
}

// publishEvents sends domain events through the publisher, logging and
// swallowing failures; event delivery must never break the loop.
func (o *ScanOrchestrator) publishEvents(ctx context.Context, evts ...events.DomainEvent) {
	if o.publisher == nil {
		return
	}
	for _, evt := range evts {
		if err := o.publisher.PublishDomainEvent(ctx, evt); err != nil {
			o.logger.Warn(ctx, "failed to publish domain event",
				"event_type", evt.EventType(), "error", err)
		}
	}
}

// invokeCallback runs a host callback with panic protection.
func (o *ScanOrchestrator) invokeCallback(ctx context.Context, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(ctx, "callback panicked", "callback", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
