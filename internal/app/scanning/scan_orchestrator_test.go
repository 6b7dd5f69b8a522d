package scanning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/liveness-gate/internal/domain/events"
	"github.com/ahrav/liveness-gate/internal/domain/liveness"
	"github.com/ahrav/liveness-gate/internal/infra/eventbus/memory"
	"github.com/ahrav/liveness-gate/pkg/common/logger"
)

const testWait = 5 * time.Second

// fakeClock is a thread-safe manual clock shared between the orchestrator
// and the session so timeout branches can be driven deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// callbackRecorder captures orchestrator callbacks on buffered channels so
// tests can await them without polling.
type callbackRecorder struct {
	stageCompleted chan struct{}
	stageErrors    chan liveness.StageFailureReason
	scanCompleted  chan struct{}
	scanErrors     chan liveness.ScanFailureReason
}

func newCallbackRecorder() *callbackRecorder {
	return &callbackRecorder{
		stageCompleted: make(chan struct{}, 16),
		stageErrors:    make(chan liveness.StageFailureReason, 16),
		scanCompleted:  make(chan struct{}, 16),
		scanErrors:     make(chan liveness.ScanFailureReason, 16),
	}
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		OnScanStageCompleted: func() { r.stageCompleted <- struct{}{} },
		OnScanStageError:     func(reason liveness.StageFailureReason) { r.stageErrors <- reason },
		OnScanCompleted:      func() { r.scanCompleted <- struct{}{} },
		OnScanError:          func(reason liveness.ScanFailureReason) { r.scanErrors <- reason },
	}
}

func awaitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(testWait):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func awaitStageError(t *testing.T, ch <-chan liveness.StageFailureReason, what string) liveness.StageFailureReason {
	t.Helper()
	select {
	case reason := <-ch:
		return reason
	case <-time.After(testWait):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func awaitScanError(t *testing.T, ch <-chan liveness.ScanFailureReason, what string) liveness.ScanFailureReason {
	t.Helper()
	select {
	case reason := <-ch:
		return reason
	case <-time.After(testWait):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func testConfig() Config {
	return Config{
		Stages:              liveness.DefaultStageIDs(),
		StageTransitionTime: time.Millisecond,
		StageTimeout:        10 * time.Second,
		TotalScanTimeout:    100 * time.Second,
		NumberOfAttempts:    3,
		PollInterval:        time.Millisecond,
	}
}

func newTestOrchestrator(
	t *testing.T,
	cfg Config,
	validator StageValidator,
	rec *callbackRecorder,
	clock *fakeClock,
) *ScanOrchestrator {
	t.Helper()

	tracer := noop.NewTracerProvider().Tracer("test")
	o, err := NewScanOrchestrator(
		cfg,
		validator,
		nil,
		logger.Noop(),
		tracer,
		WithTimeProvider(clock),
		WithCallbacks(rec.callbacks()),
	)
	require.NoError(t, err)
	return o
}

func alwaysPass() StageValidator {
	return ValidatorFunc(func(context.Context, liveness.StageID) (bool, error) {
		return true, nil
	})
}

func alwaysReject() StageValidator {
	return ValidatorFunc(func(context.Context, liveness.StageID) (bool, error) {
		return false, nil
	})
}

// blockUntilCanceled models a hung detector: the call only returns once the
// orchestrator abandons it.
func blockUntilCanceled() StageValidator {
	return ValidatorFunc(func(ctx context.Context, _ liveness.StageID) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
}

func TestNewScanOrchestrator_Validation(t *testing.T) {
	t.Parallel()

	tracer := noop.NewTracerProvider().Tracer("test")

	_, err := NewScanOrchestrator(Config{}, alwaysPass(), nil, logger.Noop(), tracer)
	assert.Error(t, err)

	_, err = NewScanOrchestrator(testConfig(), nil, nil, logger.Noop(), tracer)
	assert.Error(t, err)
}

func TestScanOrchestrator_HappyPath(t *testing.T) {
	t.Parallel()

	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, testConfig(), alwaysPass(), rec, newFakeClock())

	require.NoError(t, o.Start(context.Background()))

	for i := 0; i < 3; i++ {
		awaitSignal(t, rec.stageCompleted, "stage completion")
	}
	awaitSignal(t, rec.scanCompleted, "scan completion")

	snap := o.Snapshot()
	assert.Equal(t, liveness.SessionStatusCompleted, snap.Status)
	assert.Nil(t, snap.FailureReason)
	assert.Zero(t, snap.StagesRemaining)
	// A clean run never draws from the attempt budget.
	assert.Equal(t, 3, snap.AttemptsRemaining)

	select {
	case <-rec.scanCompleted:
		t.Fatal("scan completion callback fired more than once")
	case <-rec.scanErrors:
		t.Fatal("scan error callback fired on a successful run")
	case <-rec.stageErrors:
		t.Fatal("stage error callback fired on a successful run")
	default:
	}
}

func TestScanOrchestrator_StartWhileRunning(t *testing.T) {
	t.Parallel()

	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, testConfig(), blockUntilCanceled(), rec, newFakeClock())

	require.NoError(t, o.Start(context.Background()))
	assert.ErrorIs(t, o.Start(context.Background()), ErrScanInProgress)

	require.NoError(t, o.Stop(context.Background()))
}

func TestScanOrchestrator_ValidationFailuresExhaustBudget(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.NumberOfAttempts = 2

	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, cfg, alwaysReject(), rec, newFakeClock())

	require.NoError(t, o.Start(context.Background()))

	for i := 0; i < 2; i++ {
		reason := awaitStageError(t, rec.stageErrors, "stage failure")
		assert.Equal(t, liveness.StageFailureValidation, reason)
	}

	reason := awaitScanError(t, rec.scanErrors, "terminal scan failure")
	assert.Equal(t, liveness.ScanFailureAttemptsExceeded, reason)

	snap := o.Snapshot()
	assert.Equal(t, liveness.SessionStatusError, snap.Status)
	require.NotNil(t, snap.FailureReason)
	assert.Equal(t, liveness.ScanFailureAttemptsExceeded, *snap.FailureReason)
	assert.Zero(t, snap.AttemptsRemaining)
}

func TestScanOrchestrator_ValidatorErrorConsumesAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	validator := ValidatorFunc(func(context.Context, liveness.StageID) (bool, error) {
		if calls.Add(1) == 1 {
			return false, errors.New("detector unavailable")
		}
		return true, nil
	})

	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, testConfig(), validator, rec, newFakeClock())

	require.NoError(t, o.Start(context.Background()))

	reason := awaitStageError(t, rec.stageErrors, "stage failure")
	assert.Equal(t, liveness.StageFailureValidation, reason)

	awaitSignal(t, rec.scanCompleted, "scan completion")

	snap := o.Snapshot()
	assert.Equal(t, liveness.SessionStatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.AttemptsRemaining)
}

func TestScanOrchestrator_StageTimeout(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.NumberOfAttempts = 1

	clock := newFakeClock()
	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, cfg, blockUntilCanceled(), rec, clock)

	require.NoError(t, o.Start(context.Background()))

	// Give the loop a moment to dispatch the hung validation, then push the
	// stage clock past its budget.
	time.Sleep(20 * time.Millisecond)
	clock.Advance(cfg.StageTimeout + time.Second)

	reason := awaitStageError(t, rec.stageErrors, "stage timeout")
	assert.Equal(t, liveness.StageFailureTimeout, reason)

	scanReason := awaitScanError(t, rec.scanErrors, "terminal scan failure")
	assert.Equal(t, liveness.ScanFailureAttemptsExceeded, scanReason)

	snap := o.Snapshot()
	assert.Equal(t, liveness.SessionStatusError, snap.Status)
}

func TestScanOrchestrator_SlowTruthyValidationBeatsStageTimeout(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Stages = []liveness.StageID{liveness.StageFront}
	cfg.NumberOfAttempts = 1

	release := make(chan struct{})
	var validations atomic.Int32
	validator := ValidatorFunc(func(context.Context, liveness.StageID) (bool, error) {
		validations.Add(1)
		// Ignore cancellation: the verdict arrives after the deadline check.
		<-release
		return true, nil
	})

	clock := newFakeClock()
	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, cfg, validator, rec, clock)

	require.NoError(t, o.Start(context.Background()))

	// Let the loop dispatch the slow validation, push the stage clock past
	// its budget, then release the truthy verdict.
	require.Eventually(t, func() bool { return validations.Load() > 0 },
		testWait, time.Millisecond)
	clock.Advance(cfg.StageTimeout + time.Second)
	time.Sleep(20 * time.Millisecond)
	close(release)

	// The call was dispatched inside the budget, so its verdict wins over
	// the expired deadline.
	awaitSignal(t, rec.stageCompleted, "stage completion")
	awaitSignal(t, rec.scanCompleted, "scan completion")

	select {
	case reason := <-rec.stageErrors:
		t.Fatalf("stage failed with %s instead of completing", reason)
	default:
	}

	snap := o.Snapshot()
	assert.Equal(t, liveness.SessionStatusCompleted, snap.Status)
}

func TestScanOrchestrator_TotalScanTimeout(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.StageTimeout = 100 * time.Second
	cfg.TotalScanTimeout = 30 * time.Second

	clock := newFakeClock()
	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, cfg, blockUntilCanceled(), rec, clock)

	require.NoError(t, o.Start(context.Background()))

	time.Sleep(20 * time.Millisecond)
	clock.Advance(cfg.TotalScanTimeout + time.Second)

	reason := awaitScanError(t, rec.scanErrors, "scan timeout")
	assert.Equal(t, liveness.ScanFailureTimeout, reason)

	snap := o.Snapshot()
	assert.Equal(t, liveness.SessionStatusError, snap.Status)
	require.NotNil(t, snap.FailureReason)
	assert.Equal(t, liveness.ScanFailureTimeout, *snap.FailureReason)
}

func TestScanOrchestrator_StopMidScan(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.NumberOfAttempts = 3

	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, cfg, blockUntilCanceled(), rec, newFakeClock())

	require.NoError(t, o.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, o.Stop(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, liveness.SessionStatusIdle, snap.Status)
	assert.Equal(t, 3, snap.AttemptsRemaining)
	assert.Nil(t, snap.FailureReason)
	assert.Zero(t, snap.StagesRemaining)

	// A stop is a host decision, not an outcome; no result callbacks fire.
	select {
	case <-rec.scanCompleted:
		t.Fatal("scan completion callback fired after stop")
	case <-rec.scanErrors:
		t.Fatal("scan error callback fired after stop")
	default:
	}
}

func TestScanOrchestrator_StopIdempotent(t *testing.T) {
	t.Parallel()

	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, testConfig(), blockUntilCanceled(), rec, newFakeClock())

	// Stopping before any start is a no-op.
	require.NoError(t, o.Stop(context.Background()))

	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.Stop(context.Background()))
	require.NoError(t, o.Stop(context.Background()))

	assert.Equal(t, liveness.SessionStatusIdle, o.Snapshot().Status)
}

func TestScanOrchestrator_StartAfterStopReusesSession(t *testing.T) {
	t.Parallel()

	// Hang until the stop, then pass every stage on the second run.
	var pass atomic.Bool
	validator := ValidatorFunc(func(ctx context.Context, _ liveness.StageID) (bool, error) {
		if !pass.Load() {
			<-ctx.Done()
			return false, ctx.Err()
		}
		return true, nil
	})

	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, testConfig(), validator, rec, newFakeClock())

	require.NoError(t, o.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, o.Stop(context.Background()))

	firstID := o.Snapshot().SessionID
	require.Equal(t, liveness.SessionStatusIdle, o.Snapshot().Status)

	pass.Store(true)
	require.NoError(t, o.Start(context.Background()))
	awaitSignal(t, rec.scanCompleted, "scan completion")

	assert.Equal(t, firstID, o.Snapshot().SessionID)
	assert.Equal(t, liveness.SessionStatusCompleted, o.Snapshot().Status)
}

func TestScanOrchestrator_RestartAfterFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.NumberOfAttempts = 1

	var pass atomic.Bool
	validator := ValidatorFunc(func(context.Context, liveness.StageID) (bool, error) {
		return pass.Load(), nil
	})

	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, cfg, validator, rec, newFakeClock())

	require.NoError(t, o.Start(context.Background()))
	reason := awaitScanError(t, rec.scanErrors, "terminal scan failure")
	assert.Equal(t, liveness.ScanFailureAttemptsExceeded, reason)

	// The failed run drained the budget; a restart restores it.
	pass.Store(true)
	require.NoError(t, o.Restart(context.Background()))
	awaitSignal(t, rec.scanCompleted, "scan completion after restart")

	snap := o.Snapshot()
	assert.Equal(t, liveness.SessionStatusCompleted, snap.Status)
	assert.Equal(t, 1, snap.AttemptsRemaining)
	assert.Nil(t, snap.FailureReason)
}

func TestScanOrchestrator_StartAfterCompletion(t *testing.T) {
	t.Parallel()

	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, testConfig(), alwaysPass(), rec, newFakeClock())

	require.NoError(t, o.Start(context.Background()))
	awaitSignal(t, rec.scanCompleted, "first scan completion")

	require.NoError(t, o.Start(context.Background()))
	awaitSignal(t, rec.scanCompleted, "second scan completion")

	assert.Equal(t, liveness.SessionStatusCompleted, o.Snapshot().Status)
}

func TestScanOrchestrator_CallbackPanicDoesNotBreakLoop(t *testing.T) {
	t.Parallel()

	rec := newCallbackRecorder()
	cb := rec.callbacks()
	stageDone := cb.OnScanStageCompleted
	cb.OnScanStageCompleted = func() {
		stageDone()
		panic("host callback misbehaved")
	}

	tracer := noop.NewTracerProvider().Tracer("test")
	o, err := NewScanOrchestrator(
		testConfig(),
		alwaysPass(),
		nil,
		logger.Noop(),
		tracer,
		WithTimeProvider(newFakeClock()),
		WithCallbacks(cb),
	)
	require.NoError(t, err)

	require.NoError(t, o.Start(context.Background()))
	awaitSignal(t, rec.scanCompleted, "scan completion despite panicking callback")
}

func TestScanOrchestrator_PublishesLifecycleEvents(t *testing.T) {
	t.Parallel()

	bus := memory.NewBroker()
	publisher := memory.NewDomainEventPublisher(bus)

	received := make(chan events.EventType, 32)
	err := bus.Subscribe(
		context.Background(),
		[]events.EventType{
			liveness.EventTypeScanStarted,
			liveness.EventTypeStageCompleted,
			liveness.EventTypeScanCompleted,
		},
		func(_ context.Context, evt events.EventEnvelope) error {
			received <- evt.Type
			return nil
		},
	)
	require.NoError(t, err)

	rec := newCallbackRecorder()
	tracer := noop.NewTracerProvider().Tracer("test")
	o, err := NewScanOrchestrator(
		testConfig(),
		alwaysPass(),
		publisher,
		logger.Noop(),
		tracer,
		WithTimeProvider(newFakeClock()),
		WithCallbacks(rec.callbacks()),
	)
	require.NoError(t, err)

	require.NoError(t, o.Start(context.Background()))
	awaitSignal(t, rec.scanCompleted, "scan completion")

	var types []events.EventType
	deadline := time.After(testWait)
	for len(types) < 5 {
		select {
		case et := <-received:
			types = append(types, et)
		case <-deadline:
			t.Fatalf("timed out waiting for lifecycle events, got %v", types)
		}
	}

	assert.Equal(t, liveness.EventTypeScanStarted, types[0])
	assert.Equal(t, liveness.EventTypeScanCompleted, types[len(types)-1])
	var stageCompletions int
	for _, et := range types[1 : len(types)-1] {
		if et == liveness.EventTypeStageCompleted {
			stageCompletions++
		}
	}
	assert.Equal(t, 3, stageCompletions)
}

func TestScanOrchestrator_SnapshotBeforeStart(t *testing.T) {
	t.Parallel()

	rec := newCallbackRecorder()
	o := newTestOrchestrator(t, testConfig(), alwaysPass(), rec, newFakeClock())

	snap := o.Snapshot()
	assert.Equal(t, liveness.SessionStatusIdle, snap.Status)
	assert.Zero(t, snap.StagesRemaining)
}
