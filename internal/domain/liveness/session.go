package liveness

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the aggregate for one end-to-end liveness attempt. It owns the
// stage sequence, the shared attempt budget, the temporal anchors, and the
// session status, and it is the only place those are mutated. The driver
// loop holds the sole reference to a live Session; everything else observes
// it through snapshots.
type Session struct {
	sessionID uuid.UUID

	stageIDs []StageID
	stages   []*Stage

	status        SessionStatus
	failureReason *ScanFailureReason

	budget   *AttemptBudget
	timeline *Timeline

	transitioning bool
	stopRequested bool

	timeProvider TimeProvider
	rng          randSource
}

// SessionOption defines functional options for configuring a new Session.
type SessionOption func(*Session)

// WithTimeProvider sets a custom time provider for the session.
func WithTimeProvider(tp TimeProvider) SessionOption {
	return func(s *Session) {
		s.timeProvider = tp
		s.timeline = NewTimeline(tp)
	}
}

// WithRandSource sets a deterministic shuffle source. Used by tests.
func WithRandSource(rng randSource) SessionOption {
	return func(s *Session) { s.rng = rng }
}

// NewSession creates an idle Session for the given pose set and attempt
// budget. The stage ordering is not generated until Start.
func NewSession(sessionID uuid.UUID, stageIDs []StageID, attempts int, opts ...SessionOption) *Session {
	s := &Session{
		sessionID:    sessionID,
		stageIDs:     append([]StageID(nil), stageIDs...),
		status:       SessionStatusIdle,
		budget:       NewAttemptBudget(attempts),
		timeProvider: new(realTimeProvider),
	}
	s.timeline = NewTimeline(s.timeProvider)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SessionID returns the unique identifier for this session.
func (s *Session) SessionID() uuid.UUID { return s.sessionID }

// Status returns the current session status.
func (s *Session) Status() SessionStatus { return s.status }

// FailureReason returns the terminal failure reason, or nil if the session
// has not failed.
func (s *Session) FailureReason() *ScanFailureReason { return s.failureReason }

// AttemptsRemaining returns the shared retry attempts left.
func (s *Session) AttemptsRemaining() int { return s.budget.Remaining() }

// Timeline provides access to the session's temporal anchors.
func (s *Session) Timeline() *Timeline { return s.timeline }

// ActiveStage returns the head of the stage queue, or nil when no stages
// remain.
func (s *Session) ActiveStage() *Stage {
	if len(s.stages) == 0 {
		return nil
	}
	return s.stages[0]
}

// StagesRemaining returns the number of stages not yet completed.
func (s *Session) StagesRemaining() int { return len(s.stages) }

// StageOrder returns the ids of the remaining stages in presentation order.
func (s *Session) StageOrder() []StageID {
	order := make([]StageID, len(s.stages))
	for i, stage := range s.stages {
		order[i] = stage.ID()
	}
	return order
}

// IsTransitioning reports whether the session is inside the pause between
// a stage outcome and the next attempt or stage.
func (s *Session) IsTransitioning() bool { return s.transitioning }

// SetTransitioning marks or clears the transition pause.
func (s *Session) SetTransitioning(v bool) { s.transitioning = v }

// StopRequested reports whether a cooperative stop has been requested.
func (s *Session) StopRequested() bool { return s.stopRequested }

// RequestStop flags the session for cooperative shutdown. The driver loop
// observes the flag at the top of its next tick.
func (s *Session) RequestStop() { s.stopRequested = true }

// Start transitions an idle session to scanning, generating a fresh random
// stage ordering and anchoring the session clock.
func (s *Session) Start() error {
	if err := s.updateStatus(SessionStatusScanning); err != nil {
		return err
	}

	if s.rng != nil {
		s.stages = newStageOrder(s.stageIDs, s.rng)
	} else {
		stages, err := NewStageOrder(s.stageIDs)
		if err != nil {
			return fmt.Errorf("shuffling stages: %w", err)
		}
		s.stages = stages
	}

	s.timeline.MarkSessionStarted()
	return nil
}

// BeginActiveStage moves the head stage into its scanning state and anchors
// the stage clock. Works both for a fresh stage and for a retry of an
// errored one.
func (s *Session) BeginActiveStage() error {
	stage := s.ActiveStage()
	if stage == nil {
		return fmt.Errorf("session %s has no active stage", s.sessionID)
	}
	if err := stage.Begin(); err != nil {
		return err
	}
	s.timeline.MarkStageStarted()
	return nil
}

// CompleteActiveStage marks the head stage as validated, clears the stage
// clock, and advances the queue. When the last stage completes the session
// itself transitions to completed.
func (s *Session) CompleteActiveStage() error {
	stage := s.ActiveStage()
	if stage == nil {
		return fmt.Errorf("session %s has no active stage", s.sessionID)
	}
	if err := stage.Complete(); err != nil {
		return err
	}

	s.timeline.ClearStage()
	s.stages = AdvanceStages(s.stages)

	if len(s.stages) == 0 {
		return s.updateStatus(SessionStatusCompleted)
	}
	return nil
}

// FailActiveStage records a recoverable failure on the head stage: the stage
// moves to errored, the stage clock is cleared, and one attempt is consumed
// from the shared budget. The stage stays at the head for a retry in place.
func (s *Session) FailActiveStage(reason StageFailureReason) error {
	stage := s.ActiveStage()
	if stage == nil {
		return fmt.Errorf("session %s has no active stage", s.sessionID)
	}
	if err := stage.Fail(reason); err != nil {
		return err
	}

	s.timeline.ClearStage()
	s.budget.Decrement()
	return nil
}

// AttemptsExhausted reports whether the shared retry budget has run out.
func (s *Session) AttemptsExhausted() bool { return s.budget.IsExhausted() }

// FailSession ends the session with a terminal failure reason.
func (s *Session) FailSession(reason ScanFailureReason) error {
	if err := s.updateStatus(SessionStatusError); err != nil {
		return err
	}
	s.failureReason = &reason
	return nil
}

// Stop performs a full reset back to idle: counters restored, anchors and
// failure state cleared, stop flag cleared, stage queue discarded.
func (s *Session) Stop() error {
	if s.status != SessionStatusIdle {
		if err := s.updateStatus(SessionStatusIdle); err != nil {
			return err
		}
	}
	s.reset()
	return nil
}

// Restart takes a terminal (or idle) session back into scanning with a fresh
// shuffle and a fully restored budget.
func (s *Session) Restart() error {
	switch s.status {
	case SessionStatusCompleted, SessionStatusError:
		if err := s.updateStatus(SessionStatusIdle); err != nil {
			return err
		}
	case SessionStatusIdle:
	default:
		return fmt.Errorf("cannot restart session in status %s", s.status)
	}

	s.reset()
	return s.Start()
}

func (s *Session) reset() {
	s.stages = nil
	s.failureReason = nil
	s.budget.Reset()
	s.timeline.Reset()
	s.transitioning = false
	s.stopRequested = false
}

func (s *Session) updateStatus(newStatus SessionStatus) error {
	if err := s.status.ValidateTransition(newStatus); err != nil {
		return err
	}
	s.status = newStatus
	return nil
}

// Snapshot returns a read-only view of the session for hosts and callbacks.
// Callbacks must never mutate session state; handing out a value copy makes
// that structural.
func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		SessionID:         s.sessionID,
		Status:            s.status,
		AttemptsRemaining: s.budget.Remaining(),
		StagesRemaining:   len(s.stages),
		Transitioning:     s.transitioning,
		SessionStartedAt:  s.timeline.SessionStartedAt(),
		StageStartedAt:    s.timeline.StageStartedAt(),
		LastUpdate:        s.timeline.LastUpdate(),
	}
	if s.failureReason != nil {
		r := *s.failureReason
		snap.FailureReason = &r
	}
	if stage := s.ActiveStage(); stage != nil {
		snap.ActiveStageID = stage.ID()
		snap.ActiveStageStatus = stage.Status()
	}
	return snap
}

// SessionSnapshot is an immutable point-in-time view of a Session.
type SessionSnapshot struct {
	SessionID         uuid.UUID
	Status            SessionStatus
	FailureReason     *ScanFailureReason
	ActiveStageID     StageID
	ActiveStageStatus StageStatus
	AttemptsRemaining int
	StagesRemaining   int
	Transitioning     bool
	SessionStartedAt  time.Time
	StageStartedAt    time.Time
	LastUpdate        time.Time
}
