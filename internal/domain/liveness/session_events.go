package liveness

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/liveness-gate/internal/domain/events"
)

// Event types relevant to scan sessions:
const (
	EventTypeScanStarted    events.EventType = "ScanStarted"
	EventTypeScanStopped    events.EventType = "ScanStopped"
	EventTypeScanCompleted  events.EventType = "ScanCompleted"
	EventTypeScanFailed     events.EventType = "ScanFailed"
	EventTypeStageCompleted events.EventType = "StageCompleted"
	EventTypeStageFailed    events.EventType = "StageFailed"
)

// ScanStartedEvent indicates a session began ticking with a fresh stage order.
type ScanStartedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	StageOrder []StageID
	Attempts   int
}

func NewScanStartedEvent(sessionID uuid.UUID, order []StageID, attempts int) ScanStartedEvent {
	return ScanStartedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		StageOrder: order,
		Attempts:   attempts,
	}
}

func (e ScanStartedEvent) EventType() events.EventType { return EventTypeScanStarted }
func (e ScanStartedEvent) OccurredAt() time.Time       { return e.occurredAt }

// ScanStoppedEvent indicates a host-requested stop reset the session.
type ScanStoppedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
}

func NewScanStoppedEvent(sessionID uuid.UUID) ScanStoppedEvent {
	return ScanStoppedEvent{occurredAt: time.Now(), SessionID: sessionID}
}

func (e ScanStoppedEvent) EventType() events.EventType { return EventTypeScanStopped }
func (e ScanStoppedEvent) OccurredAt() time.Time       { return e.occurredAt }

// StageCompletedEvent signals the active stage passed validation.
type StageCompletedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	StageID    StageID
	Elapsed    time.Duration
}

func NewStageCompletedEvent(sessionID uuid.UUID, stageID StageID, elapsed time.Duration) StageCompletedEvent {
	return StageCompletedEvent{
		occurredAt: time.Now(),
		SessionID:  sessionID,
		StageID:    stageID,
		Elapsed:    elapsed,
	}
}

func (e StageCompletedEvent) EventType() events.EventType { return EventTypeStageCompleted }
func (e StageCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }

// StageFailedEvent signals a recoverable stage failure. The stage will be
// retried in place while attempts remain.
type StageFailedEvent struct {
	occurredAt        time.Time
	SessionID         uuid.UUID
	StageID           StageID
	Reason            StageFailureReason
	AttemptsRemaining int
}

func NewStageFailedEvent(sessionID uuid.UUID, stageID StageID, reason StageFailureReason, attemptsRemaining int) StageFailedEvent {
	return StageFailedEvent{
		occurredAt:        time.Now(),
		SessionID:         sessionID,
		StageID:           stageID,
		Reason:            reason,
		AttemptsRemaining: attemptsRemaining,
	}
}

func (e StageFailedEvent) EventType() events.EventType { return EventTypeStageFailed }
func (e StageFailedEvent) OccurredAt() time.Time       { return e.occurredAt }

// ScanCompletedEvent means every stage of the session passed.
type ScanCompletedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	Elapsed    time.Duration
}

func NewScanCompletedEvent(sessionID uuid.UUID, elapsed time.Duration) ScanCompletedEvent {
	return ScanCompletedEvent{occurredAt: time.Now(), SessionID: sessionID, Elapsed: elapsed}
}

func (e ScanCompletedEvent) EventType() events.EventType { return EventTypeScanCompleted }
func (e ScanCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }

// ScanFailedEvent means the session ended with a terminal failure.
type ScanFailedEvent struct {
	occurredAt time.Time
	SessionID  uuid.UUID
	Reason     ScanFailureReason
}

func NewScanFailedEvent(sessionID uuid.UUID, reason ScanFailureReason) ScanFailedEvent {
	return ScanFailedEvent{occurredAt: time.Now(), SessionID: sessionID, Reason: reason}
}

func (e ScanFailedEvent) EventType() events.EventType { return EventTypeScanFailed }
func (e ScanFailedEvent) OccurredAt() time.Time       { return e.occurredAt }
