package liveness

import "time"

// TimeProvider is an interface that provides a Now method to get the current time.
type TimeProvider interface {
	Now() time.Time
}

// Real implementation for production.
type realTimeProvider struct{}

func (r *realTimeProvider) Now() time.Time { return time.Now() }

// Timeline tracks the two temporal anchors of a scan session: when the
// session started ticking and when the currently active stage entered its
// scanning state. Both anchors are set lazily and cleared on reset, so
// elapsed queries are only meaningful after the corresponding Mark call.
type Timeline struct {
	sessionStartedAt time.Time
	stageStartedAt   time.Time
	lastUpdate       time.Time
	timeProvider     TimeProvider
}

// NewTimeline creates a Timeline with both anchors unset.
func NewTimeline(timeProvider TimeProvider) *Timeline {
	return &Timeline{timeProvider: timeProvider}
}

// SessionStartedAt returns the session anchor, zero if unset.
func (t *Timeline) SessionStartedAt() time.Time { return t.sessionStartedAt }

// StageStartedAt returns the active-stage anchor, zero if unset.
func (t *Timeline) StageStartedAt() time.Time { return t.stageStartedAt }

// LastUpdate returns the time the timeline was last touched.
func (t *Timeline) LastUpdate() time.Time { return t.lastUpdate }

// SessionStarted reports whether the session anchor has been set.
func (t *Timeline) SessionStarted() bool { return !t.sessionStartedAt.IsZero() }

// StageStarted reports whether the stage anchor has been set.
func (t *Timeline) StageStarted() bool { return !t.stageStartedAt.IsZero() }

// MarkSessionStarted anchors the session clock. The anchor is set once per
// session; subsequent calls before a reset are ignored.
func (t *Timeline) MarkSessionStarted() {
	if t.sessionStartedAt.IsZero() {
		t.sessionStartedAt = t.timeProvider.Now()
	}
	t.touch()
}

// MarkStageStarted anchors the stage clock for the active stage, replacing
// any previous anchor.
func (t *Timeline) MarkStageStarted() {
	t.stageStartedAt = t.timeProvider.Now()
	t.touch()
}

// ClearStage removes the stage anchor. Called whenever the active stage
// leaves its scanning state, either on completion or on a retry reset.
func (t *Timeline) ClearStage() {
	t.stageStartedAt = time.Time{}
	t.touch()
}

// Reset clears both anchors, returning the timeline to its pre-session state.
func (t *Timeline) Reset() {
	t.sessionStartedAt = time.Time{}
	t.stageStartedAt = time.Time{}
	t.touch()
}

// SessionElapsed returns elapsed time since the session anchor. The result
// is undefined before MarkSessionStarted; callers must anchor first.
func (t *Timeline) SessionElapsed(now time.Time) time.Duration {
	return now.Sub(t.sessionStartedAt)
}

// StageElapsed returns elapsed time since the stage anchor. The result is
// undefined before MarkStageStarted; callers must anchor first.
func (t *Timeline) StageElapsed(now time.Time) time.Duration {
	return now.Sub(t.stageStartedAt)
}

func (t *Timeline) touch() { t.lastUpdate = t.timeProvider.Now() }
