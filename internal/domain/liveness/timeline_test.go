package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// mockTimeProvider implements TimeProvider for testing.
type mockTimeProvider struct{ currentTime time.Time }

func (m *mockTimeProvider) Now() time.Time { return m.currentTime }

func (m *mockTimeProvider) Advance(d time.Duration) { m.currentTime = m.currentTime.Add(d) }

func TestTimeline_SessionAnchor(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tp := &mockTimeProvider{currentTime: base}
	tl := NewTimeline(tp)

	assert.False(t, tl.SessionStarted())
	assert.True(t, tl.SessionStartedAt().IsZero())

	tl.MarkSessionStarted()
	assert.True(t, tl.SessionStarted())
	assert.Equal(t, base, tl.SessionStartedAt())

	// The anchor is set once; a later call must not re-anchor.
	tp.Advance(5 * time.Second)
	tl.MarkSessionStarted()
	assert.Equal(t, base, tl.SessionStartedAt())

	assert.Equal(t, 5*time.Second, tl.SessionElapsed(tp.Now()))
}

func TestTimeline_StageAnchor(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tp := &mockTimeProvider{currentTime: base}
	tl := NewTimeline(tp)

	assert.False(t, tl.StageStarted())

	tl.MarkStageStarted()
	assert.True(t, tl.StageStarted())
	assert.Equal(t, base, tl.StageStartedAt())

	// Unlike the session anchor, a retry re-anchors the stage clock.
	tp.Advance(2 * time.Second)
	tl.MarkStageStarted()
	assert.Equal(t, base.Add(2*time.Second), tl.StageStartedAt())

	tp.Advance(300 * time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, tl.StageElapsed(tp.Now()))

	tl.ClearStage()
	assert.False(t, tl.StageStarted())
}

func TestTimeline_Reset(t *testing.T) {
	t.Parallel()

	tp := &mockTimeProvider{currentTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	tl := NewTimeline(tp)

	tl.MarkSessionStarted()
	tl.MarkStageStarted()
	tl.Reset()

	assert.False(t, tl.SessionStarted())
	assert.False(t, tl.StageStarted())
}

func TestTimeline_LastUpdate(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tp := &mockTimeProvider{currentTime: base}
	tl := NewTimeline(tp)

	tl.MarkSessionStarted()
	assert.Equal(t, base, tl.LastUpdate())

	tp.Advance(time.Second)
	tl.ClearStage()
	assert.Equal(t, base.Add(time.Second), tl.LastUpdate())
}
