package scanning

import (
	"fmt"
	"time"

	"github.com/ahrav/liveness-gate/internal/domain/liveness"
)

// Config carries the immutable budgets and timings for a scan session.
// Values are fixed for the lifetime of a session; a restart picks up the
// same configuration with fresh counters.
type Config struct {
	// Stages is the challenge pose set. A session presents these in a fresh
	// random order.
	Stages []liveness.StageID

	// StageTransitionTime is the pause inserted before retrying a failed
	// stage or advancing to the next one. The same delay applies to both so
	// the subject gets a consistent visible beat between attempts.
	StageTransitionTime time.Duration

	// StageTimeout bounds how long a single stage attempt may stay active.
	StageTimeout time.Duration

	// TotalScanTimeout bounds the whole session, regardless of how attempts
	// are spent.
	TotalScanTimeout time.Duration

	// NumberOfAttempts is the session-wide retry budget. Any stage failure,
	// timeout or validation, consumes from the same pool.
	NumberOfAttempts int

	// PollInterval is the cadence of the driver loop's timeout checks while
	// a validation call is outstanding.
	PollInterval time.Duration
}

// DefaultConfig returns the standard production budgets.
func DefaultConfig() Config {
	return Config{
		Stages:              liveness.DefaultStageIDs(),
		StageTransitionTime: 800 * time.Millisecond,
		StageTimeout:        10 * time.Second,
		TotalScanTimeout:    60 * time.Second,
		NumberOfAttempts:    3,
		PollInterval:        50 * time.Millisecond,
	}
}

// Validate checks the configuration for values that would make a session
// undrivable.
func (c Config) Validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("stage timeout must be positive, got %s", c.StageTimeout)
	}
	if c.TotalScanTimeout <= 0 {
		return fmt.Errorf("total scan timeout must be positive, got %s", c.TotalScanTimeout)
	}
	if c.NumberOfAttempts <= 0 {
		return fmt.Errorf("number of attempts must be positive, got %d", c.NumberOfAttempts)
	}
	if c.StageTransitionTime < 0 {
		return fmt.Errorf("stage transition time cannot be negative, got %s", c.StageTransitionTime)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	return nil
}
