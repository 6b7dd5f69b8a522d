// Package fake provides deterministic stage validators for local runs and
// tests where no real pose detector is available.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/liveness-gate/internal/app/scanning"
	"github.com/ahrav/liveness-gate/internal/domain/liveness"
)

var (
	_ scanning.StageValidator = (*Detector)(nil)
	_ scanning.StageValidator = (*ScriptedDetector)(nil)
)

// Detector approves every stage after an optional artificial delay. It
// stands in for a real detector in demos and smoke tests.
type Detector struct {
	// Latency is how long each validation takes. Zero returns immediately.
	Latency time.Duration
}

// NewDetector creates a detector that passes every stage with the given
// simulated latency.
func NewDetector(latency time.Duration) *Detector {
	return &Detector{Latency: latency}
}

// Validate approves the stage once the simulated latency elapses. It returns
// early with the context's error if the call is abandoned.
func (d *Detector) Validate(ctx context.Context, _ liveness.StageID) (bool, error) {
	if d.Latency > 0 {
		timer := time.NewTimer(d.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return true, nil
}

// ScriptedDetector replays a fixed sequence of verdicts, then repeats the
// final one. It lets tests and demos exercise retry and failure paths
// deterministically.
type ScriptedDetector struct {
	mu       sync.Mutex
	verdicts []Verdict
	next     int
}

// Verdict is one scripted validation outcome.
type Verdict struct {
	Valid bool
	Err   error
}

// NewScriptedDetector creates a detector that yields the given verdicts in
// order. The last verdict repeats once the script runs out.
func NewScriptedDetector(verdicts ...Verdict) *ScriptedDetector {
	return &ScriptedDetector{verdicts: verdicts}
}

// Validate returns the next scripted verdict.
func (d *ScriptedDetector) Validate(ctx context.Context, _ liveness.StageID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.verdicts) == 0 {
		return true, nil
	}
	v := d.verdicts[d.next]
	if d.next < len(d.verdicts)-1 {
		d.next++
	}
	return v.Valid, v.Err
}
