package scanning

import (
	"context"

	"github.com/ahrav/liveness-gate/internal/domain/liveness"
)

// StageValidator is the port to the external pose detector. The orchestrator
// invokes it at most once at a time for the active stage; a slow call is
// never overlapped by a second one.
//
// Returning (false, nil) and returning a non-nil error are treated
// identically by the orchestrator: both count as a validation failure
// against the shared attempt budget. Implementations should respect context
// cancellation so abandoned calls release their resources promptly.
type StageValidator interface {
	Validate(ctx context.Context, stageID liveness.StageID) (bool, error)
}

// ValidatorFunc adapts a plain function to the StageValidator interface.
type ValidatorFunc func(ctx context.Context, stageID liveness.StageID) (bool, error)

// Validate calls the wrapped function.
func (f ValidatorFunc) Validate(ctx context.Context, stageID liveness.StageID) (bool, error) {
	return f(ctx, stageID)
}

// Callbacks are fire-and-forget notifications invoked by the orchestrator at
// well-defined lifecycle points. The orchestrator does not wait on them and
// recovers from their panics, so a misbehaving host cannot break the loop.
// Nil members are skipped. Callbacks must treat session state as read-only;
// use Snapshot for observation.
type Callbacks struct {
	// OnScanStageCompleted fires when the active stage passes validation.
	OnScanStageCompleted func()

	// OnScanStageError fires on a recoverable stage failure. The stage will
	// be retried while attempts remain.
	OnScanStageError func(reason liveness.StageFailureReason)

	// OnScanCompleted fires exactly once when every stage has passed.
	OnScanCompleted func()

	// OnScanError fires when the session ends with a terminal failure.
	OnScanError func(reason liveness.ScanFailureReason)
}
