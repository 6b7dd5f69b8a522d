package liveness

// StageFailureReason identifies why a single stage attempt failed. Stage
// failures are recoverable: they consume the shared attempt budget and the
// stage is retried in place.
type StageFailureReason string

const (
	// StageFailureTimeout indicates the stage exceeded its per-stage time budget.
	StageFailureTimeout StageFailureReason = "TIMEOUT"

	// StageFailureValidation indicates the validator declined the pose or
	// returned an error while evaluating it.
	StageFailureValidation StageFailureReason = "VALIDATION_ERROR"
)

func (r StageFailureReason) String() string { return string(r) }

// ScanFailureReason identifies why a whole session ended in error. Scan
// failures are terminal for the session.
type ScanFailureReason string

const (
	// ScanFailureTimeout indicates total elapsed time exceeded the scan budget.
	ScanFailureTimeout ScanFailureReason = "SCAN_TIMEOUT"

	// ScanFailureAttemptsExceeded indicates the global retry budget ran out.
	ScanFailureAttemptsExceeded ScanFailureReason = "ATTEMPTS_EXCEEDED"
)

func (r ScanFailureReason) String() string { return string(r) }
