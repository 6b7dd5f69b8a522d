package liveness

import "fmt"

// StageStatus represents the lifecycle state of a single challenge stage.
type StageStatus string

const (
	// StageStatusInitial indicates the stage has not yet been presented to the subject.
	StageStatusInitial StageStatus = "INITIAL"

	// StageStatusScanning indicates the stage is active and being validated.
	StageStatusScanning StageStatus = "SCANNING"

	// StageStatusCompleted indicates the subject satisfied the pose.
	StageStatusCompleted StageStatus = "COMPLETED"

	// StageStatusErrored indicates the most recent attempt at this stage failed.
	// An errored stage may re-enter INITIAL for a retry.
	StageStatusErrored StageStatus = "ERRORED"
)

func (s StageStatus) String() string { return string(s) }

// ParseStageStatus converts a string to a StageStatus.
func ParseStageStatus(s string) StageStatus {
	switch s {
	case "INITIAL":
		return StageStatusInitial
	case "SCANNING":
		return StageStatusScanning
	case "COMPLETED":
		return StageStatusCompleted
	case "ERRORED":
		return StageStatusErrored
	default:
		return "" // represents unspecified
	}
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s StageStatus) ValidateTransition(target StageStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid stage status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces the stage lifecycle rules to prevent invalid
// state changes. A retry re-enters SCANNING directly from ERRORED; Reset
// (back to INITIAL) is reserved for sequence reshuffles and session resets.
func (s StageStatus) isValidTransition(target StageStatus) bool {
	switch s {
	case StageStatusInitial:
		return target == StageStatusScanning
	case StageStatusScanning:
		return target == StageStatusCompleted || target == StageStatusErrored
	case StageStatusErrored:
		// Retry in place re-enters the active state.
		return target == StageStatusScanning
	case StageStatusCompleted:
		// Terminal for a stage - no further transitions allowed.
		return false
	default:
		return false
	}
}
