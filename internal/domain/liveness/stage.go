// Package liveness contains the domain model for multi-stage liveness
// challenges: the stages a subject must hold, the session that spans them,
// and the lifecycle rules that govern both.
package liveness

import "fmt"

// StageID identifies one challenge pose the subject must hold.
type StageID string

const (
	// StageFront requires the subject to face the camera directly.
	StageFront StageID = "FRONT"

	// StageLeft requires the subject to turn their head to the left.
	StageLeft StageID = "LEFT"

	// StageRight requires the subject to turn their head to the right.
	StageRight StageID = "RIGHT"
)

func (id StageID) String() string { return string(id) }

// ParseStageID converts a string to a StageID.
func ParseStageID(s string) (StageID, error) {
	switch s {
	case "FRONT", "front":
		return StageFront, nil
	case "LEFT", "left":
		return StageLeft, nil
	case "RIGHT", "right":
		return StageRight, nil
	default:
		return "", fmt.Errorf("unknown stage id: %q", s)
	}
}

// DefaultStageIDs returns the full challenge pose set in its canonical order.
// Sessions shuffle this order; the set itself is fixed.
func DefaultStageIDs() []StageID {
	return []StageID{StageFront, StageLeft, StageRight}
}

// Stage tracks the lifecycle of a single challenge pose within a session.
// It records the pose identity, its current status, and the reason for the
// most recent failure when one occurred.
type Stage struct {
	id        StageID
	status    StageStatus
	lastError *StageFailureReason
}

// NewStage creates a Stage in its initial state for the given pose.
func NewStage(id StageID) *Stage {
	return &Stage{id: id, status: StageStatusInitial}
}

// ID returns the pose identifier for this stage.
func (s *Stage) ID() StageID { return s.id }

// Status returns the current lifecycle status of this stage.
func (s *Stage) Status() StageStatus { return s.status }

// LastError returns the reason for the most recent failure of this stage,
// or nil if the stage has never failed.
func (s *Stage) LastError() *StageFailureReason { return s.lastError }

// Begin transitions the stage into its active scanning state.
func (s *Stage) Begin() error {
	return s.updateStatus(StageStatusScanning)
}

// Complete marks the stage as successfully validated.
func (s *Stage) Complete() error {
	return s.updateStatus(StageStatusCompleted)
}

// Fail records a failure reason and moves the stage to its errored state.
// A failed stage is not terminal: Reset returns it to initial for a retry.
func (s *Stage) Fail(reason StageFailureReason) error {
	if err := s.updateStatus(StageStatusErrored); err != nil {
		return err
	}
	s.lastError = &reason
	return nil
}

// Reset returns an errored or initial stage to its initial state so the
// subject can retry the pose. The last failure reason is preserved for
// observability.
func (s *Stage) Reset() error {
	if s.status == StageStatusCompleted {
		return fmt.Errorf("stage %s is completed and cannot be reset", s.id)
	}
	s.status = StageStatusInitial
	return nil
}

func (s *Stage) updateStatus(newStatus StageStatus) error {
	if err := s.status.ValidateTransition(newStatus); err != nil {
		return fmt.Errorf("stage %s: %w", s.id, err)
	}
	s.status = newStatus
	return nil
}
