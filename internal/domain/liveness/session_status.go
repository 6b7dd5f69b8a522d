package liveness

import "fmt"

// SessionStatus represents the current state of a liveness scan session.
type SessionStatus string

const (
	// SessionStatusIdle indicates a session has been created but not yet started,
	// or has been stopped and fully reset.
	SessionStatusIdle SessionStatus = "IDLE"

	// SessionStatusScanning indicates a session is actively driving stages.
	SessionStatusScanning SessionStatus = "SCANNING"

	// SessionStatusCompleted indicates every stage finished successfully.
	SessionStatusCompleted SessionStatus = "COMPLETED"

	// SessionStatusError indicates the session ended with a terminal failure.
	SessionStatusError SessionStatus = "ERROR"
)

func (s SessionStatus) String() string { return string(s) }

// ParseSessionStatus converts a string to a SessionStatus.
func ParseSessionStatus(s string) SessionStatus {
	switch s {
	case "IDLE":
		return SessionStatusIdle
	case "SCANNING":
		return SessionStatusScanning
	case "COMPLETED":
		return SessionStatusCompleted
	case "ERROR":
		return SessionStatusError
	default:
		return "" // represents unspecified
	}
}

// IsTerminal reports whether the session has reached an end state that only
// a restart or a stop can leave.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusError
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s SessionStatus) ValidateTransition(target SessionStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid session status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces the session lifecycle rules. A stop resets any
// state back to IDLE; a restart takes a terminal state back to SCANNING with
// fresh counters.
func (s SessionStatus) isValidTransition(target SessionStatus) bool {
	switch s {
	case SessionStatusIdle:
		return target == SessionStatusScanning
	case SessionStatusScanning:
		return target == SessionStatusCompleted ||
			target == SessionStatusError ||
			target == SessionStatusIdle
	case SessionStatusCompleted, SessionStatusError:
		// Restart re-enters SCANNING; stop returns to IDLE.
		return target == SessionStatusScanning || target == SessionStatusIdle
	default:
		return false
	}
}
