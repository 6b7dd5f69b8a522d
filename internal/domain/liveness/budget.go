package liveness

// AttemptBudget tracks the retry attempts remaining across a whole session.
// The budget is session-wide rather than per-stage: a failure at any stage
// draws from the same counter, bounding total subject effort.
type AttemptBudget struct {
	initial   int
	remaining int
}

// NewAttemptBudget creates a budget with the given number of attempts.
// Negative values are treated as zero.
func NewAttemptBudget(attempts int) *AttemptBudget {
	if attempts < 0 {
		attempts = 0
	}
	return &AttemptBudget{initial: attempts, remaining: attempts}
}

// Initial returns the configured number of attempts.
func (b *AttemptBudget) Initial() int { return b.initial }

// Remaining returns the number of attempts left.
func (b *AttemptBudget) Remaining() int { return b.remaining }

// Decrement consumes one attempt, saturating at zero.
func (b *AttemptBudget) Decrement() {
	if b.remaining > 0 {
		b.remaining--
	}
}

// IsExhausted reports whether no attempts remain.
func (b *AttemptBudget) IsExhausted() bool { return b.remaining == 0 }

// Reset restores the budget to its configured initial value.
func (b *AttemptBudget) Reset() { b.remaining = b.initial }
