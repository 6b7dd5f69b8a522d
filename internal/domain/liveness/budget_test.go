package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttemptBudget(t *testing.T) {
	t.Parallel()

	t.Run("decrement saturates at zero", func(t *testing.T) {
		t.Parallel()
		b := NewAttemptBudget(2)
		assert.Equal(t, 2, b.Initial())
		assert.Equal(t, 2, b.Remaining())
		assert.False(t, b.IsExhausted())

		b.Decrement()
		assert.Equal(t, 1, b.Remaining())

		b.Decrement()
		assert.Equal(t, 0, b.Remaining())
		assert.True(t, b.IsExhausted())

		b.Decrement()
		assert.Equal(t, 0, b.Remaining())
	})

	t.Run("reset restores initial", func(t *testing.T) {
		t.Parallel()
		b := NewAttemptBudget(3)
		b.Decrement()
		b.Decrement()

		b.Reset()
		assert.Equal(t, 3, b.Remaining())
		assert.False(t, b.IsExhausted())
	})

	t.Run("zero budget starts exhausted", func(t *testing.T) {
		t.Parallel()
		b := NewAttemptBudget(0)
		assert.True(t, b.IsExhausted())
	})

	t.Run("negative treated as zero", func(t *testing.T) {
		t.Parallel()
		b := NewAttemptBudget(-5)
		assert.Equal(t, 0, b.Initial())
		assert.True(t, b.IsExhausted())
	})
}
