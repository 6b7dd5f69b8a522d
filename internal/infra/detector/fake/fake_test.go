package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/liveness-gate/internal/domain/liveness"
)

func TestDetector_Validate(t *testing.T) {
	t.Parallel()

	ok, err := NewDetector(0).Validate(context.Background(), liveness.StageFront)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDetector_RespectsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDetector(time.Minute).Validate(ctx, liveness.StageFront)
	assert.Error(t, err)
}

func TestScriptedDetector_ReplaysVerdicts(t *testing.T) {
	t.Parallel()

	scriptErr := errors.New("detector offline")
	det := NewScriptedDetector(
		Verdict{Valid: false},
		Verdict{Err: scriptErr},
		Verdict{Valid: true},
	)

	ok, err := det.Validate(context.Background(), liveness.StageFront)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = det.Validate(context.Background(), liveness.StageFront)
	assert.ErrorIs(t, err, scriptErr)

	// The final verdict repeats once the script runs out.
	for i := 0; i < 2; i++ {
		ok, err = det.Validate(context.Background(), liveness.StageFront)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestScriptedDetector_EmptyScriptPasses(t *testing.T) {
	t.Parallel()

	ok, err := NewScriptedDetector().Validate(context.Background(), liveness.StageFront)
	require.NoError(t, err)
	assert.True(t, ok)
}
