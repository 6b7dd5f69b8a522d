package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus_ValidateTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    SessionStatus
		to      SessionStatus
		wantErr bool
	}{
		{name: "idle to scanning", from: SessionStatusIdle, to: SessionStatusScanning},
		{name: "scanning to completed", from: SessionStatusScanning, to: SessionStatusCompleted},
		{name: "scanning to error", from: SessionStatusScanning, to: SessionStatusError},
		{name: "scanning to idle on stop", from: SessionStatusScanning, to: SessionStatusIdle},
		{name: "completed to scanning on restart", from: SessionStatusCompleted, to: SessionStatusScanning},
		{name: "completed to idle on stop", from: SessionStatusCompleted, to: SessionStatusIdle},
		{name: "error to scanning on restart", from: SessionStatusError, to: SessionStatusScanning},
		{name: "error to idle on stop", from: SessionStatusError, to: SessionStatusIdle},
		{name: "idle to completed rejected", from: SessionStatusIdle, to: SessionStatusCompleted, wantErr: true},
		{name: "idle to error rejected", from: SessionStatusIdle, to: SessionStatusError, wantErr: true},
		{name: "completed to error rejected", from: SessionStatusCompleted, to: SessionStatusError, wantErr: true},
		{name: "error to completed rejected", from: SessionStatusError, to: SessionStatusCompleted, wantErr: true},
		{name: "unknown source rejected", from: SessionStatus("BOGUS"), to: SessionStatusScanning, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.from.ValidateTransition(tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSessionStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, SessionStatusIdle.IsTerminal())
	assert.False(t, SessionStatusScanning.IsTerminal())
	assert.True(t, SessionStatusCompleted.IsTerminal())
	assert.True(t, SessionStatusError.IsTerminal())
}

func TestParseSessionStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  SessionStatus
	}{
		{input: "IDLE", want: SessionStatusIdle},
		{input: "SCANNING", want: SessionStatusScanning},
		{input: "COMPLETED", want: SessionStatusCompleted},
		{input: "ERROR", want: SessionStatusError},
		{input: "nope", want: SessionStatus("")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseSessionStatus(tt.input))
		})
	}
}
