package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageStatus_ValidateTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    StageStatus
		to      StageStatus
		wantErr bool
	}{
		{name: "initial to scanning", from: StageStatusInitial, to: StageStatusScanning},
		{name: "scanning to completed", from: StageStatusScanning, to: StageStatusCompleted},
		{name: "scanning to errored", from: StageStatusScanning, to: StageStatusErrored},
		{name: "errored to scanning", from: StageStatusErrored, to: StageStatusScanning},
		{name: "initial to completed rejected", from: StageStatusInitial, to: StageStatusCompleted, wantErr: true},
		{name: "initial to errored rejected", from: StageStatusInitial, to: StageStatusErrored, wantErr: true},
		{name: "errored to completed rejected", from: StageStatusErrored, to: StageStatusCompleted, wantErr: true},
		{name: "completed to scanning rejected", from: StageStatusCompleted, to: StageStatusScanning, wantErr: true},
		{name: "completed to errored rejected", from: StageStatusCompleted, to: StageStatusErrored, wantErr: true},
		{name: "scanning to initial rejected", from: StageStatusScanning, to: StageStatusInitial, wantErr: true},
		{name: "unknown source rejected", from: StageStatus("BOGUS"), to: StageStatusScanning, wantErr: true},
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

func TestParseStageStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  StageStatus
	}{
		{input: "INITIAL", want: StageStatusInitial},
		{input: "SCANNING", want: StageStatusScanning},
		{input: "COMPLETED", want: StageStatusCompleted},
		{input: "ERRORED", want: StageStatusErrored},
		{input: "nope", want: StageStatus("")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseStageStatus(tt.input))
		})
	}
}
