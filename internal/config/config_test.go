package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/liveness-gate/internal/domain/liveness"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	scan, err := cfg.ScanConfig()
	require.NoError(t, err)
	assert.ElementsMatch(t, liveness.DefaultStageIDs(), scan.Stages)
	assert.Equal(t, 3, scan.NumberOfAttempts)
}

func TestConfig_ScanConfig(t *testing.T) {
	t.Parallel()

	t.Run("parses lowercase stage names", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Scan.Stages = []string{"front", "left", "right"}

		scan, err := cfg.ScanConfig()
		require.NoError(t, err)
		assert.Equal(t, []liveness.StageID{liveness.StageFront, liveness.StageLeft, liveness.StageRight}, scan.Stages)
	})

	t.Run("rejects unknown stage", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Scan.Stages = []string{"FRONT", "UP"}

		_, err := cfg.ScanConfig()
		assert.Error(t, err)
	})

	t.Run("rejects undrivable budgets", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Scan.NumberOfAttempts = 0

		_, err := cfg.ScanConfig()
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default valid", mutate: func(*Config) {}},
		{name: "missing detector endpoint", mutate: func(c *Config) { c.Detector.Endpoint = "" }, wantErr: true},
		{name: "zero detector timeout", mutate: func(c *Config) { c.Detector.Timeout = 0 }, wantErr: true},
		{name: "negative sample rate", mutate: func(c *Config) { c.Telemetry.SampleRate = -0.1 }, wantErr: true},
		{name: "sample rate above one", mutate: func(c *Config) { c.Telemetry.SampleRate = 1.5 }, wantErr: true},
		{name: "empty stages", mutate: func(c *Config) { c.Scan.Stages = nil }, wantErr: true},
		{name: "zero stage timeout", mutate: func(c *Config) { c.Scan.StageTimeout = 0 }, wantErr: true},
		{name: "custom timings valid", mutate: func(c *Config) {
			c.Scan.StageTimeout = 5 * time.Second
			c.Scan.TotalScanTimeout = 20 * time.Second
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
