package viperloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "liveness-gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_DefaultsWithoutFile(t *testing.T) {
	cfg, err := NewLoader("").Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Scan.NumberOfAttempts)
	assert.Equal(t, 10*time.Second, cfg.Scan.StageTimeout)
	assert.Equal(t, "http://localhost:8090", cfg.Detector.Endpoint)
}

func TestLoader_FileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
scan:
  stages: ["front", "left"]
  number_of_attempts: 5
  stage_timeout: 3s
detector:
  endpoint: http://detector:9000
`)

	cfg, err := NewLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"front", "left"}, cfg.Scan.Stages)
	assert.Equal(t, 5, cfg.Scan.NumberOfAttempts)
	assert.Equal(t, 3*time.Second, cfg.Scan.StageTimeout)
	assert.Equal(t, "http://detector:9000", cfg.Detector.Endpoint)
	// Values absent from the file keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.Scan.TotalScanTimeout)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("LIVENESS_SCAN_NUMBER_OF_ATTEMPTS", "7")
	t.Setenv("LIVENESS_DETECTOR_ENDPOINT", "http://env-detector:9000")

	cfg, err := NewLoader("").Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Scan.NumberOfAttempts)
	assert.Equal(t, "http://env-detector:9000", cfg.Detector.Endpoint)
}

func TestLoader_MissingExplicitFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load(context.Background())
	assert.Error(t, err)
}

func TestLoader_InvalidValuesRejected(t *testing.T) {
	path := writeConfigFile(t, `
scan:
  number_of_attempts: 0
`)

	_, err := NewLoader(path).Load(context.Background())
	assert.Error(t, err)
}

func TestLoader_UnknownStageRejected(t *testing.T) {
	path := writeConfigFile(t, `
scan:
  stages: ["front", "sideways"]
`)

	_, err := NewLoader(path).Load(context.Background())
	assert.Error(t, err)
}
