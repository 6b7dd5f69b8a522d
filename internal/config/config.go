// Package config defines the top-level configuration for the liveness gate
// service and the loaders that produce it.
package config

import (
	"fmt"
	"time"

	"github.com/ahrav/liveness-gate/internal/app/scanning"
	"github.com/ahrav/liveness-gate/internal/domain/liveness"
)

// Config represents the top-level service configuration.
type Config struct {
	Scan      ScanConfig      `yaml:"scan" mapstructure:"scan"`
	Detector  DetectorConfig  `yaml:"detector" mapstructure:"detector"`
	API       APIConfig       `yaml:"api" mapstructure:"api"`
	Probe     ProbeConfig     `yaml:"probe" mapstructure:"probe"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ScanConfig carries the budgets and timings for scan sessions.
type ScanConfig struct {
	// Stages is the challenge pose set presented to the subject. Sessions
	// shuffle the order; the set itself comes from configuration.
	Stages []string `yaml:"stages" mapstructure:"stages"`

	// StageTransitionTime is the pause between a stage outcome and the next
	// attempt or stage.
	StageTransitionTime time.Duration `yaml:"stage_transition_time" mapstructure:"stage_transition_time"`

	// StageTimeout bounds a single stage attempt.
	StageTimeout time.Duration `yaml:"stage_timeout" mapstructure:"stage_timeout"`

	// TotalScanTimeout bounds the whole session.
	TotalScanTimeout time.Duration `yaml:"total_scan_timeout" mapstructure:"total_scan_timeout"`

	// NumberOfAttempts is the session-wide retry budget.
	NumberOfAttempts int `yaml:"number_of_attempts" mapstructure:"number_of_attempts"`

	// PollInterval is the driver loop's timeout check cadence.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// DetectorConfig describes the external pose detector endpoint.
type DetectorConfig struct {
	// Endpoint is the base URL of the detector service.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`

	// Timeout bounds a single detector request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// RateLimit is the maximum number of detector requests per second.
	// Zero (or omitted) means no rate limiting.
	RateLimit float64 `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`

	// RateBurst is the burst size for the rate limiter.
	RateBurst int `yaml:"rate_burst,omitempty" mapstructure:"rate_burst"`

	// Retry defines how the client verifies connectivity on startup.
	Retry RetryConfig `yaml:"retry,omitempty" mapstructure:"retry"`
}

// RetryConfig defines basic retry behavior for detector requests.
type RetryConfig struct {
	// MaxWait is the upper bound for the total backoff (e.g., 30s).
	MaxWait time.Duration `yaml:"max_wait,omitempty" mapstructure:"max_wait"`

	// InitialWait is the initial backoff duration (e.g., 1s).
	InitialWait time.Duration `yaml:"initial_wait,omitempty" mapstructure:"initial_wait"`
}

// APIConfig describes the scan control HTTP endpoint.
type APIConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// ProbeConfig describes the health and readiness endpoint.
type ProbeConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// MetricsConfig describes the Prometheus metrics endpoint.
type MetricsConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// TelemetryConfig describes the OTLP trace export target.
type TelemetryConfig struct {
	// Enabled turns OTLP export on. When false, spans are recorded against a
	// no-op provider.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Endpoint is the OTLP gRPC collector address (host:port).
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`

	// SampleRate is the fraction of traces to sample in [0, 1].
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum level emitted: debug, info, warn, or error.
	Level string `yaml:"level" mapstructure:"level"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	scan := scanning.DefaultConfig()
	stages := make([]string, len(scan.Stages))
	for i, id := range scan.Stages {
		stages[i] = id.String()
	}

	return &Config{
		Scan: ScanConfig{
			Stages:              stages,
			StageTransitionTime: scan.StageTransitionTime,
			StageTimeout:        scan.StageTimeout,
			TotalScanTimeout:    scan.TotalScanTimeout,
			NumberOfAttempts:    scan.NumberOfAttempts,
			PollInterval:        scan.PollInterval,
		},
		Detector: DetectorConfig{
			Endpoint:  "http://localhost:8090",
			Timeout:   5 * time.Second,
			RateLimit: 20,
			RateBurst: 5,
			Retry: RetryConfig{
				MaxWait:     30 * time.Second,
				InitialWait: time.Second,
			},
		},
		API:     APIConfig{Host: "0.0.0.0", Port: 8081},
		Probe:   ProbeConfig{Host: "0.0.0.0", Port: 8080},
		Metrics: MetricsConfig{Host: "0.0.0.0", Port: 9090},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			SampleRate: 1,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate checks the configuration for values that would prevent startup.
func (c *Config) Validate() error {
	if _, err := c.ScanConfig(); err != nil {
		return err
	}
	if c.Detector.Endpoint == "" {
		return fmt.Errorf("detector endpoint is required")
	}
	if c.Detector.Timeout <= 0 {
		return fmt.Errorf("detector timeout must be positive, got %s", c.Detector.Timeout)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample rate must be in [0, 1], got %f", c.Telemetry.SampleRate)
	}
	return nil
}

// ScanConfig converts the raw scan section into the session configuration,
// parsing and validating the stage ids.
func (c *Config) ScanConfig() (scanning.Config, error) {
	stages := make([]liveness.StageID, 0, len(c.Scan.Stages))
	for _, raw := range c.Scan.Stages {
		id, err := liveness.ParseStageID(raw)
		if err != nil {
			return scanning.Config{}, fmt.Errorf("invalid scan stage: %w", err)
		}
		stages = append(stages, id)
	}

	cfg := scanning.Config{
		Stages:              stages,
		StageTransitionTime: c.Scan.StageTransitionTime,
		StageTimeout:        c.Scan.StageTimeout,
		TotalScanTimeout:    c.Scan.TotalScanTimeout,
		NumberOfAttempts:    c.Scan.NumberOfAttempts,
		PollInterval:        c.Scan.PollInterval,
	}
	if err := cfg.Validate(); err != nil {
		return scanning.Config{}, err
	}
	return cfg, nil
}
