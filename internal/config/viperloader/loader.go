// Package viperloader loads service configuration through viper, layering an
// optional YAML file and LIVENESS_-prefixed environment variables over the
// built-in defaults.
package viperloader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ahrav/liveness-gate/internal/config"
)

// Loader resolves configuration from defaults, an optional config file, and
// environment variables, in increasing order of precedence.
type Loader struct {
	// path is an explicit config file path. When empty the loader searches
	// the working directory for liveness-gate.yaml.
	path string
}

// NewLoader creates a Loader. An empty path enables the default search.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load resolves and validates the configuration.
func (l *Loader) Load(ctx context.Context) (*config.Config, error) {
	v := viper.New()

	setDefaults(v, config.Default())

	if l.path != "" {
		v.SetConfigFile(l.path)
	} else {
		v.SetConfigName("liveness-gate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("LIVENESS")
	// Nested keys map to underscored env vars, e.g.
	// LIVENESS_SCAN_STAGE_TIMEOUT for scan.stage_timeout.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing file is fine when no explicit path was given; the
		// defaults and environment carry the configuration.
		if l.path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, defaults *config.Config) {
	v.SetDefault("scan.stages", defaults.Scan.Stages)
	v.SetDefault("scan.stage_transition_time", defaults.Scan.StageTransitionTime)
	v.SetDefault("scan.stage_timeout", defaults.Scan.StageTimeout)
	v.SetDefault("scan.total_scan_timeout", defaults.Scan.TotalScanTimeout)
	v.SetDefault("scan.number_of_attempts", defaults.Scan.NumberOfAttempts)
	v.SetDefault("scan.poll_interval", defaults.Scan.PollInterval)

	v.SetDefault("detector.endpoint", defaults.Detector.Endpoint)
	v.SetDefault("detector.timeout", defaults.Detector.Timeout)
	v.SetDefault("detector.rate_limit", defaults.Detector.RateLimit)
	v.SetDefault("detector.rate_burst", defaults.Detector.RateBurst)
	v.SetDefault("detector.retry.max_wait", defaults.Detector.Retry.MaxWait)
	v.SetDefault("detector.retry.initial_wait", defaults.Detector.Retry.InitialWait)

	v.SetDefault("api.host", defaults.API.Host)
	v.SetDefault("api.port", defaults.API.Port)

	v.SetDefault("probe.host", defaults.Probe.Host)
	v.SetDefault("probe.port", defaults.Probe.Port)

	v.SetDefault("metrics.host", defaults.Metrics.Host)
	v.SetDefault("metrics.port", defaults.Metrics.Port)

	v.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", defaults.Telemetry.Endpoint)
	v.SetDefault("telemetry.sample_rate", defaults.Telemetry.SampleRate)

	v.SetDefault("logging.level", defaults.Logging.Level)
}
