// Package config loads and validates the broker configuration from an
// optional JSON file plus SCANBRIDGE_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c360/scanbridge/errors"
)

// Runtime environments. Anything other than production enables the
// synthetic test device.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Duration wraps time.Duration so JSON configs can use strings like "5s".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON encodes the duration as its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string ("5s") or nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	default:
		return fmt.Errorf("invalid duration type %T", v)
	}
}

// Config represents the complete broker configuration.
type Config struct {
	// Port is the WebSocket listen port.
	Port int `json:"port"`
	// Path is the WebSocket endpoint path.
	Path string `json:"path"`
	// AllowedOrigins lists exact origins or *-wildcard patterns admitted at
	// upgrade time. Requests without an Origin header are always admitted.
	AllowedOrigins []string `json:"allowed_origins"`
	// Environment selects the runtime mode; see Env* constants.
	Environment string `json:"environment"`
	// OutputDir is where temporary scan output files are written.
	OutputDir string `json:"output_dir"`
	// ScanimagePath is the device-control binary used for discovery and scans.
	ScanimagePath string `json:"scanimage_path"`
	// CleanupDelay is how long a delivered scan file is kept on disk.
	CleanupDelay Duration `json:"cleanup_delay"`
	// JobTimeout bounds the wall-clock duration of a single scan job.
	JobTimeout Duration `json:"job_timeout"`
	// SimStepDelay is the inter-step delay of the simulated test device.
	SimStepDelay Duration `json:"sim_step_delay"`
	// MetricsPort serves /metrics and /healthz; 0 disables the server.
	MetricsPort int `json:"metrics_port"`
}

// Default returns the configuration used when no file and no overrides exist.
func Default() *Config {
	return &Config{
		Port:           8765,
		Path:           "/",
		AllowedOrigins: []string{},
		Environment:    EnvDevelopment,
		OutputDir:      filepath.Join(os.TempDir(), "scanbridge"),
		ScanimagePath:  "scanimage",
		CleanupDelay:   Duration(5 * time.Second),
		JobTimeout:     Duration(10 * time.Minute),
		SimStepDelay:   Duration(200 * time.Millisecond),
		MetricsPort:    9090,
	}
}

// Load builds a Config from defaults, an optional JSON file, and environment
// overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := ValidateSchema(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies SCANBRIDGE_* environment variables on top of the
// current values. Invalid values are ignored in favor of what is already set.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCANBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("SCANBRIDGE_PATH"); v != "" {
		c.Path = v
	}
	if v := os.Getenv("SCANBRIDGE_ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		c.AllowedOrigins = origins
	}
	if v := os.Getenv("SCANBRIDGE_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("SCANBRIDGE_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("SCANBRIDGE_SCANIMAGE"); v != "" {
		c.ScanimagePath = v
	}
	if v := os.Getenv("SCANBRIDGE_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MetricsPort = port
		}
	}
	if v := os.Getenv("SCANBRIDGE_CLEANUP_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CleanupDelay = Duration(d)
		}
	}
	if v := os.Getenv("SCANBRIDGE_JOB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.JobTimeout = Duration(d)
		}
	}
}

// Validate checks structural constraints that the JSON schema cannot express.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("port %d out of range", c.Port),
			"config", "Validate", "check port")
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("metrics port %d out of range", c.MetricsPort),
			"config", "Validate", "check metrics port")
	}
	if c.MetricsPort != 0 && c.MetricsPort == c.Port {
		return errors.WrapInvalid(
			fmt.Errorf("metrics port %d collides with listen port", c.MetricsPort),
			"config", "Validate", "check port collision")
	}
	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown environment %q", c.Environment),
			"config", "Validate", "check environment")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return errors.WrapInvalid(
			fmt.Errorf("path %q must start with /", c.Path),
			"config", "Validate", "check path")
	}
	if c.OutputDir == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"config", "Validate", "check output dir")
	}
	if c.ScanimagePath == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"config", "Validate", "check scanimage path")
	}
	if c.CleanupDelay <= 0 || c.JobTimeout <= 0 || c.SimStepDelay <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("durations must be positive"),
			"config", "Validate", "check durations")
	}
	return nil
}

// Production reports whether the broker runs in production mode, which
// disables the synthetic test device.
func (c *Config) Production() bool {
	return c.Environment == EnvProduction
}
