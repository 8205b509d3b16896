package provision

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config carries the provisioning tunables.
type Config struct {
	// MaxRetries is the number of re-attempts after the first try.
	MaxRetries int
	// RetryBaseDelay is the first backoff interval; it doubles per attempt.
	RetryBaseDelay time.Duration

	// SweepInterval is the cadence of the reclamation sweeper.
	SweepInterval time.Duration
	// CreatingTTL (T1): CREATING records older than this are orphans.
	CreatingTTL time.Duration
	// ErrorTTL (T2): ERROR records are kept this long for inspection.
	ErrorTTL time.Duration
	// SweepBatchSize bounds each sweep pass.
	SweepBatchSize int

	// StuckThreshold flags CREATING/PENDING records this old in stats.
	StuckThreshold time.Duration
}

// fileConfig is the YAML shape; durations are written as Go duration
// strings ("10m", "24h").
type fileConfig struct {
	MaxRetries     int    `yaml:"max_retries"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
	SweepInterval  string `yaml:"sweep_interval"`
	CreatingTTL    string `yaml:"creating_ttl"`
	ErrorTTL       string `yaml:"error_ttl"`
	SweepBatchSize int    `yaml:"sweep_batch_size"`
	StuckThreshold string `yaml:"stuck_threshold"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		RetryBaseDelay: 100 * time.Millisecond,
		SweepInterval:  10 * time.Minute,
		CreatingTTL:    15 * time.Minute,
		ErrorTTL:       24 * time.Hour,
		SweepBatchSize: 100,
		StuckThreshold: 5 * time.Minute,
	}
}

// LoadConfig reads tunables from the YAML file at path, falling back to
// defaults for anything unset. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read provisioning config: %w", err)
	}

	var overrides fileConfig
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return cfg, fmt.Errorf("failed to parse provisioning config: %w", err)
	}

	if overrides.MaxRetries > 0 {
		cfg.MaxRetries = overrides.MaxRetries
	}
	if overrides.SweepBatchSize > 0 {
		cfg.SweepBatchSize = overrides.SweepBatchSize
	}
	for _, d := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{overrides.RetryBaseDelay, "retry_base_delay", &cfg.RetryBaseDelay},
		{overrides.SweepInterval, "sweep_interval", &cfg.SweepInterval},
		{overrides.CreatingTTL, "creating_ttl", &cfg.CreatingTTL},
		{overrides.ErrorTTL, "error_ttl", &cfg.ErrorTTL},
		{overrides.StuckThreshold, "stuck_threshold", &cfg.StuckThreshold},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}
