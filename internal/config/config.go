// Package config loads and validates the laundrycycle YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
)

// CurrentVersion is the only configuration format version accepted by Load.
const CurrentVersion = "1"

// Config is the complete daemon and CLI configuration.
type Config struct {
	Version     string            `yaml:"version"`
	Storage     StorageConfig     `yaml:"storage"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	HTTP        HTTPConfig        `yaml:"http"`
	Notify      NotifyConfig      `yaml:"notify"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Defaults    CycleDefaults     `yaml:"defaults"`
	// Categories are registered on start when no entity with the same name exists.
	Categories []CategoryConfig `yaml:"categories,omitempty" validate:"dive"`
}

// StorageConfig selects where entities and timer records live.
type StorageConfig struct {
	Path         string        `yaml:"path" validate:"required"`
	TimerBackend TimerBackend  `yaml:"timer_backend"`
	BadgerDir    string        `yaml:"badger_dir,omitempty"`
	BadgerGC     time.Duration `yaml:"badger_gc_interval,omitempty"`
}

// MaintenanceConfig controls the periodic sweep and recovery tick.
type MaintenanceConfig struct {
	Interval    time.Duration `yaml:"interval" validate:"gte=1s"`
	Concurrency int           `yaml:"concurrency" validate:"gte=1,lte=64"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr" validate:"required_if=Enabled true"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NotifyConfig configures outbound stage notifications.
type NotifyConfig struct {
	// NATSURL enables the NATS sink when set.
	NATSURL   string      `yaml:"nats_url,omitempty" validate:"omitempty,url"`
	Subject   string      `yaml:"subject"`
	QueueSize int         `yaml:"queue_size" validate:"gte=1"`
	Workers   int         `yaml:"workers" validate:"gte=1,lte=16"`
	Retry     RetryConfig `yaml:"retry"`
}

// RetryConfig is the retry policy for notification delivery.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries" validate:"gte=0,lte=10"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig toggles the Prometheus recorder and endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CycleDefaults fill in durations a category leaves out.
type CycleDefaults struct {
	WashInterval time.Duration `yaml:"wash_interval" validate:"gte=1s"`
	WashDuration time.Duration `yaml:"wash_duration" validate:"gte=1s"`
	DryDuration  time.Duration `yaml:"dry_duration" validate:"gte=1s"`
}

// CategoryConfig seeds one entity.
type CategoryConfig struct {
	Name         string        `yaml:"name" validate:"required,max=64"`
	WashInterval time.Duration `yaml:"wash_interval,omitempty"`
	WashDuration time.Duration `yaml:"wash_duration,omitempty"`
	DryDuration  time.Duration `yaml:"dry_duration,omitempty"`
}

// CycleConfig resolves a category against the defaults.
func (c CategoryConfig) CycleConfig(d CycleDefaults) cycle.Config {
	out := cycle.Config{
		Name:         c.Name,
		WashInterval: c.WashInterval,
		WashDuration: c.WashDuration,
		DryDuration:  c.DryDuration,
	}
	if out.WashInterval == 0 {
		out.WashInterval = d.WashInterval
	}
	if out.WashDuration == 0 {
		out.WashDuration = d.WashDuration
	}
	if out.DryDuration == 0 {
		out.DryDuration = d.DryDuration
	}
	return out
}

// Load reads, expands, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, foundationerrors.ConfigError("configuration file not found").
				WithCause(err).
				WithContext("path", configPath).
				Build()
		}
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// Parse decodes YAML content with ${ENV} expansion, then applies defaults and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to unmarshal config").Build()
	}
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if cfg.Version != CurrentVersion {
		return nil, foundationerrors.ConfigError(fmt.Sprintf("unsupported configuration version: %s (expected %s)", cfg.Version, CurrentVersion)).Build()
	}
	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully defaulted configuration with no file behind it.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	_ = ApplyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return foundationerrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Default()
	example.HTTP.Enabled = true
	example.Notify.Subject = "laundry.stage"
	example.Categories = []CategoryConfig{
		{Name: "Towels", WashInterval: 7 * 24 * time.Hour},
		{Name: "Bed sheets", WashInterval: 14 * 24 * time.Hour, DryDuration: 90 * time.Minute},
		{Name: "Gym clothes", WashInterval: 3 * 24 * time.Hour, WashDuration: 40 * time.Minute},
	}

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
