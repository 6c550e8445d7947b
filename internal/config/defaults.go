package config

import (
	"path/filepath"
	"time"
)

// DefaultBadgerGCInterval is how often the Badger value log is collected when
// no interval is configured.
const DefaultBadgerGCInterval = 10 * time.Minute

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// StorageDefaultApplier handles storage defaults.
type StorageDefaultApplier struct{}

func (StorageDefaultApplier) Domain() string { return "storage" }

func (StorageDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./laundrycycle.db"
	}
	backend, err := timerBackends.Parse(string(cfg.Storage.TimerBackend))
	if err != nil {
		return err
	}
	cfg.Storage.TimerBackend = backend
	if backend == TimerBackendBadger {
		if cfg.Storage.BadgerDir == "" {
			cfg.Storage.BadgerDir = filepath.Join(filepath.Dir(cfg.Storage.Path), "timers")
		}
		if cfg.Storage.BadgerGC == 0 {
			cfg.Storage.BadgerGC = DefaultBadgerGCInterval
		}
	}
	return nil
}

// MaintenanceDefaultApplier handles the maintenance tick defaults.
type MaintenanceDefaultApplier struct{}

func (MaintenanceDefaultApplier) Domain() string { return "maintenance" }

func (MaintenanceDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Maintenance.Interval == 0 {
		cfg.Maintenance.Interval = 30 * time.Second
	}
	if cfg.Maintenance.Concurrency == 0 {
		cfg.Maintenance.Concurrency = 4
	}
	return nil
}

// HTTPDefaultApplier handles API server defaults.
type HTTPDefaultApplier struct{}

func (HTTPDefaultApplier) Domain() string { return "http" }

func (HTTPDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

// NotifyDefaultApplier handles notification defaults.
type NotifyDefaultApplier struct{}

func (NotifyDefaultApplier) Domain() string { return "notify" }

func (NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	n := &cfg.Notify
	if n.Subject == "" {
		n.Subject = "laundry.stage"
	}
	if n.QueueSize == 0 {
		n.QueueSize = 256
	}
	if n.Workers == 0 {
		n.Workers = 1
	}
	mode, err := retryBackoffs.Parse(string(n.Retry.Backoff))
	if err != nil {
		return err
	}
	n.Retry.Backoff = mode
	if n.Retry.Initial == 0 {
		n.Retry.Initial = time.Second
	}
	if n.Retry.Max == 0 {
		n.Retry.Max = 30 * time.Second
	}
	if n.Retry.MaxRetries == 0 {
		n.Retry.MaxRetries = 3
	}
	return nil
}

// LoggingDefaultApplier handles logging defaults.
type LoggingDefaultApplier struct{}

func (LoggingDefaultApplier) Domain() string { return "logging" }

func (LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	level, err := logLevels.Parse(string(cfg.Logging.Level))
	if err != nil {
		return err
	}
	format, err := logFormats.Parse(string(cfg.Logging.Format))
	if err != nil {
		return err
	}
	cfg.Logging.Level = level
	cfg.Logging.Format = format
	return nil
}

// MetricsDefaultApplier handles metrics defaults.
type MetricsDefaultApplier struct{}

func (MetricsDefaultApplier) Domain() string { return "metrics" }

func (MetricsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	return nil
}

// CycleDefaultApplier fills in per-entity duration defaults.
type CycleDefaultApplier struct{}

func (CycleDefaultApplier) Domain() string { return "defaults" }

func (CycleDefaultApplier) ApplyDefaults(cfg *Config) error {
	d := &cfg.Defaults
	if d.WashInterval == 0 {
		d.WashInterval = 7 * 24 * time.Hour
	}
	if d.WashDuration == 0 {
		d.WashDuration = 60 * time.Minute
	}
	if d.DryDuration == 0 {
		d.DryDuration = 45 * time.Minute
	}
	return nil
}

// defaultAppliers run in order; later domains may rely on earlier ones.
var defaultAppliers = []DefaultApplier{
	StorageDefaultApplier{},
	MaintenanceDefaultApplier{},
	HTTPDefaultApplier{},
	NotifyDefaultApplier{},
	LoggingDefaultApplier{},
	MetricsDefaultApplier{},
	CycleDefaultApplier{},
}

// ApplyDefaults runs every domain applier.
func ApplyDefaults(cfg *Config) error {
	for _, a := range defaultAppliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}
