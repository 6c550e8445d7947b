package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/laundrycycle/internal/config"
	"git.home.luguber.info/inful/laundrycycle/internal/coordinator"
	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
	"git.home.luguber.info/inful/laundrycycle/internal/metrics"
	"git.home.luguber.info/inful/laundrycycle/internal/server/httpserver"
)

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

const (
	jobMaintenance = "maintenance-tick"
	jobBadgerGC    = "badger-gc"
)

// Daemon represents the main daemon service
type Daemon struct {
	configPath string
	clock      clockwork.Clock
	logger     *slog.Logger
	level      *slog.LevelVar

	mu        sync.RWMutex
	config    *config.Config
	stopChan  chan struct{}
	startTime time.Time
	status    atomic.Value // Status

	runtime       *Runtime
	registry      *prometheus.Registry
	recorder      metrics.Recorder
	scheduler     *Scheduler
	tickJobID     string
	httpServer    *httpserver.Server
	configWatcher *ConfigWatcher

	tickMu       sync.Mutex
	lastTick     time.Time
	lastTickErr  error
	lastTickDone coordinator.TickReport
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithClock drives timers and the scheduler from c.
func WithClock(c clockwork.Clock) Option { return func(d *Daemon) { d.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(d *Daemon) { d.logger = l } }

// WithLevelVar lets config reloads change the log level of the handler built
// around lv.
func WithLevelVar(lv *slog.LevelVar) Option { return func(d *Daemon) { d.level = lv } }

// New creates a daemon for cfg. configPath enables the config watcher when set.
func New(cfg *config.Config, configPath string, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, foundationerrors.ConfigError("configuration is required").Build()
	}
	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		clock:      clockwork.NewRealClock(),
		logger:     slog.Default(),
		level:      new(slog.LevelVar),
		recorder:   metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.status.Store(StatusStopped)
	return d, nil
}

// Start brings up storage, timers, the scheduler, the HTTP API and the config
// watcher. A failed Start leaves nothing running.
func (d *Daemon) Start(ctx context.Context) error {
	if d.GetStatus() != StatusStopped {
		return foundationerrors.DaemonError("daemon already started").Build()
	}
	d.status.Store(StatusStarting)
	cfg := d.GetConfig()

	d.mu.Lock()
	d.stopChan = make(chan struct{})
	d.startTime = d.clock.Now()
	d.mu.Unlock()

	if err := d.start(ctx, cfg); err != nil {
		d.status.Store(StatusError)
		_ = d.teardown(context.WithoutCancel(ctx))
		d.status.Store(StatusStopped)
		return err
	}

	d.status.Store(StatusRunning)
	d.logger.Info("Daemon started",
		slog.String("storage", cfg.Storage.Path),
		slog.String("timer_backend", string(cfg.Storage.TimerBackend)),
		slog.Duration("maintenance_interval", cfg.Maintenance.Interval))
	return nil
}

func (d *Daemon) start(ctx context.Context, cfg *config.Config) error {
	if cfg.Metrics.Enabled {
		d.registry = metrics.NewRegistry()
		d.recorder = metrics.NewPrometheusRecorder(d.registry)
	}

	rt, err := OpenRuntime(ctx, cfg, RuntimeOptions{Clock: d.clock, Logger: d.logger, Recorder: d.recorder})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.runtime = rt
	d.mu.Unlock()

	sched, err := NewScheduler(d.clock, d.logger)
	if err != nil {
		return foundationerrors.DaemonError("create scheduler").WithCause(err).Build()
	}
	d.scheduler = sched
	id, err := sched.ScheduleEvery(jobMaintenance, cfg.Maintenance.Interval, d.runTick)
	if err != nil {
		return foundationerrors.DaemonError("schedule maintenance").WithCause(err).Build()
	}
	d.tickJobID = id
	if rt.Badger != nil {
		gcEvery := cfg.Storage.BadgerGC
		if gcEvery <= 0 {
			gcEvery = config.DefaultBadgerGCInterval
		}
		if _, err := sched.ScheduleEvery(jobBadgerGC, gcEvery, d.runBadgerGC); err != nil {
			return foundationerrors.DaemonError("schedule badger gc").WithCause(err).Build()
		}
	}
	sched.Start()

	if cfg.HTTP.Enabled {
		opts := httpserver.Options{
			Addr:         cfg.HTTP.Addr,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			Health:       d,
			Defaults:     cfg.Defaults,
			Logger:       d.logger,
			MetricsPath:  cfg.Metrics.Path,
		}
		if d.registry != nil {
			opts.Metrics = metrics.HTTPHandler(d.registry)
		}
		srv := httpserver.New(rt.Coordinator, opts)
		if err := srv.Start(ctx); err != nil {
			return foundationerrors.DaemonError("start http server").WithCause(err).Build()
		}
		d.mu.Lock()
		d.httpServer = srv
		d.mu.Unlock()
	}

	if d.configPath != "" {
		cw, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			return foundationerrors.DaemonError("create config watcher").WithCause(err).Build()
		}
		if err := cw.Start(ctx); err != nil {
			_ = cw.Stop(ctx)
			return foundationerrors.DaemonError("start config watcher").WithCause(err).Build()
		}
		d.configWatcher = cw
	}
	return nil
}

// Run starts the daemon and blocks until ctx is done, then stops it within
// the configured shutdown timeout.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.logger.Info("Shutdown requested")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.GetConfig().HTTP.ShutdownTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

// Stop shuts everything down in reverse start order. Timer records are kept so
// the next start restores them.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.GetStatus() != StatusRunning {
		return nil
	}
	d.status.Store(StatusStopping)
	err := d.teardown(ctx)
	d.status.Store(StatusStopped)
	if err != nil {
		d.logger.Error("Daemon stopped with errors", logfields.Error(err))
		return err
	}
	d.logger.Info("Daemon stopped")
	return nil
}

func (d *Daemon) teardown(ctx context.Context) error {
	var errs []error

	d.mu.Lock()
	if d.stopChan != nil {
		close(d.stopChan)
		d.stopChan = nil
	}
	d.mu.Unlock()

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		d.configWatcher = nil
	}
	d.mu.Lock()
	srv := d.httpServer
	d.httpServer = nil
	d.mu.Unlock()
	if srv != nil {
		if err := srv.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
		d.scheduler = nil
	}
	d.mu.Lock()
	rt := d.runtime
	d.runtime = nil
	d.mu.Unlock()
	if rt != nil {
		if err := rt.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runTick is the scheduled maintenance job.
func (d *Daemon) runTick() {
	rt := d.Runtime()
	if rt == nil {
		return
	}
	ctx, cancel := d.stopAwareContext(context.Background())
	defer cancel()

	report, err := rt.Coordinator.RunMaintenanceTick(ctx)
	d.tickMu.Lock()
	d.lastTick = d.clock.Now()
	d.lastTickErr = err
	d.lastTickDone = report
	d.tickMu.Unlock()
	if err != nil {
		d.logger.Warn("Maintenance tick finished with errors", logfields.Error(err))
	}
}

func (d *Daemon) runBadgerGC() {
	rt := d.Runtime()
	if rt == nil || rt.Badger == nil {
		return
	}
	if err := rt.Badger.RunGC(); err != nil {
		d.logger.Warn("Badger value log GC failed", logfields.Error(err))
	}
}

// ReloadConfig applies the parts of cfg that can change at runtime: the log
// level and the maintenance interval. Other changes are logged and take
// effect on restart.
func (d *Daemon) ReloadConfig(_ context.Context, cfg *config.Config) error {
	old := d.GetConfig()

	d.level.Set(cfg.Logging.Level.SlogLevel())

	if cfg.Maintenance.Interval != old.Maintenance.Interval && d.scheduler != nil && d.tickJobID != "" {
		if err := d.scheduler.Reschedule(d.tickJobID, jobMaintenance, cfg.Maintenance.Interval, d.runTick); err != nil {
			return err
		}
	}

	if cfg.Storage != old.Storage || cfg.HTTP != old.HTTP || cfg.Notify.NATSURL != old.Notify.NATSURL {
		d.logger.Warn("Storage, HTTP or NATS changes require a restart to take effect")
	}

	d.mu.Lock()
	d.config = cfg
	d.mu.Unlock()
	return nil
}

// GetConfig returns the active configuration.
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// GetStatus returns the lifecycle state.
func (d *Daemon) GetStatus() Status {
	return d.status.Load().(Status)
}

// Runtime returns the running stack, or nil when stopped.
func (d *Daemon) Runtime() *Runtime {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.runtime
}

// HTTPAddr returns the API listen address, or "" when the API is off.
func (d *Daemon) HTTPAddr() string {
	d.mu.RLock()
	srv := d.httpServer
	d.mu.RUnlock()
	if srv == nil {
		return ""
	}
	return srv.Addr()
}

// Level returns the level variable reloads write to.
func (d *Daemon) Level() *slog.LevelVar { return d.level }

func (d *Daemon) stopChannel() chan struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stopChan
}

// LastTick returns when the last maintenance tick finished, its report and
// its error. The time is zero before the first tick.
func (d *Daemon) LastTick() (time.Time, coordinator.TickReport, error) {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()
	return d.lastTick, d.lastTickDone, d.lastTickErr
}
