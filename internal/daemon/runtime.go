package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/laundrycycle/internal/config"
	"git.home.luguber.info/inful/laundrycycle/internal/coordinator"
	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
	"git.home.luguber.info/inful/laundrycycle/internal/keylock"
	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
	"git.home.luguber.info/inful/laundrycycle/internal/metrics"
	"git.home.luguber.info/inful/laundrycycle/internal/notify"
	"git.home.luguber.info/inful/laundrycycle/internal/retry"
	badgerstore "git.home.luguber.info/inful/laundrycycle/internal/storage/badger"
	"git.home.luguber.info/inful/laundrycycle/internal/storage/sqlite"
	"git.home.luguber.info/inful/laundrycycle/internal/timer"
)

// Runtime is the storage and coordination stack without scheduling or HTTP.
// CLI commands open one, act and close it; the daemon keeps one for its
// lifetime.
type Runtime struct {
	DB          *sqlite.Store
	Badger      *badgerstore.TimerStore
	Timers      *timer.Orchestrator
	Coordinator *coordinator.Coordinator
	Dispatcher  *notify.Dispatcher
	// Defaults fill durations a registration leaves unset.
	Defaults config.CycleDefaults

	nats   *notify.NATSSink
	logger *slog.Logger
}

// RuntimeOptions carries the shared collaborators of a Runtime.
type RuntimeOptions struct {
	Clock    clockwork.Clock
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// OpenRuntime opens the stores, restores persisted timers (catching up the
// ones that expired while nothing was running), repairs stranded entities and
// registers configured categories that do not exist yet.
func OpenRuntime(ctx context.Context, cfg *config.Config, opts RuntimeOptions) (*Runtime, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	r := &Runtime{Defaults: cfg.Defaults, logger: opts.Logger}

	if err := ensureParentDir(cfg.Storage.Path); err != nil {
		return nil, err
	}
	db, err := sqlite.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, foundationerrors.PersistenceError("open database").
			WithCause(err).
			WithContext("path", cfg.Storage.Path).
			Build()
	}
	r.DB = db

	var store timer.Store = db.Timers()
	if cfg.Storage.TimerBackend == config.TimerBackendBadger {
		bcfg := badgerstore.DefaultConfig(cfg.Storage.BadgerDir)
		bcfg.Logger = opts.Logger
		bs, err := badgerstore.Open(bcfg)
		if err != nil {
			_ = r.Close(ctx)
			return nil, foundationerrors.PersistenceError("open timer store").
				WithCause(err).
				WithContext("path", cfg.Storage.BadgerDir).
				Build()
		}
		r.Badger = bs
		store = bs
	}

	sinks := notify.MultiSink{notify.LogSink{Logger: opts.Logger}}
	if cfg.Notify.NATSURL != "" {
		ns, err := notify.NewNATSSink(cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			// Notifications are best effort; run without the broker.
			opts.Logger.Warn("NATS sink unavailable", logfields.Sink("nats"), logfields.Error(err))
		} else {
			r.nats = ns
			sinks = append(sinks, ns)
		}
	}
	r.Dispatcher = notify.NewDispatcher(sinks,
		notify.WithQueueSize(cfg.Notify.QueueSize),
		notify.WithWorkers(cfg.Notify.Workers),
		notify.WithPolicy(retry.FromConfig(cfg.Notify.Retry)),
		notify.WithClock(opts.Clock),
		notify.WithRecorder(opts.Recorder),
		notify.WithLogger(opts.Logger),
	)

	locks := &keylock.Map{}
	r.Timers = timer.NewOrchestrator(store,
		timer.WithClock(opts.Clock),
		timer.WithLocker(locks),
		timer.WithLogger(opts.Logger),
		timer.WithRecorder(opts.Recorder),
	)
	r.Coordinator = coordinator.New(db, r.Timers, locks,
		coordinator.WithClock(opts.Clock),
		coordinator.WithNotifier(r.Dispatcher),
		coordinator.WithRecorder(opts.Recorder),
		coordinator.WithLogger(opts.Logger),
		coordinator.WithConcurrency(cfg.Maintenance.Concurrency),
	)
	if err := r.Coordinator.Start(ctx); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}

	for _, c := range cfg.Categories {
		id, created, err := r.Coordinator.EnsureRegistered(ctx, c.CycleConfig(cfg.Defaults))
		if err != nil {
			_ = r.Close(ctx)
			return nil, fmt.Errorf("register category %q: %w", c.Name, err)
		}
		if created {
			opts.Logger.Info("Registered configured category", logfields.EntityID(id), logfields.EntityName(c.Name))
		}
	}
	return r, nil
}

// Close disarms countdowns (their records stay for the next Restore), drains
// pending notifications and closes the stores.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Timers != nil {
		r.Timers.Stop()
	}
	if r.Dispatcher != nil {
		if err := r.Dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	if r.nats != nil {
		if err := r.nats.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Badger != nil {
		if err := r.Badger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close timer store: %w", err))
		}
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func ensureParentDir(dbPath string) error {
	if strings.Contains(dbPath, ":memory:") {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return foundationerrors.PersistenceError("create data directory").
			WithCause(err).
			WithContext("path", dir).
			Build()
	}
	return nil
}
