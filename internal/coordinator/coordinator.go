package coordinator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
	"git.home.luguber.info/inful/laundrycycle/internal/keylock"
	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
	"git.home.luguber.info/inful/laundrycycle/internal/metrics"
	"git.home.luguber.info/inful/laundrycycle/internal/notify"
	"git.home.luguber.info/inful/laundrycycle/internal/recovery"
	"git.home.luguber.info/inful/laundrycycle/internal/timer"
)

// ErrEntityNotFound is returned for an unknown entity id.
var ErrEntityNotFound = foundationerrors.NotFoundError("entity not found").Build()

// Coordinator serializes and applies every stage change.
type Coordinator struct {
	repo        Repository
	timers      *timer.Orchestrator
	locks       *keylock.Map
	clock       clockwork.Clock
	notifier    notify.Sink
	recorder    metrics.Recorder
	logger      *slog.Logger
	concurrency int
	reconciler  *recovery.Reconciler

	mu       sync.RWMutex
	entities map[string]cycle.Entity

	// regMu serializes registrations so the name check holds.
	regMu sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock. It must be the orchestrator's clock.
func WithClock(c clockwork.Clock) Option { return func(co *Coordinator) { co.clock = c } }

func WithNotifier(s notify.Sink) Option { return func(co *Coordinator) { co.notifier = s } }

func WithRecorder(r metrics.Recorder) Option { return func(co *Coordinator) { co.recorder = r } }

func WithLogger(l *slog.Logger) Option { return func(co *Coordinator) { co.logger = l } }

// WithConcurrency bounds the per-entity fan-out of a maintenance tick.
func WithConcurrency(n int) Option {
	return func(co *Coordinator) {
		if n > 0 {
			co.concurrency = n
		}
	}
}

// New builds a Coordinator and installs it as the orchestrator's handler.
// locks must be the same map the orchestrator was built with.
func New(repo Repository, timers *timer.Orchestrator, locks *keylock.Map, opts ...Option) *Coordinator {
	c := &Coordinator{
		repo:        repo,
		timers:      timers,
		locks:       locks,
		clock:       clockwork.NewRealClock(),
		notifier:    notify.MultiSink{},
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
		concurrency: 4,
		entities:    make(map[string]cycle.Entity),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reconciler = recovery.NewReconciler(recoveryApplier{c}, c.logger)
	timers.SetHandler(c)
	return c
}

// Start loads all entities, restores persisted timers (catching up the expired
// ones) and repairs entities stranded in a timer stage.
func (c *Coordinator) Start(ctx context.Context) error {
	entities, err := c.repo.LoadEntities(ctx)
	if err != nil {
		return foundationerrors.PersistenceError("load entities").WithCause(err).Build()
	}
	c.mu.Lock()
	c.entities = make(map[string]cycle.Entity, len(entities))
	for _, e := range entities {
		c.entities[e.ID] = e
	}
	c.mu.Unlock()

	report, err := c.timers.Restore(ctx)
	if err != nil {
		return err
	}

	repaired, err := c.reconciler.Reconcile(ctx, c.list(), c.timers.ActiveIDs())
	if err != nil {
		c.logger.Warn("Startup recovery incomplete", logfields.Error(err))
	}

	c.logger.Info("Coordinator started",
		logfields.Count(len(entities)),
		slog.Int("timers_armed", report.Armed),
		slog.Int("timers_caught_up", report.CaughtUp),
		slog.Int("recovered", len(repaired)))
	return nil
}

// Register creates a clean entity and returns its id. Names are unique,
// compared case-insensitively.
func (c *Coordinator) Register(ctx context.Context, cfg cycle.Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	c.regMu.Lock()
	defer c.regMu.Unlock()

	if existing, ok := c.byName(cfg.Name); ok {
		return "", foundationerrors.AlreadyExistsError("entity name already registered").
			WithContext("name", cfg.Name).
			WithContext("entity_id", existing.ID).
			Build()
	}

	e := cycle.NewEntity(uuid.NewString(), cfg, c.clock.Now())
	if err := c.repo.SaveEntity(ctx, e); err != nil {
		return "", persistenceError("save entity", e.ID, err)
	}
	c.put(e)

	c.logger.Info("Entity registered",
		logfields.EntityID(e.ID),
		logfields.EntityName(e.Name),
		slog.Duration("wash_interval", e.WashInterval))
	return e.ID, nil
}

// EnsureRegistered registers cfg unless an entity with the same name exists.
func (c *Coordinator) EnsureRegistered(ctx context.Context, cfg cycle.Config) (string, bool, error) {
	if e, ok := c.byName(cfg.Name); ok {
		return e.ID, false, nil
	}
	id, err := c.Register(ctx, cfg)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Resolve maps an entity id or name to an id.
func (c *Coordinator) Resolve(ref string) (string, error) {
	c.mu.RLock()
	_, ok := c.entities[ref]
	c.mu.RUnlock()
	if ok {
		return ref, nil
	}
	if e, ok := c.byName(ref); ok {
		return e.ID, nil
	}
	return "", ErrEntityNotFound.WithContext("entity", ref)
}

// History returns the transition log of an entity, oldest first.
func (c *Coordinator) History(ctx context.Context, id string) ([]cycle.LogEntry, error) {
	if _, ok := c.entity(id); !ok {
		return nil, ErrEntityNotFound.WithContext("entity_id", id)
	}
	entries, err := c.repo.History(ctx, id)
	if err != nil {
		return nil, persistenceError("load history", id, err)
	}
	return entries, nil
}

// applyLocked runs one transition stamped at. The caller holds id's key lock.
// On error nothing is applied and e is returned unchanged.
func (c *Coordinator) applyLocked(ctx context.Context, e cycle.Entity, to cycle.Stage, cause cycle.Cause, at time.Time) (cycle.Entity, error) {
	out, err := cycle.Apply(e, to, cause, at)
	if err != nil {
		c.recorder.IncTransitionRejected("invalid_edge")
		c.logger.Debug("Transition rejected",
			logfields.EntityID(e.ID),
			logfields.FromStage(string(e.Stage)),
			logfields.ToStage(string(to)),
			logfields.Cause(string(cause)))
		return e, err
	}

	started := false
	if out.Timer != nil {
		if _, err := c.timers.Start(ctx, e.ID, out.Timer.Kind, out.Timer.Duration); err != nil {
			c.recorder.IncTransitionRejected("timer")
			return e, err
		}
		started = true
	}

	if err := c.repo.CommitTransition(ctx, out.Entity, out.Entry); err != nil {
		if started {
			if cerr := c.timers.Cancel(ctx, e.ID); cerr != nil {
				c.logger.Error("Failed to cancel timer after aborted transition",
					logfields.EntityID(e.ID), logfields.Error(cerr))
			}
		}
		c.recorder.IncTransitionRejected("persistence")
		return e, persistenceError("commit transition", e.ID, err)
	}

	if out.LeftTimerStage() {
		if err := c.timers.Cancel(ctx, e.ID); err != nil {
			// A leftover record fires stale after a restart and is dropped then.
			c.logger.Warn("Failed to retire timer", logfields.EntityID(e.ID), logfields.Error(err))
		}
	}

	c.put(out.Entity)
	c.recorder.IncTransition(string(out.Entry.From), string(out.Entry.To), string(cause))
	c.logger.Info("Stage changed",
		logfields.EntityID(e.ID),
		logfields.EntityName(e.Name),
		logfields.FromStage(string(out.Entry.From)),
		logfields.ToStage(string(out.Entry.To)),
		logfields.Cause(string(cause)))

	if err := c.notifier.Notify(ctx, notify.FromEntry(out.Entity, out.Entry)); err != nil {
		c.logger.Debug("Notification not queued", logfields.EntityID(e.ID), logfields.Error(err))
	}
	return out.Entity, nil
}

func persistenceError(op, id string, err error) error {
	if foundationerrors.IsClassified(err) {
		return err
	}
	return foundationerrors.PersistenceError(op).
		WithCause(err).
		WithContext("entity_id", id).
		Build()
}

func (c *Coordinator) entity(id string) (cycle.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[id]
	return e, ok
}

func (c *Coordinator) put(e cycle.Entity) {
	c.mu.Lock()
	c.entities[e.ID] = e
	c.mu.Unlock()
}

func (c *Coordinator) byName(name string) (cycle.Entity, bool) {
	key := strings.TrimSpace(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entities {
		if strings.EqualFold(e.Name, key) {
			return e, true
		}
	}
	return cycle.Entity{}, false
}

// list returns the cached entities ordered by creation time.
func (c *Coordinator) list() []cycle.Entity {
	c.mu.RLock()
	out := make([]cycle.Entity, 0, len(c.entities))
	for _, e := range c.entities {
		out = append(out, e)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
