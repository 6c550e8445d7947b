package timer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
	"git.home.luguber.info/inful/laundrycycle/internal/keylock"
	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
	"git.home.luguber.info/inful/laundrycycle/internal/metrics"
)

var (
	// ErrInvalidDuration is returned by Start for non-positive durations.
	ErrInvalidDuration = foundationerrors.TimerError("timer duration must be positive").Build()
	// ErrInvalidKind is returned by Start for an unknown timer kind.
	ErrInvalidKind = foundationerrors.TimerError("unknown timer kind").Build()
	// ErrNoHandler is returned by Restore when SetHandler was never called.
	ErrNoHandler = foundationerrors.InternalError("timer handler not set").Build()
)

type countdown struct {
	rec   Record
	timer clockwork.Timer
}

// Orchestrator arms one in-memory countdown per entity on top of a Store.
type Orchestrator struct {
	store    Store
	clock    clockwork.Clock
	locker   Locker
	logger   *slog.Logger
	recorder metrics.Recorder

	mu      sync.Mutex
	live    map[string]*countdown
	handler Handler
	stopped bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clockwork.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

// WithLocker shares the per-entity lock with the caller.
func WithLocker(l Locker) Option { return func(o *Orchestrator) { o.locker = l } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// NewOrchestrator returns an orchestrator with no countdowns armed. Call
// SetHandler and then Restore before use.
func NewOrchestrator(store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		clock:    clockwork.NewRealClock(),
		locker:   &keylock.Map{},
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		live:     make(map[string]*countdown),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetHandler injects the consumer of fired countdowns.
func (o *Orchestrator) SetHandler(h Handler) {
	o.mu.Lock()
	o.handler = h
	o.mu.Unlock()
}

// Start persists a countdown for entityID and arms it, replacing any previous
// countdown for the same entity. Nothing is armed if the record cannot be written.
func (o *Orchestrator) Start(ctx context.Context, entityID string, kind cycle.TimerKind, d time.Duration) (Handle, error) {
	if d <= 0 {
		return Handle{}, ErrInvalidDuration.WithContext("entity_id", entityID).WithContext("duration", d.String())
	}
	if !kind.Valid() {
		return Handle{}, ErrInvalidKind.WithContext("kind", string(kind))
	}

	now := o.clock.Now()
	rec := Record{
		EntityID:  entityID,
		TimerID:   uuid.NewString(),
		Kind:      kind,
		StartedAt: now,
		ExpiresAt: now.Add(d),
	}
	if err := o.store.Save(ctx, rec); err != nil {
		return Handle{}, foundationerrors.PersistenceError("save timer record").
			WithCause(err).
			WithContext("entity_id", entityID).
			Build()
	}

	o.arm(rec, d)
	o.recorder.IncTimerStarted(string(kind))
	o.logger.Debug("Timer armed",
		logfields.EntityID(entityID),
		logfields.TimerID(rec.TimerID),
		logfields.TimerKind(string(kind)),
		logfields.Remaining(d))

	return Handle(rec), nil
}

func (o *Orchestrator) arm(rec Record, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if old, ok := o.live[rec.EntityID]; ok {
		old.timer.Stop()
	}
	entityID, timerID := rec.EntityID, rec.TimerID
	o.live[entityID] = &countdown{
		rec:   rec,
		timer: o.clock.AfterFunc(d, func() { o.fire(entityID, timerID) }),
	}
	o.recorder.SetActiveTimers(len(o.live))
}

// Cancel disarms and forgets the countdown for entityID. Cancelling an entity
// without a countdown is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, entityID string) error {
	o.mu.Lock()
	cd, ok := o.live[entityID]
	if ok {
		cd.timer.Stop()
		delete(o.live, entityID)
		o.recorder.SetActiveTimers(len(o.live))
	}
	o.mu.Unlock()

	if err := o.store.Delete(ctx, entityID); err != nil {
		return foundationerrors.PersistenceError("delete timer record").
			WithCause(err).
			WithContext("entity_id", entityID).
			Build()
	}
	if ok {
		o.recorder.IncTimerCancelled(string(cd.rec.Kind))
		o.logger.Debug("Timer cancelled", logfields.EntityID(entityID), logfields.TimerID(cd.rec.TimerID))
	}
	return nil
}

// Remaining returns the time left on entityID's countdown.
func (o *Orchestrator) Remaining(entityID string) (time.Duration, bool) {
	rec, ok := o.lookup(entityID)
	if !ok {
		return 0, false
	}
	rem := rec.ExpiresAt.Sub(o.clock.Now())
	if rem <= 0 {
		return 0, false
	}
	return rem, true
}

// Progress returns the elapsed fraction of entityID's countdown in [0,1].
func (o *Orchestrator) Progress(entityID string) (float64, bool) {
	rec, ok := o.lookup(entityID)
	if !ok {
		return 0, false
	}
	total := rec.Duration()
	if total <= 0 {
		return 1, true
	}
	p := float64(o.clock.Now().Sub(rec.StartedAt)) / float64(total)
	switch {
	case p < 0:
		p = 0
	case p > 1:
		p = 1
	}
	return p, true
}

// Active reports whether entityID has an armed countdown.
func (o *Orchestrator) Active(entityID string) bool {
	_, ok := o.lookup(entityID)
	return ok
}

// ActiveIDs returns the set of entities with an armed countdown.
func (o *Orchestrator) ActiveIDs() map[string]struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make(map[string]struct{}, len(o.live))
	for id := range o.live {
		ids[id] = struct{}{}
	}
	return ids
}

// Lookup returns the live record for entityID.
func (o *Orchestrator) Lookup(entityID string) (Record, bool) {
	return o.lookup(entityID)
}

func (o *Orchestrator) lookup(entityID string) (Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cd, ok := o.live[entityID]
	if !ok {
		return Record{}, false
	}
	return cd.rec, true
}

// RestoreReport summarizes a Restore.
type RestoreReport struct {
	Armed    int
	CaughtUp int
	Dropped  int
}

// Restore loads every persisted record. Expired records are delivered right
// away through the fire path with CatchUp set; the rest are armed for their
// remaining time.
func (o *Orchestrator) Restore(ctx context.Context) (RestoreReport, error) {
	var report RestoreReport

	o.mu.Lock()
	h := o.handler
	o.stopped = false
	o.mu.Unlock()
	if h == nil {
		return report, ErrNoHandler
	}

	recs, err := o.store.LoadAll(ctx)
	if err != nil {
		return report, foundationerrors.PersistenceError("load timer records").WithCause(err).Build()
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ExpiresAt.Before(recs[j].ExpiresAt) })

	now := o.clock.Now()
	for _, rec := range recs {
		if !rec.Kind.Valid() || rec.EntityID == "" {
			o.logger.Warn("Dropping malformed timer record",
				logfields.EntityID(rec.EntityID), logfields.TimerKind(string(rec.Kind)))
			if err := o.store.Delete(ctx, rec.EntityID); err != nil {
				return report, foundationerrors.PersistenceError("delete timer record").WithCause(err).Build()
			}
			report.Dropped++
			continue
		}
		if o.Active(rec.EntityID) {
			continue
		}
		if rec.ExpiresAt.After(now) {
			o.arm(rec, rec.ExpiresAt.Sub(now))
			report.Armed++
			continue
		}
		o.catchUp(ctx, rec)
		report.CaughtUp++
	}

	o.logger.Info("Timers restored",
		slog.Int("armed", report.Armed),
		slog.Int("caught_up", report.CaughtUp),
		slog.Int("dropped", report.Dropped))
	return report, nil
}

func (o *Orchestrator) catchUp(ctx context.Context, rec Record) {
	unlock := o.locker.Lock(rec.EntityID)
	defer unlock()
	o.deliver(ctx, rec, true)
}

// fire runs on the clock's goroutine when a countdown elapses.
func (o *Orchestrator) fire(entityID, timerID string) {
	unlock := o.locker.Lock(entityID)
	defer unlock()

	o.mu.Lock()
	cd, ok := o.live[entityID]
	if !ok || cd.rec.TimerID != timerID || o.stopped {
		o.mu.Unlock()
		return
	}
	delete(o.live, entityID)
	o.recorder.SetActiveTimers(len(o.live))
	o.mu.Unlock()

	o.deliver(context.Background(), cd.rec, false)
}

// deliver consumes rec and hands it to the handler. The caller holds the key.
func (o *Orchestrator) deliver(ctx context.Context, rec Record, catchUp bool) {
	if err := o.store.Delete(ctx, rec.EntityID); err != nil {
		o.logger.Warn("Failed to delete fired timer record",
			logfields.EntityID(rec.EntityID), logfields.TimerID(rec.TimerID), logfields.Error(err))
	}

	o.mu.Lock()
	h := o.handler
	o.mu.Unlock()

	o.recorder.IncTimerFired(string(rec.Kind), catchUp)
	o.logger.Info("Timer fired",
		logfields.EntityID(rec.EntityID),
		logfields.TimerID(rec.TimerID),
		logfields.TimerKind(string(rec.Kind)),
		logfields.CatchUp(catchUp))

	if h == nil {
		o.logger.Error("Timer fired with no handler", logfields.EntityID(rec.EntityID))
		return
	}
	ev := Fired{
		EntityID:  rec.EntityID,
		TimerID:   rec.TimerID,
		Kind:      rec.Kind,
		ExpiresAt: rec.ExpiresAt,
		CatchUp:   catchUp,
	}
	if err := h.HandleTimerFired(ctx, ev); err != nil {
		o.logger.Error("Timer handler failed",
			logfields.EntityID(rec.EntityID), logfields.TimerKind(string(rec.Kind)), logfields.Error(err))
	}
}

// Stop disarms every countdown and keeps the records, so the next Restore
// picks them up again.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, cd := range o.live {
		cd.timer.Stop()
		delete(o.live, id)
	}
	o.stopped = true
	o.recorder.SetActiveTimers(0)
}
