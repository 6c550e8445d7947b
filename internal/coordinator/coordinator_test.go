package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
	"git.home.luguber.info/inful/laundrycycle/internal/keylock"
	"git.home.luguber.info/inful/laundrycycle/internal/notify"
	"git.home.luguber.info/inful/laundrycycle/internal/timer"
)

type memRepo struct {
	mu         sync.Mutex
	entities   map[string]cycle.Entity
	log        []cycle.LogEntry
	failCommit error
}

func newMemRepo() *memRepo {
	return &memRepo{entities: make(map[string]cycle.Entity)}
}

func (r *memRepo) LoadEntities(context.Context) ([]cycle.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cycle.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) SaveEntity(_ context.Context, e cycle.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.ID] = e
	return nil
}

func (r *memRepo) CommitTransition(_ context.Context, e cycle.Entity, entry cycle.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCommit != nil {
		return r.failCommit
	}
	r.entities[e.ID] = e
	r.log = append(r.log, entry)
	return nil
}

func (r *memRepo) History(_ context.Context, id string) ([]cycle.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []cycle.LogEntry
	for _, entry := range r.log {
		if entry.EntityID == id {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *memRepo) setFailCommit(err error) {
	r.mu.Lock()
	r.failCommit = err
	r.mu.Unlock()
}

type captureSink struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (s *captureSink) Notify(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return nil
}

func (s *captureSink) stages() []cycle.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cycle.Stage, 0, len(s.got))
	for _, n := range s.got {
		out = append(out, n.To)
	}
	return out
}

type harness struct {
	clock *clockwork.FakeClock
	repo  Repository
	store timer.Store
	orch  *timer.Orchestrator
	coord *Coordinator
	sink  *captureSink
}

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	return startHarness(t, clockwork.NewFakeClockAt(epoch), newMemRepo(), timer.NewMemoryStore())
}

func startHarness(t *testing.T, clock *clockwork.FakeClock, repo Repository, store timer.Store) *harness {
	t.Helper()
	locks := &keylock.Map{}
	orch := timer.NewOrchestrator(store, timer.WithClock(clock), timer.WithLocker(locks))
	sink := &captureSink{}
	coord := New(repo, orch, locks, WithClock(clock), WithNotifier(sink))
	require.NoError(t, coord.Start(t.Context()))
	t.Cleanup(orch.Stop)
	return &harness{clock: clock, repo: repo, store: store, orch: orch, coord: coord, sink: sink}
}

func (h *harness) register(t *testing.T, name string, interval, wash, dry time.Duration) string {
	t.Helper()
	id, err := h.coord.Register(t.Context(), cycle.Config{
		Name:         name,
		WashInterval: interval,
		WashDuration: wash,
		DryDuration:  dry,
	})
	require.NoError(t, err)
	return id
}

func (h *harness) stage(t *testing.T, id string) cycle.Stage {
	t.Helper()
	s, err := h.coord.Snapshot(id)
	require.NoError(t, err)
	return s.Stage
}

func (h *harness) waitStage(t *testing.T, id string, want cycle.Stage) {
	t.Helper()
	require.Eventually(t, func() bool { return h.stage(t, id) == want }, 2*time.Second, 5*time.Millisecond)
}

func historyCauses(t *testing.T, c *Coordinator, id string) []cycle.Cause {
	t.Helper()
	entries, err := c.History(t.Context(), id)
	require.NoError(t, err)
	out := make([]cycle.Cause, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Cause)
	}
	return out
}

func TestSweepThenWashTimerCompletes(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Towels", 300*time.Second, 15*time.Second, time.Minute)
	require.Equal(t, cycle.StageClean, h.stage(t, id))

	h.clock.Advance(299 * time.Second)
	report, err := h.coord.RunMaintenanceTick(t.Context())
	require.NoError(t, err)
	require.Empty(t, report.Promoted)

	h.clock.Advance(time.Second)
	report, err = h.coord.RunMaintenanceTick(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{id}, report.Promoted)
	require.Equal(t, cycle.StageDirty, h.stage(t, id))

	snap, err := h.coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.NoError(t, err)
	require.Equal(t, cycle.StageWashing, snap.Stage)
	require.NotNil(t, snap.RemainingTimerSeconds)
	require.Equal(t, int64(15), *snap.RemainingTimerSeconds)
	require.NotNil(t, snap.TimerProgress)
	require.InDelta(t, 0.0, *snap.TimerProgress, 1e-9)

	h.clock.Advance(15 * time.Second)
	h.waitStage(t, id, cycle.StageWetWaitingForDryer)

	require.False(t, h.orch.Active(id))
	require.Equal(t,
		[]cycle.Cause{cycle.CauseDirtinessSweep, cycle.CauseUserAction, cycle.CauseTimerCompletion},
		historyCauses(t, h.coord, id))
	require.Equal(t,
		[]cycle.Stage{cycle.StageDirty, cycle.StageWashing, cycle.StageWetWaitingForDryer},
		h.sink.stages())
}

func TestCancelRightAfterWashing(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Sheets", time.Hour, 10*time.Minute, 10*time.Minute)

	_, err := h.coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.NoError(t, err)

	snap, err := h.coord.CancelActiveTimer(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, cycle.StageWetWaitingForDryer, snap.Stage)
	require.Nil(t, snap.RemainingTimerSeconds)

	mem := h.store.(*timer.MemoryStore)
	_, ok := mem.Get(id)
	require.False(t, ok)
	require.False(t, h.orch.Active(id))

	// Nothing left to fire.
	h.clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, cycle.StageWetWaitingForDryer, h.stage(t, id))
	require.Len(t, historyCauses(t, h.coord, id), 2)
}

func TestCancelActiveTimerIsIdempotent(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Socks", time.Hour, time.Minute, time.Minute)
	_, err := h.coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.NoError(t, err)

	first, err := h.coord.CancelActiveTimer(t.Context(), id)
	require.NoError(t, err)
	second, err := h.coord.CancelActiveTimer(t.Context(), id)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, historyCauses(t, h.coord, id), 2)
}

func TestExpiredDryingTimerCaughtUpOnRestart(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	repo := newMemRepo()
	store := timer.NewMemoryStore()

	e := cycle.NewEntity("e-dry", cycle.Config{
		Name: "Jeans", WashInterval: 24 * time.Hour, WashDuration: time.Hour, DryDuration: time.Hour,
	}, epoch.Add(-3*time.Hour))
	e.Stage = cycle.StageDrying
	require.NoError(t, repo.SaveEntity(t.Context(), e))
	require.NoError(t, store.Save(t.Context(), timer.Record{
		EntityID:  e.ID,
		TimerID:   "t-1",
		Kind:      cycle.TimerDry,
		StartedAt: epoch.Add(-2 * time.Hour),
		ExpiresAt: epoch.Add(-time.Hour),
	}))

	h := startHarness(t, clock, repo, store)

	require.Equal(t, cycle.StageReadyToFold, h.stage(t, e.ID))
	_, ok := store.Get(e.ID)
	require.False(t, ok)
	require.Equal(t, []cycle.Cause{cycle.CauseTimerCompletion}, historyCauses(t, h.coord, e.ID))

	// Stamped when the drying finished, not when the daemon came back.
	entries, err := h.coord.History(t.Context(), e.ID)
	require.NoError(t, err)
	require.Equal(t, epoch.Add(-time.Hour), entries[len(entries)-1].At)
	snap, err := h.coord.Snapshot(e.ID)
	require.NoError(t, err)
	require.Equal(t, epoch.Add(-time.Hour), snap.LastStageChangeAt)
}

func TestPendingTimerSurvivesRestart(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	repo := newMemRepo()
	store := timer.NewMemoryStore()

	first := startHarness(t, clock, repo, store)
	id := first.register(t, "Towels", time.Hour, 30*time.Minute, time.Hour)
	_, err := first.coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.NoError(t, err)
	first.orch.Stop()

	clock.Advance(10 * time.Minute)
	second := startHarness(t, clock, repo, store)
	require.Equal(t, cycle.StageWashing, second.stage(t, id))
	rem, ok := second.orch.Remaining(id)
	require.True(t, ok)
	require.Equal(t, 20*time.Minute, rem)

	clock.Advance(20 * time.Minute)
	second.waitStage(t, id, cycle.StageWetWaitingForDryer)
}

func TestConcurrentWashingRequestsArmOneTimer(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Towels", time.Hour, time.Minute, time.Minute)
	_, err := h.coord.RequestTransition(t.Context(), id, cycle.StageDirty)
	require.NoError(t, err)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.coord.RequestTransition(context.Background(), id, cycle.StageWashing)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			if foundationerrors.HasCategory(err, foundationerrors.CategoryTransition) {
				rejected++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, callers-1, rejected)
	require.Len(t, h.orch.ActiveIDs(), 1)
	recs, err := h.store.LoadAll(t.Context())
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestInvalidTransitionLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Towels", time.Hour, time.Minute, time.Minute)
	before, err := h.coord.Snapshot(id)
	require.NoError(t, err)

	_, err = h.coord.RequestTransition(t.Context(), id, cycle.StageFolded)
	require.Error(t, err)
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryTransition))

	_, err = h.coord.RequestTransition(t.Context(), id, cycle.StageAbandoned)
	require.Error(t, err)

	after, err := h.coord.Snapshot(id)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Empty(t, historyCauses(t, h.coord, id))
	require.Empty(t, h.sink.stages())
}

func TestCommitFailureAbortsTransition(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Towels", time.Hour, time.Minute, time.Minute)
	repo := h.repo.(*memRepo)
	repo.setFailCommit(errors.New("disk full"))

	_, err := h.coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.Error(t, err)
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryPersistence))
	require.True(t, foundationerrors.IsRetryable(err))

	require.Equal(t, cycle.StageClean, h.stage(t, id))
	require.False(t, h.orch.Active(id))
	recs, err := h.store.LoadAll(t.Context())
	require.NoError(t, err)
	require.Empty(t, recs)

	repo.setFailCommit(nil)
	_, err = h.coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.NoError(t, err)
}

func TestMaintenanceTickReportsSweepFailures(t *testing.T) {
	h := newHarness(t)
	a := h.register(t, "Towels", time.Minute, time.Minute, time.Minute)
	b := h.register(t, "Sheets", time.Minute, time.Minute, time.Minute)
	h.clock.Advance(time.Minute)
	repo := h.repo.(*memRepo)
	repo.setFailCommit(errors.New("disk full"))

	report, err := h.coord.RunMaintenanceTick(t.Context())
	require.Error(t, err)
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryPersistence))
	require.Empty(t, report.Promoted)
	require.Equal(t, cycle.StageClean, h.stage(t, a))
	require.Equal(t, cycle.StageClean, h.stage(t, b))

	repo.setFailCommit(nil)
	report, err = h.coord.RunMaintenanceTick(t.Context())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a, b}, report.Promoted)
}

func TestTimerSaveFailureAbortsTransition(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Towels", time.Hour, time.Minute, time.Minute)
	h.store.(*timer.MemoryStore).SetFailSave(errors.New("read-only"))

	_, err := h.coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryPersistence))
	require.Equal(t, cycle.StageClean, h.stage(t, id))
	require.Empty(t, historyCauses(t, h.coord, id))
}

func TestStaleTimerEventIsDropped(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Towels", time.Hour, time.Minute, time.Minute)
	_, err := h.coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.NoError(t, err)

	require.NoError(t, h.coord.HandleTimerFired(t.Context(), timer.Fired{
		EntityID: id, TimerID: "old", Kind: cycle.TimerDry,
	}))
	require.Equal(t, cycle.StageWashing, h.stage(t, id))

	require.NoError(t, h.coord.HandleTimerFired(t.Context(), timer.Fired{
		EntityID: "ghost", TimerID: "x", Kind: cycle.TimerWash,
	}))
}

func TestRecoveryRepairsStrandedEntity(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	repo := newMemRepo()
	e := cycle.NewEntity("e-stuck", cycle.Config{
		Name: "Towels", WashInterval: time.Hour, WashDuration: time.Minute, DryDuration: time.Minute,
	}, epoch)
	e.Stage = cycle.StageWashing
	require.NoError(t, repo.SaveEntity(t.Context(), e))

	h := startHarness(t, clock, repo, timer.NewMemoryStore())
	require.Equal(t, cycle.StageWetWaitingForDryer, h.stage(t, e.ID))
	require.Equal(t, []cycle.Cause{cycle.CauseRecovery}, historyCauses(t, h.coord, e.ID))

	report, err := h.coord.RunMaintenanceTick(t.Context())
	require.NoError(t, err)
	require.Empty(t, report.Recovered)
}

func TestMaintenanceTickRecoversAfterLostTimer(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Towels", time.Hour, time.Minute, time.Minute)
	_, err := h.coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.NoError(t, err)

	// Countdowns disarmed without firing, as after a crash without restore.
	h.orch.Stop()

	report, err := h.coord.RunMaintenanceTick(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{id}, report.Recovered)
	require.Equal(t, cycle.StageWetWaitingForDryer, h.stage(t, id))
	recs, err := h.store.LoadAll(t.Context())
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestEscalation(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Towels", time.Hour, time.Minute, time.Minute)
	_, err := h.coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.NoError(t, err)

	snap, err := h.coord.Escalate(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, cycle.StageAbandoned, snap.Stage)
	require.False(t, h.orch.Active(id))

	_, err = h.coord.Escalate(t.Context(), id)
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryTransition))

	h.clock.Advance(2 * time.Hour)
	snap, err = h.coord.Snapshot(id)
	require.NoError(t, err)
	require.True(t, snap.IsOverdue)

	snap, err = h.coord.RequestTransition(t.Context(), id, cycle.StageClean)
	require.NoError(t, err)
	require.False(t, snap.IsOverdue)
	require.Equal(t, 0, snap.CompletedCycles)
	require.Equal(t, 100, snap.Happiness)
}

func TestFullCycleCountsCompletion(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Towels", time.Hour, time.Minute, time.Minute)

	for _, to := range []cycle.Stage{
		cycle.StageDirty, cycle.StageWashing, cycle.StageWetWaitingForDryer,
		cycle.StageDrying, cycle.StageReadyToFold, cycle.StageFolded,
	} {
		_, err := h.coord.RequestTransition(t.Context(), id, to)
		require.NoError(t, err, "to %s", to)
	}
	snap, err := h.coord.RequestTransition(t.Context(), id, cycle.StageClean)
	require.NoError(t, err)
	require.Equal(t, 1, snap.CompletedCycles)
	require.Empty(t, h.orch.ActiveIDs())
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Towels", time.Hour, time.Minute, time.Minute)

	_, err := h.coord.Register(t.Context(), cycle.Config{
		Name: "towels", WashInterval: time.Hour, WashDuration: time.Minute, DryDuration: time.Minute,
	})
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryAlreadyExists))

	_, err = h.coord.Register(t.Context(), cycle.Config{Name: "Bad", WashInterval: time.Hour})
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))

	got, created, err := h.coord.EnsureRegistered(t.Context(), cycle.Config{Name: "Towels"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, id, got)

	resolved, err := h.coord.Resolve("TOWELS")
	require.NoError(t, err)
	require.Equal(t, id, resolved)

	_, err = h.coord.Resolve("missing")
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryNotFound))
	_, err = h.coord.Snapshot("missing")
	require.ErrorIs(t, err, ErrEntityNotFound)
	_, err = h.coord.History(t.Context(), "missing")
	require.ErrorIs(t, err, ErrEntityNotFound)
}

func TestSnapshotsOrderedByName(t *testing.T) {
	h := newHarness(t)
	h.register(t, "towels", time.Hour, time.Minute, time.Minute)
	h.register(t, "Bed sheets", time.Hour, time.Minute, time.Minute)
	h.register(t, "Gym", time.Hour, time.Minute, time.Minute)

	var names []string
	for _, s := range h.coord.Snapshots() {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"Bed sheets", "Gym", "towels"}, names)
}
