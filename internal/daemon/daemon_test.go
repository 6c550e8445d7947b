package daemon

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/laundrycycle/internal/config"
	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
)

var epoch = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "laundry.db")
	cfg.HTTP.Enabled = true
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Enabled = true
	cfg.Categories = []config.CategoryConfig{
		{Name: "Towels"},
		{Name: "Bed sheets", DryDuration: 90 * time.Minute},
	}
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config, clock clockwork.Clock) *Daemon {
	t.Helper()
	d, err := New(cfg, "", WithClock(clock), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	return d
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil, "")
	require.Error(t, err)
}

func TestDaemon_StartStop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	d := newTestDaemon(t, testConfig(t), clock)

	require.NoError(t, d.Start(t.Context()))
	require.Equal(t, StatusRunning, d.GetStatus())
	require.NotNil(t, d.Runtime())
	require.NotEmpty(t, d.HTTPAddr())
	require.Error(t, d.Start(t.Context()), "second start must fail")

	snaps := d.Runtime().Coordinator.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "Bed sheets", snaps[0].Name)
	assert.Equal(t, cycle.StageClean, snaps[0].Stage)

	require.NoError(t, d.Stop(t.Context()))
	require.Equal(t, StatusStopped, d.GetStatus())
	require.Nil(t, d.Runtime())
	require.Empty(t, d.HTTPAddr())
	require.NoError(t, d.Stop(t.Context()), "stop is idempotent")
}

func TestDaemon_RestartKeepsStateAndDoesNotReseed(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	cfg := testConfig(t)

	first := newTestDaemon(t, cfg, clock)
	require.NoError(t, first.Start(t.Context()))
	coord := first.Runtime().Coordinator
	id, err := coord.Resolve("towels")
	require.NoError(t, err)
	_, err = coord.RequestTransition(t.Context(), id, cycle.StageDirty)
	require.NoError(t, err)
	require.NoError(t, first.Stop(t.Context()))

	second := newTestDaemon(t, cfg, clock)
	require.NoError(t, second.Start(t.Context()))
	t.Cleanup(func() { _ = second.Stop(t.Context()) })

	snaps := second.Runtime().Coordinator.Snapshots()
	require.Len(t, snaps, 2)
	snap, err := second.Runtime().Coordinator.Snapshot(id)
	require.NoError(t, err)
	require.Equal(t, cycle.StageDirty, snap.Stage)
}

func TestDaemon_HealthEndpoint(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	d := newTestDaemon(t, testConfig(t), clock)
	require.NoError(t, d.Start(t.Context()))
	t.Cleanup(func() { _ = d.Stop(t.Context()) })

	resp, err := http.Get("http://" + d.HTTPAddr() + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, HealthStatusHealthy, health.Status)
	names := make([]string, 0, len(health.Checks))
	for _, c := range health.Checks {
		names = append(names, c.Name)
	}
	require.ElementsMatch(t, []string{"daemon_status", "storage", "scheduler", "timers"}, names)

	metricsResp, err := http.Get("http://" + d.HTTPAddr() + "/metrics")
	require.NoError(t, err)
	defer func() { _ = metricsResp.Body.Close() }()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "go_goroutines")
}

func TestDaemon_HealthDegradedAfterFailedTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	cfg := testConfig(t)
	cfg.HTTP.Enabled = false
	d := newTestDaemon(t, cfg, clock)

	ok, _ := d.CheckHealth(t.Context())
	require.False(t, ok, "stopped daemon is unhealthy")

	require.NoError(t, d.Start(t.Context()))
	t.Cleanup(func() { _ = d.Stop(t.Context()) })

	d.tickMu.Lock()
	d.lastTick = clock.Now()
	d.lastTickErr = assert.AnError
	d.tickMu.Unlock()

	ok, report := d.CheckHealth(t.Context())
	require.True(t, ok, "degraded is still serving")
	require.Equal(t, HealthStatusDegraded, report.(*HealthResponse).Status)
}

func TestDaemon_RunTickPromotesOverdueEntities(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	cfg := testConfig(t)
	cfg.HTTP.Enabled = false
	cfg.Categories = []config.CategoryConfig{{Name: "Towels", WashInterval: time.Hour}}
	// Keep the scheduled tick out of the way; the test drives it directly.
	cfg.Maintenance.Interval = 24 * time.Hour
	d := newTestDaemon(t, cfg, clock)
	require.NoError(t, d.Start(t.Context()))
	t.Cleanup(func() { _ = d.Stop(t.Context()) })

	clock.Advance(2 * time.Hour)
	d.runTick()

	at, report, err := d.LastTick()
	require.NoError(t, err)
	require.Equal(t, clock.Now(), at)
	require.Len(t, report.Promoted, 1)

	snaps := d.Runtime().Coordinator.Snapshots()
	require.Equal(t, cycle.StageDirty, snaps[0].Stage)
}

func TestDaemon_BadgerTimerBackend(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	cfg := testConfig(t)
	cfg.HTTP.Enabled = false
	cfg.Storage.TimerBackend = config.TimerBackendBadger
	cfg.Storage.BadgerDir = filepath.Join(t.TempDir(), "timers")
	// Built in code, so the backend's defaults were never applied.
	require.Zero(t, cfg.Storage.BadgerGC)
	d := newTestDaemon(t, cfg, clock)
	require.NoError(t, d.Start(t.Context()))

	coord := d.Runtime().Coordinator
	id, err := coord.Resolve("Towels")
	require.NoError(t, err)
	_, err = coord.RequestTransition(t.Context(), id, cycle.StageDirty)
	require.NoError(t, err)
	_, err = coord.RequestTransition(t.Context(), id, cycle.StageWashing)
	require.NoError(t, err)
	require.Equal(t, 2, d.scheduler.Jobs(), "maintenance and badger gc")
	require.NoError(t, d.Stop(t.Context()))

	second := newTestDaemon(t, cfg, clock)
	require.NoError(t, second.Start(t.Context()))
	t.Cleanup(func() { _ = second.Stop(t.Context()) })
	snap, err := second.Runtime().Coordinator.Snapshot(id)
	require.NoError(t, err)
	require.Equal(t, cycle.StageWashing, snap.Stage)
	require.NotNil(t, snap.RemainingTimerSeconds)
}

func TestDaemon_ReloadConfig(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	cfg := testConfig(t)
	cfg.HTTP.Enabled = false
	d := newTestDaemon(t, cfg, clock)
	require.NoError(t, d.Start(t.Context()))
	t.Cleanup(func() { _ = d.Stop(t.Context()) })

	updated := *cfg
	updated.Logging.Level = config.LogLevelDebug
	updated.Maintenance.Interval = time.Minute
	require.NoError(t, d.ReloadConfig(t.Context(), &updated))

	require.Equal(t, slog.LevelDebug, d.Level().Level())
	require.Equal(t, time.Minute, d.GetConfig().Maintenance.Interval)
	require.Equal(t, 1, d.scheduler.Jobs())
}
