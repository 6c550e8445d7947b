package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	"git.home.luguber.info/inful/laundrycycle/internal/timer"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestTimerStoreUpsertAndDelete(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	first := timer.Record{EntityID: "e1", TimerID: "t1", Kind: cycle.TimerWash, StartedAt: t0, ExpiresAt: t0.Add(15 * time.Second)}
	second := timer.Record{EntityID: "e1", TimerID: "t2", Kind: cycle.TimerDry, StartedAt: t0, ExpiresAt: t0.Add(time.Minute)}

	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	got, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t2", got[0].TimerID)
	assert.True(t, second.ExpiresAt.Equal(got[0].ExpiresAt))

	require.NoError(t, s.Delete(ctx, "e1"))
	require.NoError(t, s.Delete(ctx, "e1"), "deleting a missing record is not an error")
	got, err = s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, s.RunGC())
}

func TestTimerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, timer.Record{EntityID: "e1", TimerID: "t1", Kind: cycle.TimerDry, StartedAt: t0, ExpiresAt: t0.Add(time.Hour)}))
	require.NoError(t, s.Close())

	s, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, cycle.TimerDry, got[0].Kind)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}
