package daemon

import (
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestScheduler_ScheduleEvery(t *testing.T) {
	s, err := NewScheduler(clockwork.NewFakeClock(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop(t.Context()) })

	id, err := s.ScheduleEvery("tick", time.Minute, func() {})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, 1, s.Jobs())

	_, err = s.ScheduleEvery("bad", 0, func() {})
	require.Error(t, err)
	require.Equal(t, 1, s.Jobs())
}

func TestScheduler_Reschedule(t *testing.T) {
	s, err := NewScheduler(clockwork.NewFakeClock(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop(t.Context()) })

	id, err := s.ScheduleEvery("tick", time.Minute, func() {})
	require.NoError(t, err)

	require.NoError(t, s.Reschedule(id, "tick", 5*time.Minute, func() {}))
	require.Equal(t, 1, s.Jobs())

	require.Error(t, s.Reschedule(id, "tick", -time.Second, func() {}))
	require.Error(t, s.Reschedule("not-a-uuid", "tick", time.Minute, func() {}))
}
