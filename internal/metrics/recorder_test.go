package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Ensure NoopRecorder satisfies interface and methods are callable.
func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	require.NotPanics(t, func() {
		r.IncTransition("dirty", "washing", "user_action")
		r.IncTransitionRejected("invalid")
		r.IncTimerStarted("wash")
		r.IncTimerFired("wash", true)
		r.IncTimerCancelled("dry")
		r.SetActiveTimers(2)
		r.IncRecovery("washing")
		r.IncSweepPromotion()
		r.ObserveTickDuration(10 * time.Millisecond)
		r.IncNotification(NotifyDropped)
	})
}
