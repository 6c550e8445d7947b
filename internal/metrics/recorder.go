package metrics

import "time"

// Recorder is the metrics surface used across laundrycycle.
type Recorder interface {
	IncTransition(from, to, cause string)
	IncTransitionRejected(reason string)
	IncTimerStarted(kind string)
	IncTimerFired(kind string, catchUp bool)
	IncTimerCancelled(kind string)
	SetActiveTimers(n int)
	IncRecovery(stage string)
	IncSweepPromotion()
	ObserveTickDuration(d time.Duration)
	IncNotification(result NotifyResult)
}

// NotifyResult labels the fate of an outbound notification.
type NotifyResult string

const (
	NotifyDelivered NotifyResult = "delivered"
	NotifyFailed    NotifyResult = "failed"
	NotifyDropped   NotifyResult = "dropped"
	NotifyRetried   NotifyResult = "retried"
)

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncTransition(string, string, string) {}
func (NoopRecorder) IncTransitionRejected(string)         {}
func (NoopRecorder) IncTimerStarted(string)               {}
func (NoopRecorder) IncTimerFired(string, bool)           {}
func (NoopRecorder) IncTimerCancelled(string)             {}
func (NoopRecorder) SetActiveTimers(int)                  {}
func (NoopRecorder) IncRecovery(string)                   {}
func (NoopRecorder) IncSweepPromotion()                   {}
func (NoopRecorder) ObserveTickDuration(time.Duration)    {}
func (NoopRecorder) IncNotification(NotifyResult)         {}
