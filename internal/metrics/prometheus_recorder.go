package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "laundrycycle"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	transitions   *prom.CounterVec
	rejected      *prom.CounterVec
	timersStarted *prom.CounterVec
	timersFired   *prom.CounterVec
	timersCancel  *prom.CounterVec
	activeTimers  prom.Gauge
	recoveries    *prom.CounterVec
	sweeps        prom.Counter
	tickDuration  prom.Histogram
	notifications *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Applied stage transitions",
		}, []string{"from", "to", "cause"}),
		rejected: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_rejected_total",
			Help:      "Transitions refused or aborted, by reason",
		}, []string{"reason"}),
		timersStarted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "timers_started_total",
			Help:      "Countdowns armed by kind",
		}, []string{"kind"}),
		timersFired: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "timers_fired_total",
			Help:      "Countdowns delivered by kind, including catch-up on restore",
		}, []string{"kind", "catch_up"}),
		timersCancel: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "timers_cancelled_total",
			Help:      "Countdowns cancelled before firing",
		}, []string{"kind"}),
		activeTimers: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "active_timers",
			Help:      "Countdowns currently armed",
		}),
		recoveries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Entities force-advanced because their timer was missing",
		}, []string{"stage"}),
		sweeps: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_promotions_total",
			Help:      "Clean entities promoted to dirty by the sweep",
		}),
		tickDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "maintenance_tick_duration_seconds",
			Help:      "Duration of maintenance ticks",
			Buckets:   prom.DefBuckets,
		}),
		notifications: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound notifications by result",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.transitions, pr.rejected, pr.timersStarted, pr.timersFired, pr.timersCancel,
		pr.activeTimers, pr.recoveries, pr.sweeps, pr.tickDuration, pr.notifications)
	return pr
}

func (p *PrometheusRecorder) IncTransition(from, to, cause string) {
	p.transitions.WithLabelValues(from, to, cause).Inc()
}

func (p *PrometheusRecorder) IncTransitionRejected(reason string) {
	p.rejected.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncTimerStarted(kind string) {
	p.timersStarted.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncTimerFired(kind string, catchUp bool) {
	p.timersFired.WithLabelValues(kind, strconv.FormatBool(catchUp)).Inc()
}

func (p *PrometheusRecorder) IncTimerCancelled(kind string) {
	p.timersCancel.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) SetActiveTimers(n int) { p.activeTimers.Set(float64(n)) }

func (p *PrometheusRecorder) IncRecovery(stage string) {
	p.recoveries.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncSweepPromotion() { p.sweeps.Inc() }

func (p *PrometheusRecorder) ObserveTickDuration(d time.Duration) {
	p.tickDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncNotification(result NotifyResult) {
	p.notifications.WithLabelValues(string(result)).Inc()
}
