package daemon

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/laundrycycle/internal/version"
)

// HealthStatus represents the overall health of the daemon
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Checks    []HealthCheck `json:"checks"`
}

// CheckHealth reports daemon, storage, scheduler and timer health. Only an
// unhealthy check makes the daemon unhealthy.
func (d *Daemon) CheckHealth(ctx context.Context) (bool, any) {
	resp := d.PerformHealthChecks(ctx)
	return resp.Status != HealthStatusUnhealthy, resp
}

// PerformHealthChecks executes all health checks and returns the overall status
func (d *Daemon) PerformHealthChecks(ctx context.Context) *HealthResponse {
	checks := []HealthCheck{
		d.timed("daemon_status", d.checkDaemonHealth),
		d.timed("storage", func() (HealthStatus, string) { return d.checkStorageHealth(ctx) }),
		d.timed("scheduler", d.checkSchedulerHealth),
		d.timed("timers", d.checkTimerHealth),
	}

	overall := HealthStatusHealthy
	for _, c := range checks {
		switch c.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	d.mu.RLock()
	started := d.startTime
	d.mu.RUnlock()
	return &HealthResponse{
		Status:    overall,
		Timestamp: d.clock.Now(),
		Uptime:    d.clock.Since(started).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    checks,
	}
}

func (d *Daemon) timed(name string, check func() (HealthStatus, string)) HealthCheck {
	start := time.Now()
	status, msg := check()
	return HealthCheck{
		Name:        name,
		Status:      status,
		Message:     msg,
		Duration:    time.Since(start),
		LastChecked: d.clock.Now(),
	}
}

// checkDaemonHealth verifies the daemon is in a healthy state
func (d *Daemon) checkDaemonHealth() (HealthStatus, string) {
	switch d.GetStatus() {
	case StatusRunning:
		return HealthStatusHealthy, "Daemon is running normally"
	case StatusStarting:
		return HealthStatusDegraded, "Daemon is still starting up"
	case StatusStopping:
		return HealthStatusDegraded, "Daemon is shutting down"
	case StatusError:
		return HealthStatusUnhealthy, "Daemon is in error state"
	default:
		return HealthStatusUnhealthy, "Daemon is not running"
	}
}

func (d *Daemon) checkStorageHealth(ctx context.Context) (HealthStatus, string) {
	rt := d.Runtime()
	if rt == nil {
		return HealthStatusUnhealthy, "Storage not open"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rt.DB.Ping(ctx); err != nil {
		return HealthStatusUnhealthy, fmt.Sprintf("Database unreachable: %v", err)
	}
	return HealthStatusHealthy, "Database reachable"
}

func (d *Daemon) checkSchedulerHealth() (HealthStatus, string) {
	d.tickMu.Lock()
	last, lastErr := d.lastTick, d.lastTickErr
	d.tickMu.Unlock()

	interval := d.GetConfig().Maintenance.Interval
	switch {
	case lastErr != nil:
		return HealthStatusDegraded, fmt.Sprintf("Last maintenance tick failed: %v", lastErr)
	case last.IsZero():
		return HealthStatusHealthy, "Waiting for first maintenance tick"
	case d.clock.Since(last) > 3*interval:
		return HealthStatusDegraded, fmt.Sprintf("No maintenance tick since %s", last.Format(time.RFC3339))
	default:
		return HealthStatusHealthy, fmt.Sprintf("Last maintenance tick at %s", last.Format(time.RFC3339))
	}
}

func (d *Daemon) checkTimerHealth() (HealthStatus, string) {
	rt := d.Runtime()
	if rt == nil {
		return HealthStatusUnhealthy, "Timers not restored"
	}
	return HealthStatusHealthy, fmt.Sprintf("%d active timers", len(rt.Timers.ActiveIDs()))
}
