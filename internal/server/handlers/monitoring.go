package handlers

import (
	"context"
	"net/http"
)

// HealthChecker reports process health. ok=false answers 503.
type HealthChecker interface {
	CheckHealth(ctx context.Context) (ok bool, report any)
}

// MonitoringHandlers serves health endpoints.
type MonitoringHandlers struct {
	health HealthChecker
}

// NewMonitoringHandlers creates monitoring handlers.
func NewMonitoringHandlers(health HealthChecker) *MonitoringHandlers {
	return &MonitoringHandlers{health: health}
}

// HandleHealthCheck handles GET /healthz.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		_ = writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	ok, report := h.health.CheckHealth(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	_ = writeJSONPretty(w, r, status, report)
}
