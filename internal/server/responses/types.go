// Package responses holds the JSON request and response bodies of the HTTP API.
package responses

import (
	"time"

	"git.home.luguber.info/inful/laundrycycle/internal/coordinator"
	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
)

// RegisterRequest is the body of POST /api/entities. Omitted durations use the
// configured defaults.
type RegisterRequest struct {
	Name                string `json:"name"`
	WashIntervalSeconds int64  `json:"wash_interval_seconds,omitempty"`
	WashDurationSeconds int64  `json:"wash_duration_seconds,omitempty"`
	DryDurationSeconds  int64  `json:"dry_duration_seconds,omitempty"`
}

// TransitionRequest is the body of POST /api/entities/{id}/transition.
type TransitionRequest struct {
	Stage string `json:"stage"`
}

// EntityListResponse lists every entity.
type EntityListResponse struct {
	Entities  []coordinator.Snapshot `json:"entities"`
	Count     int                    `json:"count"`
	Timestamp time.Time              `json:"timestamp"`
}

// RegisterResponse is returned after a registration.
type RegisterResponse struct {
	ID     string               `json:"id"`
	Entity coordinator.Snapshot `json:"entity"`
}

// HistoryResponse lists an entity's transitions, oldest first.
type HistoryResponse struct {
	EntityID string           `json:"entity_id"`
	Entries  []cycle.LogEntry `json:"entries"`
}

// TickResponse reports a manually triggered maintenance tick.
type TickResponse struct {
	Promoted   []string `json:"promoted"`
	Recovered  []string `json:"recovered"`
	DurationMS float64  `json:"duration_ms"`
	Errors     []string `json:"errors,omitempty"`
}
