package coordinator

import (
	"math"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
)

// Snapshot is the read model of one entity.
type Snapshot struct {
	ID                    string      `json:"id"`
	Name                  string      `json:"name"`
	Stage                 cycle.Stage `json:"stage"`
	RemainingTimerSeconds *int64      `json:"remaining_timer_seconds,omitempty"`
	TimerProgress         *float64    `json:"timer_progress,omitempty"`
	Happiness             int         `json:"happiness"`
	IsOverdue             bool        `json:"is_overdue"`
	CompletedCycles       int         `json:"completed_cycles"`
	LastStageChangeAt     time.Time   `json:"last_stage_change_at"`
}

// Snapshot returns the current view of one entity.
func (c *Coordinator) Snapshot(id string) (Snapshot, error) {
	e, ok := c.entity(id)
	if !ok {
		return Snapshot{}, ErrEntityNotFound.WithContext("entity_id", id)
	}
	return c.snapshot(e), nil
}

// Snapshots returns every entity ordered by name.
func (c *Coordinator) Snapshots() []Snapshot {
	entities := c.list()
	out := make([]Snapshot, 0, len(entities))
	for _, e := range entities {
		out = append(out, c.snapshot(e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func (c *Coordinator) snapshot(e cycle.Entity) Snapshot {
	now := c.clock.Now()
	s := Snapshot{
		ID:                e.ID,
		Name:              e.Name,
		Stage:             e.Stage,
		Happiness:         cycle.Happiness(e, now),
		IsOverdue:         cycle.IsOverdue(e, now),
		CompletedCycles:   e.CompletedCycles,
		LastStageChangeAt: e.LastStageChangeAt,
	}
	if _, timed := e.Stage.TimerKind(); !timed {
		return s
	}
	if rem, ok := c.timers.Remaining(e.ID); ok {
		secs := int64(math.Ceil(rem.Seconds()))
		s.RemainingTimerSeconds = &secs
	}
	if p, ok := c.timers.Progress(e.ID); ok {
		s.TimerProgress = &p
	}
	return s
}
