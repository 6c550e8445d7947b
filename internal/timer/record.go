package timer

import (
	"context"
	"time"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
)

// Record is the durable description of one outstanding countdown. Stores keep
// at most one record per EntityID.
type Record struct {
	EntityID  string          `json:"entity_id"`
	TimerID   string          `json:"timer_id"`
	Kind      cycle.TimerKind `json:"kind"`
	StartedAt time.Time       `json:"started_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Duration is the full length of the countdown.
func (r Record) Duration() time.Duration { return r.ExpiresAt.Sub(r.StartedAt) }

// Store persists timer records. Save is an upsert keyed by EntityID and must be
// durable when it returns. Delete of a missing record is not an error.
type Store interface {
	LoadAll(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, entityID string) error
}

// Handle describes a countdown that was armed by Start.
type Handle struct {
	EntityID  string
	TimerID   string
	Kind      cycle.TimerKind
	StartedAt time.Time
	ExpiresAt time.Time
}

// Fired is delivered once per record when its countdown elapses.
type Fired struct {
	EntityID  string
	TimerID   string
	Kind      cycle.TimerKind
	ExpiresAt time.Time
	// CatchUp is set when the record had already expired at Restore.
	CatchUp bool
}

// Handler consumes fired countdowns. It is called with the entity's key held
// and must not try to take it again.
type Handler interface {
	HandleTimerFired(ctx context.Context, ev Fired) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Fired) error

func (f HandlerFunc) HandleTimerFired(ctx context.Context, ev Fired) error { return f(ctx, ev) }

// Locker serializes work per entity. keylock.Map satisfies it.
type Locker interface {
	Lock(key string) (unlock func())
}
