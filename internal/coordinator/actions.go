package coordinator

import (
	"context"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
	"git.home.luguber.info/inful/laundrycycle/internal/timer"
)

// RequestTransition moves an entity to stage on behalf of the user.
func (c *Coordinator) RequestTransition(ctx context.Context, id string, stage cycle.Stage) (Snapshot, error) {
	return c.transition(ctx, id, stage, cycle.CauseUserAction)
}

// Escalate marks an entity abandoned.
func (c *Coordinator) Escalate(ctx context.Context, id string) (Snapshot, error) {
	return c.transition(ctx, id, cycle.StageAbandoned, cycle.CauseEscalation)
}

// CancelActiveTimer ends the running wash or dry early by applying the
// transition its completion would have made. Without a running timer it
// returns the current snapshot unchanged.
func (c *Coordinator) CancelActiveTimer(ctx context.Context, id string) (Snapshot, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	e, ok := c.entity(id)
	if !ok {
		return Snapshot{}, ErrEntityNotFound.WithContext("entity_id", id)
	}
	kind, ok := e.Stage.TimerKind()
	if !ok {
		return c.snapshot(e), nil
	}
	next, err := c.applyLocked(ctx, e, kind.CompletionStage(), cycle.CauseUserAction, c.clock.Now())
	if err != nil {
		return Snapshot{}, err
	}
	return c.snapshot(next), nil
}

func (c *Coordinator) transition(ctx context.Context, id string, stage cycle.Stage, cause cycle.Cause) (Snapshot, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	e, ok := c.entity(id)
	if !ok {
		return Snapshot{}, ErrEntityNotFound.WithContext("entity_id", id)
	}
	next, err := c.applyLocked(ctx, e, stage, cause, c.clock.Now())
	if err != nil {
		return Snapshot{}, err
	}
	return c.snapshot(next), nil
}

// HandleTimerFired applies the completion transition for a fired countdown.
// The orchestrator calls it with the entity's key lock held.
func (c *Coordinator) HandleTimerFired(ctx context.Context, ev timer.Fired) error {
	e, ok := c.entity(ev.EntityID)
	if !ok {
		c.logger.Warn("Timer fired for unknown entity",
			logfields.EntityID(ev.EntityID), logfields.TimerID(ev.TimerID))
		return nil
	}
	if e.Stage != ev.Kind.Stage() {
		c.logger.Info("Dropping stale timer",
			logfields.EntityID(e.ID),
			logfields.Stage(string(e.Stage)),
			logfields.TimerKind(string(ev.Kind)),
			logfields.TimerID(ev.TimerID))
		return nil
	}
	// A countdown that expired while the daemon was down completed at its expiry.
	at := c.clock.Now()
	if ev.CatchUp {
		at = ev.ExpiresAt
	}
	_, err := c.applyLocked(ctx, e, ev.Kind.CompletionStage(), cycle.CauseTimerCompletion, at)
	return err
}
