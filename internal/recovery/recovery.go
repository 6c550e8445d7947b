// Package recovery detects entities stranded in a timer stage without a live
// countdown and force-advances them.
package recovery

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
)

// Anomaly is an entity in a timer stage with no active countdown.
type Anomaly struct {
	EntityID string
	Stage    cycle.Stage
	Target   cycle.Stage
}

// Detect returns one anomaly per washing or drying entity whose id is absent
// from active. It is pure.
func Detect(entities []cycle.Entity, active map[string]struct{}) []Anomaly {
	var out []Anomaly
	for _, e := range entities {
		kind, ok := e.Stage.TimerKind()
		if !ok {
			continue
		}
		if _, live := active[e.ID]; live {
			continue
		}
		out = append(out, Anomaly{EntityID: e.ID, Stage: e.Stage, Target: kind.CompletionStage()})
	}
	return out
}

// Applier performs the repair. ForceAdvance must re-check, under the entity's
// lock, that the entity is still in a.Stage without a live countdown and report
// false without changing anything otherwise.
type Applier interface {
	CancelTimer(ctx context.Context, entityID string) error
	ForceAdvance(ctx context.Context, a Anomaly) (bool, error)
}

// Reconciler turns anomalies into recovery transitions.
type Reconciler struct {
	applier Applier
	logger  *slog.Logger
}

// NewReconciler returns a Reconciler that repairs through applier.
func NewReconciler(applier Applier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{applier: applier, logger: logger}
}

// Reconcile repairs every anomaly found in entities and returns the ids that
// were advanced. It keeps going after a failed repair and returns the joined
// errors. Calling it again with the same input is harmless.
func (r *Reconciler) Reconcile(ctx context.Context, entities []cycle.Entity, active map[string]struct{}) ([]string, error) {
	var (
		repaired []string
		errs     []error
	)
	for _, a := range Detect(entities, active) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.applier.CancelTimer(ctx, a.EntityID); err != nil {
			r.logger.Warn("Failed to clear stray timer", logfields.EntityID(a.EntityID), logfields.Error(err))
		}
		advanced, err := r.applier.ForceAdvance(ctx, a)
		if err != nil {
			r.logger.Error("Recovery transition failed",
				logfields.EntityID(a.EntityID), logfields.FromStage(string(a.Stage)), logfields.Error(err))
			errs = append(errs, err)
			continue
		}
		if !advanced {
			continue
		}
		r.logger.Warn("Recovered entity stranded without timer",
			logfields.EntityID(a.EntityID),
			logfields.FromStage(string(a.Stage)),
			logfields.ToStage(string(a.Target)))
		repaired = append(repaired, a.EntityID)
	}
	return repaired, errors.Join(errs...)
}
