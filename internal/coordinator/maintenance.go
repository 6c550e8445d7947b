package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
	"git.home.luguber.info/inful/laundrycycle/internal/recovery"
	"git.home.luguber.info/inful/laundrycycle/internal/sweep"
)

// TickReport summarizes one maintenance tick.
type TickReport struct {
	Promoted  []string      `json:"promoted"`
	Recovered []string      `json:"recovered"`
	Duration  time.Duration `json:"duration"`
}

// RunMaintenanceTick promotes overdue clean entities to dirty, then repairs
// entities stranded in a timer stage. Failures for one entity do not stop the
// others; all of them are returned joined.
func (c *Coordinator) RunMaintenanceTick(ctx context.Context) (TickReport, error) {
	start := c.clock.Now()
	var (
		report TickReport
		mu     sync.Mutex
		errs   []error
	)

	due := sweep.Sweep(c.list(), start)
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, id := range due {
		g.Go(func() error {
			promoted, err := c.promote(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if promoted {
				report.Promoted = append(report.Promoted, id)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("Dirtiness sweep incomplete",
			logfields.Count(len(errs)), logfields.Error(err))
	}

	repaired, err := c.reconciler.Reconcile(ctx, c.list(), c.timers.ActiveIDs())
	if err != nil {
		errs = append(errs, err)
	}
	report.Recovered = repaired
	report.Duration = c.clock.Since(start)
	c.recorder.ObserveTickDuration(report.Duration)

	if len(report.Promoted) > 0 || len(report.Recovered) > 0 {
		c.logger.Info("Maintenance tick applied changes",
			logfields.Count(len(report.Promoted)+len(report.Recovered)),
			logfields.DurationMS(float64(report.Duration.Microseconds())/1000))
	}
	return report, errors.Join(errs...)
}

// promote re-checks the sweep condition under the key lock before applying.
func (c *Coordinator) promote(ctx context.Context, id string) (bool, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	e, ok := c.entity(id)
	if !ok || len(sweep.Sweep([]cycle.Entity{e}, c.clock.Now())) == 0 {
		return false, nil
	}
	if _, err := c.applyLocked(ctx, e, cycle.StageDirty, cycle.CauseDirtinessSweep, c.clock.Now()); err != nil {
		return false, err
	}
	c.recorder.IncSweepPromotion()
	return true, nil
}

// recoveryApplier carries out reconciler decisions under the key lock.
type recoveryApplier struct {
	c *Coordinator
}

func (a recoveryApplier) CancelTimer(ctx context.Context, entityID string) error {
	unlock := a.c.locks.Lock(entityID)
	defer unlock()
	if a.c.timers.Active(entityID) {
		return nil
	}
	return a.c.timers.Cancel(ctx, entityID)
}

func (a recoveryApplier) ForceAdvance(ctx context.Context, an recovery.Anomaly) (bool, error) {
	unlock := a.c.locks.Lock(an.EntityID)
	defer unlock()

	e, ok := a.c.entity(an.EntityID)
	if !ok || e.Stage != an.Stage || a.c.timers.Active(an.EntityID) {
		return false, nil
	}
	if _, err := a.c.applyLocked(ctx, e, an.Target, cycle.CauseRecovery, a.c.clock.Now()); err != nil {
		return false, err
	}
	a.c.recorder.IncRecovery(string(an.Stage))
	return true, nil
}
