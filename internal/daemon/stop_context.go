package daemon

import (
	"context"
	"errors"
)

// errStopping is the cancellation cause of work cut short by Stop.
var errStopping = errors.New("daemon stopping")

// stopAwareContext derives a context from parent that is also cancelled, with
// cause errStopping, once the daemon's stop channel closes. gocron runs jobs
// without a context, so scheduled ticks use this to end with the daemon.
func (d *Daemon) stopAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	release := func() { cancel(context.Canceled) }

	stop := d.stopChannel()
	if stop == nil {
		return ctx, release
	}
	go func() {
		select {
		case <-stop:
			cancel(errStopping)
		case <-ctx.Done():
		}
	}()
	return ctx, release
}
