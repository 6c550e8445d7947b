package daemon

import (
	"context"
	"sync"
)

// workerGroup runs background loops that share one stop signal. Once stop has
// begun no new loop starts, so Add never races with Wait.
type workerGroup struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	stop    chan struct{}
	stopped bool
}

// Go starts fn with the group's stop channel. It reports false when the group
// is already stopping.
func (g *workerGroup) Go(fn func(stop <-chan struct{})) bool {
	if fn == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	if g.stop == nil {
		g.stop = make(chan struct{})
	}
	stop := g.stop

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn(stop)
	}()
	return true
}

// Stop closes the stop channel once and waits for running loops, bounded by
// ctx. Calling it again only waits.
func (g *workerGroup) Stop(ctx context.Context) error {
	g.mu.Lock()
	if !g.stopped {
		g.stopped = true
		if g.stop != nil {
			close(g.stop)
		}
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
