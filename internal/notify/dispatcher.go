package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
	"git.home.luguber.info/inful/laundrycycle/internal/metrics"
	"git.home.luguber.info/inful/laundrycycle/internal/retry"
)

var (
	// ErrQueueFull is returned by Notify when the notification was dropped.
	ErrQueueFull = foundationerrors.RuntimeError("notification queue full").Warning().Build()
	// ErrClosed is returned by Notify after Close.
	ErrClosed = foundationerrors.RuntimeError("notification dispatcher closed").Warning().Build()
)

// Dispatcher is an asynchronous Sink in front of another Sink.
type Dispatcher struct {
	sink     Sink
	policy   retry.Policy
	clock    clockwork.Clock
	recorder metrics.Recorder
	logger   *slog.Logger
	workers  int

	mu     sync.RWMutex
	closed bool
	queue  chan Notification

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Notification, n)
		}
	}
}

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithPolicy(p retry.Policy) Option { return func(d *Dispatcher) { d.policy = p } }

func WithClock(c clockwork.Clock) Option { return func(d *Dispatcher) { d.clock = c } }

func WithRecorder(r metrics.Recorder) Option { return func(d *Dispatcher) { d.recorder = r } }

func WithLogger(l *slog.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

// NewDispatcher starts the worker pool.
func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:     sink,
		policy:   retry.DefaultPolicy(),
		clock:    clockwork.NewRealClock(),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		workers:  1,
		queue:    make(chan Notification, 64),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	for range d.workers {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Notify enqueues n without blocking.
func (d *Dispatcher) Notify(_ context.Context, n Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		d.recorder.IncNotification(metrics.NotifyDropped)
		d.logger.Warn("Dropping notification, queue full",
			logfields.EntityID(n.EntityID),
			logfields.ToStage(string(n.To)))
		return ErrQueueFull
	}
}

// Pending returns the number of queued notifications.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting notifications and waits for the queue to drain. If ctx
// ends first, in-flight retries are abandoned and ctx.Err is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	err := d.policy.Do(d.ctx, d.clock, func(ctx context.Context) error {
		return d.sink.Notify(ctx, n)
	}, func(attempt int, err error) {
		d.recorder.IncNotification(metrics.NotifyRetried)
		d.logger.Debug("Retrying notification",
			logfields.EntityID(n.EntityID),
			logfields.Attempt(attempt),
			logfields.Error(err))
	})
	if err != nil {
		d.recorder.IncNotification(metrics.NotifyFailed)
		d.logger.Warn("Notification delivery failed",
			logfields.EntityID(n.EntityID),
			logfields.ToStage(string(n.To)),
			logfields.Error(err))
		return
	}
	d.recorder.IncNotification(metrics.NotifyDelivered)
}
