package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TaskRunner runs persistence work off the playback loop.
type TaskRunner interface {
	// Submit queues fn and returns immediately. It reports false when the
	// task was not accepted.
	Submit(ctx context.Context, name string, fn func(ctx context.Context) error) bool
}

// Dispatcher is a bounded worker pool for fire-and-forget writes.
// A task is dropped if its context is done before a worker picks it up, so
// nothing is written for a session after it has been torn down. Writes that
// must outlive the session are submitted with a detached context.
type Dispatcher struct {
	queue   chan task
	timeout time.Duration
	logger  *zap.Logger
	group   errgroup.Group

	mu     sync.RWMutex
	closed bool
}

type task struct {
	ctx  context.Context
	name string
	fn   func(ctx context.Context) error
}

var _ TaskRunner = (*Dispatcher)(nil)

func NewDispatcher(workers, queueSize int, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		queue:   make(chan task, queueSize),
		timeout: timeout,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		d.group.Go(d.work)
	}
	return d
}

func (d *Dispatcher) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || ctx.Err() != nil {
		return false
	}
	select {
	case d.queue <- task{ctx: ctx, name: name, fn: fn}:
		return true
	default:
		d.logger.Warn("persistence queue full, dropping task", zap.String("task", name))
		return false
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	return d.group.Wait()
}

func (d *Dispatcher) work() error {
	for t := range d.queue {
		if t.ctx.Err() != nil {
			d.logger.Debug("session gone, dropping task", zap.String("task", t.name))
			continue
		}
		// The write must finish even if the session ends mid-flight.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), d.timeout)
		err := t.fn(ctx)
		cancel()
		if err != nil {
			d.logger.Warn("persistence task failed", zap.String("task", t.name), zap.Error(err))
		}
	}
	return nil
}
