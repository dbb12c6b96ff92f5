package loop

import (
	"context"
	"errors"
	"log/slog"
)

// ErrClosed is returned by Submit after Stop or after Run has returned.
var ErrClosed = errors.New("loop: closed")

// Submit queues req for the Run loop. The returned channel receives exactly
// one Result.
// Thread-safe: may be called from any goroutine.
func (l *Loop) Submit(req Request) (<-chan Result, error) {
	p := &pending{req: req, done: make(chan Result, 1)}
	if !l.queue.Enqueue(p) {
		return nil, ErrClosed
	}
	return p.done, nil
}

// Run handles submitted requests one at a time until ctx is cancelled or
// Stop is called. Requests still queued when ctx is cancelled receive the
// context error.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("loop starting")

	for {
		if p, ok := l.queue.TryDequeue(); ok {
			rep, err := l.Handle(ctx, p.req)
			p.done <- Result{Report: rep, Err: err}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("loop stopping: context cancelled")
			l.drain(ctx.Err())
			return ctx.Err()

		case <-l.queue.Wait():
			if l.queue.isClosed() && l.queue.Len() == 0 {
				slog.Info("loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the requests already queued
// have been handled.
func (l *Loop) Stop() {
	l.queue.Close()
}

func (l *Loop) drain(err error) {
	for _, p := range l.queue.Drain() {
		p.done <- Result{Err: err}
	}
}
