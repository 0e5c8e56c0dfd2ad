// Package workerpool offloads CPU-bound batch work (bulk answer scoring,
// prize arithmetic) to a bounded set of workers. Each submission is one
// request/response round-trip with its own timeout; a worker slot is always
// released on completion, error or timeout.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrWorkerTimeout is returned when a task misses its deadline. The worker
// goroutine is cancelled and its slot reclaimed regardless.
var ErrWorkerTimeout = errors.New("worker timeout")

// Handler executes one task type. Handlers must honor ctx cancellation.
type Handler func(ctx context.Context, payload any) (any, error)

type result struct {
	value any
	err   error
}

type Pool struct {
	slots    *semaphore.Weighted
	handlers map[string]Handler
	timeout  time.Duration
	logger   *slog.Logger
}

func New(size int64, timeout time.Duration, logger *slog.Logger, handlers map[string]Handler) *Pool {
	return &Pool{
		slots:    semaphore.NewWeighted(size),
		handlers: handlers,
		timeout:  timeout,
		logger:   logger,
	}
}

// Submit runs payload through the handler registered for taskType and
// returns its result, or ErrWorkerTimeout once the pool's timeout elapses.
func (p *Pool) Submit(ctx context.Context, taskType string, payload any) (any, error) {
	h, ok := p.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring worker: %w", err)
	}

	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	done := make(chan result, 1)

	go func() {
		defer p.slots.Release(1)
		defer cancel()
		v, err := h(tctx, payload)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			p.logger.Warn("worker task timed out", "task_type", taskType, "timeout", p.timeout)
			return nil, ErrWorkerTimeout
		}
		return nil, tctx.Err()
	}
}
