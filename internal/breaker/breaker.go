// Package breaker implements a per-operation circuit breaker: a rolling
// success/failure tally that opens when the recent failure rate crosses a
// threshold, making callers fail fast instead of retrying into an unhealthy
// dependency.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by callers that find the breaker open; it maps to the
// "service degraded" error class at the transport.
var ErrOpen = errors.New("circuit open: service degraded")

type opState struct {
	successes   int
	failures    int
	windowStart time.Time
	openUntil   time.Time
}

// Breaker is constructed once at startup and owned by the orchestrator;
// there is no package-level state.
type Breaker struct {
	mu         sync.Mutex
	ops        map[string]*opState
	threshold  float64
	minSamples int
	window     time.Duration
	cooldown   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func New(threshold float64, minSamples int, window, cooldown time.Duration, logger *slog.Logger) *Breaker {
	return &Breaker{
		ops:        make(map[string]*opState),
		threshold:  threshold,
		minSamples: minSamples,
		window:     window,
		cooldown:   cooldown,
		logger:     logger,
		now:        time.Now,
	}
}

func (b *Breaker) state(op string) *opState {
	s, ok := b.ops[op]
	if !ok {
		s = &opState{}
		b.ops[op] = s
	}
	return s
}

// rotateLocked starts a fresh tally window once the current one has aged
// out, so the failure rate reflects recent calls rather than the
// operation's lifetime history. Callers hold b.mu.
func (b *Breaker) rotateLocked(s *opState) {
	now := b.now()
	if !s.windowStart.IsZero() && now.Sub(s.windowStart) < b.window {
		return
	}
	s.windowStart = now
	s.successes, s.failures = 0, 0
}

// CanExecute gates entry to op. While open it returns false until the
// cool-down elapses, after which the window resets and one cohort of calls
// probes the dependency again.
func (b *Breaker) CanExecute(op string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(op)
	if s.openUntil.IsZero() {
		return true
	}
	if b.now().Before(s.openUntil) {
		return false
	}
	// Cool-down over: half-open with a fresh window.
	s.openUntil = time.Time{}
	s.windowStart = b.now()
	s.successes, s.failures = 0, 0
	b.logger.Info("circuit half-open", "op", op)
	return true
}

func (b *Breaker) RecordSuccess(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(op)
	b.rotateLocked(s)
	s.successes++
}

func (b *Breaker) RecordFailure(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state(op)
	b.rotateLocked(s)
	s.failures++
	total := s.successes + s.failures
	if total < b.minSamples || !s.openUntil.IsZero() {
		return
	}
	if rate := float64(s.failures) / float64(total); rate >= b.threshold {
		s.openUntil = b.now().Add(b.cooldown)
		b.logger.Warn("circuit opened", "op", op, "failure_rate", rate, "cooldown", b.cooldown)
	}
}
