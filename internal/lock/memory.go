package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker mirrors the Redis lease semantics in-process, for tests and
// for the single-process degraded mode. It only serializes within one
// process; that is the reduced guarantee that mode accepts.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if deadline, ok := l.held[key]; ok && l.now().Before(deadline) {
		return false, nil
	}
	l.held[key] = l.now().Add(ttl)
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
	return nil
}
