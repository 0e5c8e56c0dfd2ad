package lock

import (
	"context"
	"log/slog"
	"time"
)

// Fallback degrades to in-process locking when the shared locker is
// unreachable, so a lock-service outage never drops a critical section and
// stalls a game.
//
// Reduced-guarantee mode: Acquire takes the local lease first, then the
// shared one. While the primary is down the lease only serializes within
// this process, which still absorbs its own duplicate timer fires and
// duplicate deliveries; cross-process exclusion resumes with the primary.
type Fallback struct {
	primary Locker
	local   Locker
	logger  *slog.Logger
}

func NewFallback(primary, local Locker, logger *slog.Logger) *Fallback {
	return &Fallback{primary: primary, local: local, logger: logger}
}

func (f *Fallback) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := f.local.Acquire(ctx, key, ttl)
	if err != nil || !ok {
		return ok, err
	}
	ok, err = f.primary.Acquire(ctx, key, ttl)
	if err != nil {
		f.logger.Warn("lock service unavailable, holding local lock only",
			"key", key, "error", err)
		return true, nil
	}
	if !ok {
		f.local.Release(ctx, key)
		return false, nil
	}
	return true, nil
}

func (f *Fallback) Release(ctx context.Context, key string) error {
	f.local.Release(ctx, key)
	if err := f.primary.Release(ctx, key); err != nil {
		// The shared lease expires on its own TTL.
		f.logger.Warn("releasing shared lock", "key", key, "error", err)
	}
	return nil
}
