package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers recently sent notifications so the same internal event
// firing twice (duplicate timer plus duplicate inbound event) produces one
// outbound message.
type Deduper interface {
	// Seen marks key and reports whether it was already marked within ttl.
	Seen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const dedupPrefix = "knockout:dedup:"

type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// MemoryDeduper is the in-process fallback; it only suppresses duplicates
// originating in this process, which is the degraded-mode guarantee.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (d *MemoryDeduper) Seen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if deadline, ok := d.seen[key]; ok && now.Before(deadline) {
		return true, nil
	}
	d.seen[key] = now.Add(ttl)
	// Opportunistic sweep keeps the map from growing across many games.
	if len(d.seen) > 4096 {
		for k, deadline := range d.seen {
			if now.After(deadline) {
				delete(d.seen, k)
			}
		}
	}
	return false, nil
}

// FallbackDeduper degrades to local suppression when the shared deduper is
// unreachable, mirroring the shared-state fallback strategy.
type FallbackDeduper struct {
	primary Deduper
	local   Deduper
}

func NewFallbackDeduper(primary, local Deduper) *FallbackDeduper {
	return &FallbackDeduper{primary: primary, local: local}
}

func (d *FallbackDeduper) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	seen, err := d.primary.Seen(ctx, key, ttl)
	if err == nil {
		return seen, nil
	}
	return d.local.Seen(ctx, key, ttl)
}
