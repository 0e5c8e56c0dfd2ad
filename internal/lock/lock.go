// Package lock provides cross-process mutual exclusion built on atomic
// set-if-absent-with-expiry. Every lock carries a lease so a crashed holder
// can never deadlock a game; "not acquired" means someone else is already
// handling the critical section and is a normal outcome, not an error.
package lock

import (
	"context"
	"fmt"
	"time"
)

type Locker interface {
	// Acquire returns true if the caller now owns key until ttl elapses or
	// Release is called, whichever comes first.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// StartKey scopes the critical section for starting question idx.
func StartKey(gameID string, idx int) string {
	return fmt.Sprintf("game:%s:q:%d:start", gameID, idx)
}

// ResolveKey scopes the critical section for resolving question idx.
func ResolveKey(gameID string, idx int) string {
	return fmt.Sprintf("game:%s:q:%d:resolve", gameID, idx)
}

// AnswerKey scopes one player's answer recording for question idx, absorbing
// duplicate or near-simultaneous deliveries of the same inbound event.
func AnswerKey(gameID string, idx int, playerID string) string {
	return fmt.Sprintf("game:%s:q:%d:p:%s", gameID, idx, playerID)
}
