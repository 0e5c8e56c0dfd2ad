// Package gamestate holds the mutable state of every in-flight game in an
// externalized, TTL-backed store shared by all worker processes. The
// aggregate here is authoritative while a game runs; the durable store is a
// secondary record.
package gamestate

import (
	"context"
	"errors"
	"time"

	"github.com/playtrivia/knockout/internal/knockout"
)

var ErrNotFound = errors.New("game state not found")

// Store is the shared-state capability. Callers must treat the stored
// aggregate, not any local copy, as the source of truth; every mutation is a
// read-modify-write through Update under the appropriate lock.
type Store interface {
	Get(ctx context.Context, gameID string) (*knockout.GameState, error)
	Set(ctx context.Context, gameID string, st *knockout.GameState, ttl time.Duration) error
	Update(ctx context.Context, gameID string, ttl time.Duration, fn func(*knockout.GameState) error) (*knockout.GameState, error)
	Delete(ctx context.Context, gameID string) error
	ListActiveIDs(ctx context.Context) ([]string, error)
}
