package gamestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playtrivia/knockout/internal/knockout"
)

const keyPrefix = "knockout:game:"

// RedisStore is the production shared-state implementation. Aggregates are
// stored as JSON under a per-game key; every write refreshes the TTL so a
// live game never silently expires while active.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, gameID string) (*knockout.GameState, error) {
	data, err := s.client.Get(ctx, keyPrefix+gameID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading game state: %w", err)
	}
	var st knockout.GameState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding game state: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) Set(ctx context.Context, gameID string, st *knockout.GameState, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding game state: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+gameID, data, ttl).Err(); err != nil {
		return fmt.Errorf("writing game state: %w", err)
	}
	return nil
}

// Update performs a read-modify-write. Callers serialize concurrent writers
// with the distributed lock, so no optimistic retry loop is needed here.
func (s *RedisStore) Update(ctx context.Context, gameID string, ttl time.Duration, fn func(*knockout.GameState) error) (*knockout.GameState, error) {
	st, err := s.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	if err := s.Set(ctx, gameID, st, ttl); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *RedisStore) Delete(ctx context.Context, gameID string) error {
	if err := s.client.Del(ctx, keyPrefix+gameID).Err(); err != nil {
		return fmt.Errorf("deleting game state: %w", err)
	}
	return nil
}

func (s *RedisStore) ListActiveIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning game states: %w", err)
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, keyPrefix))
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}
