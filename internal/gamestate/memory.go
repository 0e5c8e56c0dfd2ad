package gamestate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/playtrivia/knockout/internal/knockout"
)

// MemoryStore is an in-process Store used in tests and as the degraded
// fallback when the shared store is unreachable. It honors the same TTL
// semantics; entries past their deadline behave as absent and are swept
// lazily on access. Aggregates round-trip through JSON so callers never
// share memory with the stored copy, matching the remote store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data     []byte
	deadline time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, gameID string) (*knockout.GameState, error) {
	s.mu.RLock()
	e, ok := s.entries[gameID]
	s.mu.RUnlock()
	if !ok || s.now().After(e.deadline) {
		return nil, ErrNotFound
	}
	var st knockout.GameState
	if err := json.Unmarshal(e.data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *MemoryStore) Set(_ context.Context, gameID string, st *knockout.GameState, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[gameID] = memoryEntry{data: data, deadline: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, gameID string, ttl time.Duration, fn func(*knockout.GameState) error) (*knockout.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[gameID]
	if !ok || s.now().After(e.deadline) {
		return nil, ErrNotFound
	}
	var st knockout.GameState
	if err := json.Unmarshal(e.data, &st); err != nil {
		return nil, err
	}
	if err := fn(&st); err != nil {
		return nil, err
	}
	data, err := json.Marshal(&st)
	if err != nil {
		return nil, err
	}
	s.entries[gameID] = memoryEntry{data: data, deadline: s.now().Add(ttl)}
	return &st, nil
}

func (s *MemoryStore) Delete(_ context.Context, gameID string) error {
	s.mu.Lock()
	delete(s.entries, gameID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListActiveIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var ids []string
	for id, e := range s.entries {
		if now.After(e.deadline) {
			delete(s.entries, id)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
