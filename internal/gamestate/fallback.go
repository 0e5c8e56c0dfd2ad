package gamestate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/playtrivia/knockout/internal/knockout"
)

// Fallback degrades to a process-local store when the primary is
// unreachable, so call sites never branch on dependency availability.
//
// Reduced-guarantee mode: while the primary is down, cross-process
// visibility and crash recovery are lost for any write that lands in the
// local store. Writes are mirrored locally on every successful primary call
// too, so a later degraded read still sees the freshest state this process
// knows about.
type Fallback struct {
	primary Store
	local   Store
	logger  *slog.Logger
}

func NewFallback(primary, local Store, logger *slog.Logger) *Fallback {
	return &Fallback{primary: primary, local: local, logger: logger}
}

func (f *Fallback) degraded(op, gameID string, err error) {
	f.logger.Warn("shared state store unavailable, using local memory",
		"op", op, "game_id", gameID, "error", err)
}

func (f *Fallback) Get(ctx context.Context, gameID string) (*knockout.GameState, error) {
	st, err := f.primary.Get(ctx, gameID)
	if err == nil || errors.Is(err, ErrNotFound) {
		return st, err
	}
	f.degraded("get", gameID, err)
	return f.local.Get(ctx, gameID)
}

func (f *Fallback) Set(ctx context.Context, gameID string, st *knockout.GameState, ttl time.Duration) error {
	// Local mirror first: it cannot fail on availability and keeps degraded
	// reads coherent within this process.
	if err := f.local.Set(ctx, gameID, st, ttl); err != nil {
		return err
	}
	if err := f.primary.Set(ctx, gameID, st, ttl); err != nil {
		f.degraded("set", gameID, err)
	}
	return nil
}

func (f *Fallback) Update(ctx context.Context, gameID string, ttl time.Duration, fn func(*knockout.GameState) error) (*knockout.GameState, error) {
	var fnErr error
	st, err := f.primary.Update(ctx, gameID, ttl, func(st *knockout.GameState) error {
		fnErr = fn(st)
		return fnErr
	})
	if err == nil {
		f.local.Set(ctx, gameID, st, ttl)
		return st, nil
	}
	// A rejected mutation or a missing aggregate is a domain outcome, not a
	// dependency failure.
	if fnErr != nil || errors.Is(err, ErrNotFound) {
		return nil, err
	}
	f.degraded("update", gameID, err)
	return f.local.Update(ctx, gameID, ttl, fn)
}

func (f *Fallback) Delete(ctx context.Context, gameID string) error {
	f.local.Delete(ctx, gameID)
	if err := f.primary.Delete(ctx, gameID); err != nil {
		f.degraded("delete", gameID, err)
	}
	return nil
}

func (f *Fallback) ListActiveIDs(ctx context.Context) ([]string, error) {
	ids, err := f.primary.ListActiveIDs(ctx)
	if err == nil {
		return ids, nil
	}
	f.degraded("list", "", err)
	return f.local.ListActiveIDs(ctx)
}
