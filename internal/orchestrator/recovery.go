package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playtrivia/knockout/internal/gamestate"
	"github.com/playtrivia/knockout/internal/knockout"
	"github.com/playtrivia/knockout/internal/store"
)

// Recover resumes every game whose durable status is in_progress. A game
// with a live aggregate gets its timers re-armed; a game whose aggregate is
// gone is rehydrated from the durable record and its interrupted question
// re-asked.
func (o *Orchestrator) Recover(ctx context.Context) error {
	ids, err := o.durable.ListInProgressIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing in-progress games: %w", err)
	}

	for _, id := range ids {
		st, err := o.states.Get(ctx, id)
		if errors.Is(err, gamestate.ErrNotFound) {
			st, err = o.durable.Hydrate(ctx, id)
			if err != nil {
				o.logger.Error("hydrating game", "game_id", id, "error", err)
				o.failGame(ctx, id, "unrecoverable durable record")
				continue
			}
			if err := o.states.Set(ctx, id, st, o.cfg.StateTTL); err != nil {
				o.logger.Error("publishing recovered state", "game_id", id, "error", err)
				continue
			}
			o.logger.Info("rehydrated game from durable store", "game_id", id,
				"resume_question", st.ResolvedThrough+1)
		} else if err != nil {
			o.logger.Error("loading game state", "game_id", id, "error", err)
			continue
		}
		o.resume(st)
	}
	return nil
}

// resume re-arms the timer chain for a recovered aggregate. The lock plus
// index guards make this safe even when a twin process is already driving
// the same game.
func (o *Orchestrator) resume(st *knockout.GameState) {
	gameID := st.Game.ID
	if st.Game.CurrentQuestion > st.ResolvedThrough {
		// A question was in flight; resolve it when its time is up.
		idx := st.Game.CurrentQuestion
		remaining := o.cfg.QuestionTimer
		if st.QuestionStartedAt != nil {
			remaining = time.Until(st.QuestionStartedAt.Add(o.cfg.QuestionTimer))
			if remaining < 0 {
				remaining = 0
			}
		}
		o.timers.schedule(gameID, resolveName(idx), remaining, func() {
			o.runScheduled(gameID, "resolve question", func(ctx context.Context) error {
				return o.ResolveQuestion(ctx, gameID, idx)
			})
		})
		return
	}
	o.scheduleStartQuestion(gameID, st.ResolvedThrough+1, o.cfg.QuestionGap)
}

// Run drives the periodic sweep until ctx is cancelled: games that never
// started past their start time are expired, and aggregates abandoned by
// every process are cleaned up.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.sweep(ctx)
		}
	}
}

func (o *Orchestrator) sweep(ctx context.Context) {
	now := time.Now().UTC()

	// Pre-start games whose scheduled time passed without starting.
	ids, err := o.durable.ListExpiredPending(ctx, now)
	if err != nil {
		o.logger.Warn("listing expired games", "error", err)
	}
	for _, id := range ids {
		if err := o.durable.FinishGame(ctx, id, knockout.GameStatusExpired); err != nil {
			o.logger.Warn("expiring game", "game_id", id, "error", err)
			continue
		}
		o.logger.Info("expired game that never started", "game_id", id)
	}

	// Aggregates whose durable record is gone or already terminal are
	// abandoned; their players are settled out with an external expiry.
	active, err := o.states.ListActiveIDs(ctx)
	if err != nil {
		o.logger.Warn("listing active aggregates", "error", err)
		return
	}
	for _, id := range active {
		g, err := o.durable.GetGame(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			o.abandon(ctx, id, "durable record missing")
		case err != nil:
			o.logger.Warn("checking durable game", "game_id", id, "error", err)
		case g.Status != knockout.GameStatusInProgress:
			o.abandon(ctx, id, "durable status "+string(g.Status))
		}
	}
}

// abandon clears an orphaned aggregate, eliminating its remaining players
// with an external-expiry reason so their records are not left dangling.
func (o *Orchestrator) abandon(ctx context.Context, gameID, why string) {
	o.logger.Warn("abandoning stale aggregate", "game_id", gameID, "reason", why)
	o.timers.cancelGame(gameID)

	st, err := o.states.Get(ctx, gameID)
	if err == nil {
		now := time.Now().UTC()
		for i := range st.Players {
			st.Players[i].Eliminate(st.Game.CurrentQuestion, knockout.ReasonExternalExpiry, now)
			if st.Players[i].Status == knockout.PlayerStatusEliminated {
				if err := o.durable.SyncPlayer(ctx, gameID, st.Players[i]); err != nil {
					o.logger.Warn("syncing abandoned player", "game_id", gameID, "error", err)
				}
			}
		}
	}
	if err := o.states.Delete(ctx, gameID); err != nil {
		o.logger.Warn("deleting stale aggregate", "game_id", gameID, "error", err)
	}
}
