package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playtrivia/knockout/internal/breaker"
	"github.com/playtrivia/knockout/internal/orchestrator"
	"github.com/playtrivia/knockout/internal/store"
)

func handleStartGame(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")

		err := orch.StartGame(r.Context(), gameID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "game not found")
		case errors.Is(err, orchestrator.ErrNoQuestions),
			errors.Is(err, orchestrator.ErrNoPlayers),
			errors.Is(err, orchestrator.ErrGameOver):
			writeError(w, http.StatusPreconditionFailed, err.Error())
		case errors.Is(err, breaker.ErrOpen):
			writeError(w, http.StatusServiceUnavailable, "service degraded, try again later")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		}
	}
}

func handleForceEnd(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")

		if err := orch.ForceEndGame(r.Context(), gameID); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
	}
}

func handleStats(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")

		stats, err := orch.Stats(r.Context(), gameID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "game not found")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			writeJSON(w, http.StatusOK, stats)
		}
	}
}

// AnswerEvent is the inbound answer shape, already resolved to a game by
// the transport in front of us.
type AnswerEvent struct {
	PlayerIdentity string    `json:"playerIdentity"`
	RawAnswerText  string    `json:"rawAnswerText"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// handleAnswerEvent accepts one at-least-once delivery. Late, duplicate and
// out-of-turn events come back 200 with accepted=false; the messaging
// channel must never see them as failures.
func handleAnswerEvent(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")

		var ev AnswerEvent
		if err := readJSON(r, &ev); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if ev.PlayerIdentity == "" {
			writeError(w, http.StatusBadRequest, "playerIdentity is required")
			return
		}
		if ev.ReceivedAt.IsZero() {
			ev.ReceivedAt = time.Now().UTC()
		}

		res, err := orch.HandleAnswer(r.Context(), gameID, ev.PlayerIdentity, ev.RawAnswerText, ev.ReceivedAt)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accepted":  res.Accepted,
			"correct":   res.Correct,
			"duplicate": res.Duplicate,
		})
	}
}
