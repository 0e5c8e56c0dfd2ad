package server

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/playtrivia/knockout/internal/orchestrator"
)

// Deps carries everything the routes need. Redis may be nil when the
// process runs in memory-only degraded mode.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	DB           *sql.DB
	Redis        *redis.Client
}

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/healthz", handleHealth(logger, deps.DB, deps.Redis))

	r.Route("/api/games/{gameID}", func(r chi.Router) {
		r.Post("/start", handleStartGame(deps.Orchestrator))
		r.Post("/force-end", handleForceEnd(deps.Orchestrator))
		r.Get("/stats", handleStats(deps.Orchestrator))
		r.Post("/answers", handleAnswerEvent(deps.Orchestrator))
	})
}
