package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playtrivia/knockout/internal/breaker"
	"github.com/playtrivia/knockout/internal/database"
	"github.com/playtrivia/knockout/internal/dispatch"
	"github.com/playtrivia/knockout/internal/gamestate"
	"github.com/playtrivia/knockout/internal/knockout"
	"github.com/playtrivia/knockout/internal/lock"
	"github.com/playtrivia/knockout/internal/migrations"
	"github.com/playtrivia/knockout/internal/orchestrator"
	"github.com/playtrivia/knockout/internal/store"
	"github.com/playtrivia/knockout/internal/workerpool"
)

type nullGateway struct{}

func (nullGateway) SendText(context.Context, string, string) error { return nil }
func (nullGateway) SendQuestion(context.Context, string, string, []string, int) error {
	return nil
}

// testRouter wires the full route tree against in-memory backends and
// returns the seeded game's id.
func testRouter(t *testing.T) (*chi.Mux, string) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	durable := store.New(db)
	id, err := durable.CreateGame(ctx, knockout.Game{
		ScheduledAt: time.Now().Add(time.Hour),
		PrizePool:   10,
	})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if err := durable.AddQuestion(ctx, id, knockout.Question{
		Index: 0, Text: "2+2?", Options: []string{"3", "4"}, CorrectOption: "4",
	}); err != nil {
		t.Fatalf("add question: %v", err)
	}
	if _, err := durable.AddPlayer(ctx, id, knockout.Player{Contact: "player-1"}); err != nil {
		t.Fatalf("add player: %v", err)
	}

	queue := dispatch.NewQueue(nullGateway{}, dispatch.NewMemoryDeduper(), logger, dispatch.Options{})
	t.Cleanup(queue.Close)
	pool := workerpool.New(2, time.Second, logger, orchestrator.PoolHandlers())
	orch := orchestrator.New(logger, gamestate.NewMemoryStore(), lock.NewMemoryLocker(), durable,
		queue, breaker.New(0.5, 5, time.Minute, 30*time.Second, logger), pool, orchestrator.Config{
			StartDelay:    time.Hour, // keep timers quiet during handler tests
			QuestionTimer: time.Hour,
		})

	r := chi.NewRouter()
	addRoutes(r, logger, Deps{Orchestrator: orch, DB: db})
	return r, id
}

func TestHealth(t *testing.T) {
	r, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var checks map[string]struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&checks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if checks["sqlite"].Status != "ok" {
		t.Errorf("sqlite check: %+v", checks["sqlite"])
	}
	if _, ok := checks["redis"]; ok {
		t.Error("redis check reported without a redis client")
	}
}

func TestStartGame(t *testing.T) {
	r, id := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/games/"+id+"/start", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	// Starting again is arbitrated away, not an error.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games/"+id+"/start", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("repeat start: expected 202, got %d", rec.Code)
	}
}

func TestStartGameNotFound(t *testing.T) {
	r, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/games/nope/start", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	r, id := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/games/"+id+"/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats orchestrator.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.GameID != id || stats.TotalPlayers != 1 || stats.TotalQuestions != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestAnswerEvent(t *testing.T) {
	r, id := testRouter(t)

	// Before the game starts, any answer resolves as not accepted.
	body, _ := json.Marshal(AnswerEvent{PlayerIdentity: "player-1", RawAnswerText: "4"})
	req := httptest.NewRequest(http.MethodPost, "/api/games/"+id+"/answers", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Accepted  bool `json:"accepted"`
		Correct   bool `json:"correct"`
		Duplicate bool `json:"duplicate"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Accepted {
		t.Error("answer before start must not be accepted")
	}
}

func TestAnswerEventValidation(t *testing.T) {
	r, id := testRouter(t)

	for name, body := range map[string]string{
		"malformed json":   "{",
		"missing identity": `{"rawAnswerText":"4"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/games/"+id+"/answers", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestForceEnd(t *testing.T) {
	r, id := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games/"+id+"/start", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: expected 202, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games/"+id+"/force-end", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("force-end: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games/"+id+"/stats", nil))
	var stats orchestrator.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Status != string(knockout.GameStatusFinished) {
		t.Errorf("expected finished, got %s", stats.Status)
	}
	if stats.Winners != 1 {
		t.Errorf("expected 1 winner, got %d", stats.Winners)
	}

	// A concluded game cannot be started again.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games/"+id+"/start", nil))
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("start after end: expected 412, got %d", rec.Code)
	}
}
