package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/playtrivia/knockout/internal/database"
	"github.com/playtrivia/knockout/internal/knockout"
	"github.com/playtrivia/knockout/internal/migrations"
)

func setup(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return New(db)
}

func seedGame(t *testing.T, s *Store, questions, players int) string {
	t.Helper()
	ctx := context.Background()

	id, err := s.CreateGame(ctx, knockout.Game{
		ScheduledAt: time.Now().Add(time.Hour),
		PrizePool:   100,
	})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	for i := 0; i < questions; i++ {
		err := s.AddQuestion(ctx, id, knockout.Question{
			Index:         i,
			Text:          "question",
			Options:       []string{"a", "b", "c", "d"},
			CorrectOption: "a",
		})
		if err != nil {
			t.Fatalf("add question %d: %v", i, err)
		}
	}
	for i := 0; i < players; i++ {
		if _, err := s.AddPlayer(ctx, id, knockout.Player{Contact: string(rune('a' + i))}); err != nil {
			t.Fatalf("add player %d: %v", i, err)
		}
	}
	return id
}

func TestGetGameNotFound(t *testing.T) {
	s := setup(t)
	if _, err := s.GetGame(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGameRoundTrip(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	id := seedGame(t, s, 3, 2)

	g, err := s.GetGame(ctx, id)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if g.Status != knockout.GameStatusScheduled {
		t.Errorf("expected scheduled, got %s", g.Status)
	}
	if g.QuestionCount != 3 {
		t.Errorf("expected 3 questions, got %d", g.QuestionCount)
	}
	if g.CurrentQuestion != -1 {
		t.Errorf("expected current question -1, got %d", g.CurrentQuestion)
	}

	questions, err := s.ListQuestions(ctx, id)
	if err != nil || len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d (err %v)", len(questions), err)
	}
	if len(questions[0].Options) != 4 {
		t.Errorf("options not round-tripped: %v", questions[0].Options)
	}

	players, err := s.ListPlayers(ctx, id)
	if err != nil || len(players) != 2 {
		t.Fatalf("expected 2 players, got %d (err %v)", len(players), err)
	}
}

func TestMarkStartedOnlyOnce(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	id := seedGame(t, s, 1, 1)

	if err := s.MarkStarted(ctx, id); err != nil {
		t.Fatalf("first start: %v", err)
	}
	// A twin process losing the race gets ErrNotFound, not a double start.
	if err := s.MarkStarted(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second start, got %v", err)
	}
}

func TestAnswersAreFirstWriteWins(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	id := seedGame(t, s, 1, 1)
	players, _ := s.ListPlayers(ctx, id)
	pid := players[0].ID

	now := time.Now()
	if err := s.RecordAnswer(ctx, id, 0, pid, "a", true, now); err != nil {
		t.Fatalf("record: %v", err)
	}
	// A retried delivery with different text must not overwrite.
	if err := s.RecordAnswer(ctx, id, 0, pid, "b", false, now.Add(time.Second)); err != nil {
		t.Fatalf("duplicate record: %v", err)
	}

	var answer string
	var correct int
	err := s.db.QueryRowContext(ctx, `
		SELECT answer, is_correct FROM answers WHERE game_id = ? AND question_idx = 0 AND player_id = ?
	`, id, pid).Scan(&answer, &correct)
	if err != nil {
		t.Fatalf("reading audit row: %v", err)
	}
	if answer != "a" || correct != 1 {
		t.Errorf("first answer not authoritative: %q correct=%d", answer, correct)
	}
}

func TestHydrateResumesInterruptedQuestion(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	id := seedGame(t, s, 3, 2)

	if err := s.MarkStarted(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.SetCurrentQuestion(ctx, id, 1); err != nil {
		t.Fatalf("set current question: %v", err)
	}

	st, err := s.Hydrate(ctx, id)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if st.Game.Status != knockout.GameStatusInProgress {
		t.Errorf("expected in_progress, got %s", st.Game.Status)
	}
	// Question 1 was in flight; the aggregate resumes so it is re-asked.
	if st.Game.CurrentQuestion != 0 || st.ResolvedThrough != 0 {
		t.Errorf("expected resume point before question 1, got current=%d resolved=%d",
			st.Game.CurrentQuestion, st.ResolvedThrough)
	}
	if len(st.Questions) != 3 || len(st.Players) != 2 {
		t.Errorf("aggregate incomplete: %d questions, %d players", len(st.Questions), len(st.Players))
	}
	for _, p := range st.Players {
		if p.Status != knockout.PlayerStatusAlive {
			t.Errorf("player %s not promoted to alive: %s", p.ID, p.Status)
		}
	}
}

func TestHydrateBeforeFirstQuestion(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	id := seedGame(t, s, 2, 1)
	s.MarkStarted(ctx, id)

	st, err := s.Hydrate(ctx, id)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if st.Game.CurrentQuestion != -1 || st.ResolvedThrough != -1 {
		t.Errorf("expected fresh resume point, got current=%d resolved=%d",
			st.Game.CurrentQuestion, st.ResolvedThrough)
	}
}

func TestListExpiredPending(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	past, err := s.CreateGame(ctx, knockout.Game{ScheduledAt: time.Now().Add(-time.Hour)})
	if err != nil {
		t.Fatalf("create past game: %v", err)
	}
	if _, err := s.CreateGame(ctx, knockout.Game{ScheduledAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("create future game: %v", err)
	}

	ids, err := s.ListExpiredPending(ctx, time.Now())
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(ids) != 1 || ids[0] != past {
		t.Errorf("expected only the past game, got %v", ids)
	}
}

func TestSyncPlayerPersistsElimination(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	id := seedGame(t, s, 1, 1)
	players, _ := s.ListPlayers(ctx, id)

	p := players[0]
	p.Status = knockout.PlayerStatusAlive
	p.Eliminate(0, knockout.ReasonTimeout, time.Now().UTC())
	if err := s.SyncPlayer(ctx, id, p); err != nil {
		t.Fatalf("sync: %v", err)
	}

	players, _ = s.ListPlayers(ctx, id)
	got := players[0]
	if got.Status != knockout.PlayerStatusEliminated {
		t.Errorf("expected eliminated, got %s", got.Status)
	}
	if got.Reason == nil || *got.Reason != knockout.ReasonTimeout {
		t.Errorf("reason not persisted: %v", got.Reason)
	}
	if got.EliminatedAt == nil {
		t.Error("elimination timestamp not persisted")
	}
	if got.EliminatedOn == nil || *got.EliminatedOn != 0 {
		t.Errorf("elimination question not persisted: %v", got.EliminatedOn)
	}
}
