// Package store is the durable record of games, questions, players and
// answers. It is consulted to hydrate a fresh aggregate on process start and
// receives an audit trail while a game runs; the shared state store stays
// authoritative for in-flight games.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playtrivia/knockout/internal/knockout"
)

var ErrNotFound = errors.New("not found")

const timeFormat = time.RFC3339Nano

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateGame(ctx context.Context, g knockout.Game) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = knockout.GameStatusScheduled
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO games (id, status, scheduled_at, prize_pool)
		VALUES (?, ?, ?, ?)
	`, g.ID, string(g.Status), g.ScheduledAt.UTC().Format(timeFormat), g.PrizePool)
	if err != nil {
		return "", fmt.Errorf("inserting game: %w", err)
	}
	return g.ID, nil
}

func (s *Store) AddQuestion(ctx context.Context, gameID string, q knockout.Question) error {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO questions (game_id, idx, text, options, correct_option)
		VALUES (?, ?, ?, ?, ?)
	`, gameID, q.Index, q.Text, string(opts), q.CorrectOption)
	return err
}

func (s *Store) AddPlayer(ctx context.Context, gameID string, p knockout.Player) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = knockout.PlayerStatusRegistered
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, game_id, contact, status, joined_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, gameID, p.Contact, string(p.Status), time.Now().UTC().Format(timeFormat))
	if err != nil {
		return "", fmt.Errorf("inserting player: %w", err)
	}
	return p.ID, nil
}

func (s *Store) GetGame(ctx context.Context, id string) (knockout.Game, error) {
	var (
		g           knockout.Game
		status      string
		scheduledAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, scheduled_at, prize_pool, current_question,
		       (SELECT COUNT(*) FROM questions q WHERE q.game_id = games.id)
		FROM games WHERE id = ?
	`, id).Scan(&g.ID, &status, &scheduledAt, &g.PrizePool, &g.CurrentQuestion, &g.QuestionCount)
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	g.Status = knockout.GameStatus(status)
	g.ScheduledAt, _ = time.Parse(timeFormat, scheduledAt)
	return g, nil
}

func (s *Store) ListQuestions(ctx context.Context, gameID string) ([]knockout.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, text, options, correct_option
		FROM questions WHERE game_id = ? ORDER BY idx
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []knockout.Question
	for rows.Next() {
		var q knockout.Question
		var opts string
		if err := rows.Scan(&q.Index, &q.Text, &opts, &q.CorrectOption); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
			return nil, fmt.Errorf("decoding options for question %d: %w", q.Index, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) ListPlayers(ctx context.Context, gameID string) ([]knockout.Player, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact, status, joined_at, eliminated_on, reason, eliminated_at, settled_at
		FROM players WHERE game_id = ? ORDER BY joined_at, id
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []knockout.Player
	for rows.Next() {
		var (
			p                                knockout.Player
			status, joinedAt                 string
			eliminatedOn                     sql.NullInt64
			reason, eliminatedAt, settledAt  sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Contact, &status, &joinedAt, &eliminatedOn, &reason, &eliminatedAt, &settledAt); err != nil {
			return nil, err
		}
		p.Status = knockout.PlayerStatus(status)
		p.JoinedAt, _ = time.Parse(timeFormat, joinedAt)
		if eliminatedOn.Valid {
			idx := int(eliminatedOn.Int64)
			p.EliminatedOn = &idx
		}
		if reason.Valid {
			r := knockout.EliminationReason(reason.String)
			p.Reason = &r
		}
		if eliminatedAt.Valid {
			if t, err := time.Parse(timeFormat, eliminatedAt.String); err == nil {
				p.EliminatedAt = &t
			}
		}
		if settledAt.Valid {
			if t, err := time.Parse(timeFormat, settledAt.String); err == nil {
				p.SettledAt = &t
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkStarted flips a game to in_progress. Only scheduled or registering
// games may start; anything else reports ErrNotFound to the caller.
func (s *Store) MarkStarted(ctx context.Context, gameID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE games SET status = 'in_progress', started_at = ?
		WHERE id = ? AND status IN ('scheduled', 'registering')
	`, time.Now().UTC().Format(timeFormat), gameID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetCurrentQuestion(ctx context.Context, gameID string, idx int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE games SET current_question = ? WHERE id = ?
	`, idx, gameID)
	return err
}

func (s *Store) FinishGame(ctx context.Context, gameID string, status knockout.GameStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE games SET status = ?, ended_at = ?
		WHERE id = ? AND status NOT IN ('finished', 'cancelled', 'expired')
	`, string(status), time.Now().UTC().Format(timeFormat), gameID)
	return err
}

// ListInProgressIDs returns games whose durable status is in_progress,
// used to rehydrate aggregates after a process restart.
func (s *Store) ListInProgressIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM games WHERE status = 'in_progress'`)
}

// ListExpiredPending returns games that never started: still scheduled or
// registering with a start time in the past.
func (s *Store) ListExpiredPending(ctx context.Context, now time.Time) ([]string, error) {
	return s.listIDs(ctx, `
		SELECT id FROM games
		WHERE status IN ('scheduled', 'registering') AND scheduled_at < ?
	`, now.UTC().Format(timeFormat))
}

func (s *Store) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordAnswer writes one audit row per (game, question, player). Duplicate
// deliveries are ignored so the first recorded answer stays authoritative.
func (s *Store) RecordAnswer(ctx context.Context, gameID string, questionIdx int, playerID, answer string, correct bool, receivedAt time.Time) error {
	correctInt := 0
	if correct {
		correctInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO answers (game_id, question_idx, player_id, answer, is_correct, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, gameID, questionIdx, playerID, answer, correctInt, receivedAt.UTC().Format(timeFormat))
	return err
}

// SyncPlayer mirrors a player's in-flight status into the durable record.
func (s *Store) SyncPlayer(ctx context.Context, gameID string, p knockout.Player) error {
	var (
		reason       *string
		eliminatedAt *string
		settledAt    *string
	)
	if p.Reason != nil {
		r := string(*p.Reason)
		reason = &r
	}
	if p.EliminatedAt != nil {
		t := p.EliminatedAt.UTC().Format(timeFormat)
		eliminatedAt = &t
	}
	if p.SettledAt != nil {
		t := p.SettledAt.UTC().Format(timeFormat)
		settledAt = &t
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE players SET status = ?, eliminated_on = ?, reason = ?, eliminated_at = ?, settled_at = ?
		WHERE id = ? AND game_id = ?
	`, string(p.Status), p.EliminatedOn, reason, eliminatedAt, settledAt, p.ID, gameID)
	return err
}

// Hydrate rebuilds a full aggregate from the durable record. The caller is
// responsible for resuming the interrupted question.
func (s *Store) Hydrate(ctx context.Context, gameID string) (*knockout.GameState, error) {
	g, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	questions, err := s.ListQuestions(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("loading questions: %w", err)
	}
	players, err := s.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("loading players: %w", err)
	}

	st := knockout.NewGameState(g, questions, players)
	// The question that was in flight when the process died is re-asked; a
	// game that never reached its first question resumes from the top.
	if g.CurrentQuestion >= 0 {
		st.Game.CurrentQuestion = g.CurrentQuestion - 1
		st.ResolvedThrough = g.CurrentQuestion - 1
	}
	return st, nil
}
