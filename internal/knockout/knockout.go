// Package knockout defines the core domain types for the elimination quiz.
// It has zero external dependencies; everything here is pure Go.
package knockout

import (
	"strings"
	"time"
)

type GameStatus string

const (
	GameStatusScheduled   GameStatus = "scheduled"
	GameStatusRegistering GameStatus = "registering"
	GameStatusInProgress  GameStatus = "in_progress"
	GameStatusFinished    GameStatus = "finished"
	GameStatusCancelled   GameStatus = "cancelled"
	GameStatusExpired     GameStatus = "expired"
)

type PlayerStatus string

const (
	PlayerStatusRegistered PlayerStatus = "registered"
	PlayerStatusAlive      PlayerStatus = "alive"
	PlayerStatusEliminated PlayerStatus = "eliminated"
	PlayerStatusWinner     PlayerStatus = "winner"
	PlayerStatusSpectator  PlayerStatus = "spectator"
)

// EliminationReason records why a player left the game.
type EliminationReason string

const (
	ReasonWrongAnswer    EliminationReason = "wrong_answer"
	ReasonTimeout        EliminationReason = "timeout"
	ReasonExternalExpiry EliminationReason = "external_expiry"
)

type Game struct {
	ID              string     `json:"id"`
	Status          GameStatus `json:"status"`
	ScheduledAt     time.Time  `json:"scheduledAt"`
	QuestionCount   int        `json:"questionCount"`
	CurrentQuestion int        `json:"currentQuestion"` // -1 until the first question starts
	PrizePool       float64    `json:"prizePool"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type Question struct {
	Index         int      `json:"index"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption"`
}

// Answer is one recorded response for the current question. The first
// recorded answer is authoritative; retried deliveries return the cached
// verdict even if they carry different text.
type Answer struct {
	Text       string    `json:"text"`
	Correct    bool      `json:"correct"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type Player struct {
	ID            string             `json:"id"`
	Contact       string             `json:"contact"` // stable external messaging identifier
	Status        PlayerStatus       `json:"status"`
	JoinedAt      time.Time          `json:"joinedAt"`
	Answer        *Answer            `json:"answer,omitempty"` // reset every question
	EliminatedOn  *int               `json:"eliminatedOn,omitempty"`
	Reason        *EliminationReason `json:"reason,omitempty"`
	EliminatedAt  *time.Time         `json:"eliminatedAt,omitempty"`
	SettledAt     *time.Time         `json:"settledAt,omitempty"` // winners only
}

// GameState is the aggregate root: the full in-flight state of one game,
// stored and locked as a single unit in the shared state store.
type GameState struct {
	Game              Game       `json:"game"`
	Questions         []Question `json:"questions"`
	Players           []Player   `json:"players"`
	QuestionStartedAt *time.Time `json:"questionStartedAt,omitempty"`
	ResolvedThrough   int        `json:"resolvedThrough"` // highest question index already resolved, -1 initially
}

// NewGameState builds the initial aggregate for a game entering play.
// Registered players are promoted to alive; everyone else keeps their status.
func NewGameState(g Game, questions []Question, players []Player) *GameState {
	g.Status = GameStatusInProgress
	g.CurrentQuestion = -1
	g.QuestionCount = len(questions)
	for i := range players {
		if players[i].Status == PlayerStatusRegistered {
			players[i].Status = PlayerStatusAlive
		}
	}
	return &GameState{
		Game:            g,
		Questions:       questions,
		Players:         players,
		ResolvedThrough: -1,
	}
}

// AnswerMatches reports whether raw matches the question's correct option,
// compared case-insensitively after trimming.
func (q Question) AnswerMatches(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), strings.TrimSpace(q.CorrectOption))
}

// CurrentQuestion returns the question in play, or nil when none is.
func (s *GameState) CurrentQuestion() *Question {
	idx := s.Game.CurrentQuestion
	if idx < 0 || idx >= len(s.Questions) {
		return nil
	}
	return &s.Questions[idx]
}

// PlayerByContact finds a player by external contact identifier.
func (s *GameState) PlayerByContact(contact string) *Player {
	for i := range s.Players {
		if s.Players[i].Contact == contact {
			return &s.Players[i]
		}
	}
	return nil
}

// Alive returns the players still in the game, in join order.
func (s *GameState) Alive() []*Player {
	var out []*Player
	for i := range s.Players {
		if s.Players[i].Status == PlayerStatusAlive {
			out = append(out, &s.Players[i])
		}
	}
	return out
}

// AllAnswered reports whether every alive player has an answer recorded.
func (s *GameState) AllAnswered() bool {
	any := false
	for i := range s.Players {
		if s.Players[i].Status != PlayerStatusAlive {
			continue
		}
		any = true
		if s.Players[i].Answer == nil {
			return false
		}
	}
	return any
}

// Eliminate marks a player out of the game. It is a no-op unless the player
// is currently alive, which keeps status transitions monotonic.
func (p *Player) Eliminate(questionIdx int, reason EliminationReason, at time.Time) {
	if p.Status != PlayerStatusAlive {
		return
	}
	p.Status = PlayerStatusEliminated
	p.EliminatedOn = &questionIdx
	p.Reason = &reason
	p.EliminatedAt = &at
}

// Settle marks an alive player as a winner.
func (p *Player) Settle(at time.Time) {
	if p.Status != PlayerStatusAlive {
		return
	}
	p.Status = PlayerStatusWinner
	p.SettledAt = &at
}
