// Package orchestrator drives each game from scheduling through timed
// question rounds to a settled result. It is the only component that writes
// player status, and every mutation of an in-flight aggregate is a
// read-modify-write under the appropriate distributed lock.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playtrivia/knockout/internal/breaker"
	"github.com/playtrivia/knockout/internal/dispatch"
	"github.com/playtrivia/knockout/internal/gamestate"
	"github.com/playtrivia/knockout/internal/knockout"
	"github.com/playtrivia/knockout/internal/lock"
	"github.com/playtrivia/knockout/internal/reward"
	"github.com/playtrivia/knockout/internal/store"
	"github.com/playtrivia/knockout/internal/workerpool"
)

// Validation errors, surfaced to the admin caller and never retried.
var (
	ErrNoQuestions = errors.New("game has no questions")
	ErrNoPlayers   = errors.New("no players joined")
	ErrGameOver    = errors.New("game already concluded")
)

// Internal sentinels for Update closures. A stale mutation means another
// process already handled the event; it resolves silently.
var (
	errStale     = errors.New("stale event")
	errCorrupted = errors.New("corrupted aggregate")
	errDuplicate = errors.New("duplicate answer")
)

// tickMarks are the remaining-time points at which countdown reminders go
// out to players who have not answered yet.
var tickMarks = []time.Duration{5 * time.Second, 2 * time.Second}

const opStartGame = "startGame"

type Config struct {
	StartDelay    time.Duration
	QuestionTimer time.Duration
	QuestionGap   time.Duration
	StateTTL      time.Duration
	LockTTL       time.Duration
	SweepInterval time.Duration
	BulkThreshold int
	OpTimeout     time.Duration
}

func (c *Config) defaults() {
	if c.StartDelay <= 0 {
		c.StartDelay = 5 * time.Second
	}
	if c.QuestionTimer <= 0 {
		c.QuestionTimer = 10 * time.Second
	}
	if c.QuestionGap <= 0 {
		c.QuestionGap = 3 * time.Second
	}
	if c.StateTTL <= 0 {
		c.StateTTL = 2 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.BulkThreshold <= 0 {
		c.BulkThreshold = 50
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 15 * time.Second
	}
}

type Orchestrator struct {
	logger  *slog.Logger
	states  gamestate.Store
	locks   lock.Locker
	durable *store.Store
	queue   *dispatch.Queue
	breaker *breaker.Breaker
	pool    *workerpool.Pool
	cfg     Config
	timers  *timerRegistry
}

func New(logger *slog.Logger, states gamestate.Store, locks lock.Locker, durable *store.Store, queue *dispatch.Queue, brk *breaker.Breaker, pool *workerpool.Pool, cfg Config) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{
		logger:  logger,
		states:  states,
		locks:   locks,
		durable: durable,
		queue:   queue,
		breaker: brk,
		pool:    pool,
		cfg:     cfg,
		timers:  newTimerRegistry(),
	}
}

// StartGame moves a scheduled or registering game into play: registered
// players become alive, the aggregate is published to the shared store, a
// start announcement goes out, and the first question is scheduled.
func (o *Orchestrator) StartGame(ctx context.Context, gameID string) error {
	if !o.breaker.CanExecute(opStartGame) {
		return breaker.ErrOpen
	}

	g, err := o.durable.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err != nil {
		o.breaker.RecordFailure(opStartGame)
		return fmt.Errorf("loading game: %w", err)
	}
	switch g.Status {
	case knockout.GameStatusFinished, knockout.GameStatusCancelled, knockout.GameStatusExpired:
		return ErrGameOver
	}

	questions, err := o.durable.ListQuestions(ctx, gameID)
	if err != nil {
		o.breaker.RecordFailure(opStartGame)
		return fmt.Errorf("loading questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	players, err := o.durable.ListPlayers(ctx, gameID)
	if err != nil {
		o.breaker.RecordFailure(opStartGame)
		return fmt.Errorf("loading players: %w", err)
	}
	joined := 0
	for _, p := range players {
		if p.Status == knockout.PlayerStatusRegistered {
			joined++
		}
	}
	if joined == 0 {
		return ErrNoPlayers
	}

	// The durable status flip is the commit point: only one process wins it.
	if err := o.durable.MarkStarted(ctx, gameID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			o.logger.Info("game already started elsewhere", "game_id", gameID)
			return nil
		}
		o.breaker.RecordFailure(opStartGame)
		return fmt.Errorf("marking game started: %w", err)
	}

	st := knockout.NewGameState(g, questions, players)
	if err := o.states.Set(ctx, gameID, st, o.cfg.StateTTL); err != nil {
		o.breaker.RecordFailure(opStartGame)
		return fmt.Errorf("publishing game state: %w", err)
	}
	o.breaker.RecordSuccess(opStartGame)

	for _, p := range st.Alive() {
		o.queue.Add(ctx, dispatch.Message{
			Kind:        dispatch.KindGameStart,
			GameID:      gameID,
			Recipient:   p.Contact,
			Text:        fmt.Sprintf("The game is on! %d questions, %d players. First question in %d seconds.", len(questions), joined, int(o.cfg.StartDelay.Seconds())),
			QuestionIdx: -1,
			Priority:    dispatch.PriorityHigh,
		})
	}

	o.logger.Info("game started", "game_id", gameID, "players", joined, "questions", len(questions))
	o.scheduleStartQuestion(gameID, 0, o.cfg.StartDelay)
	return nil
}

// StartQuestion opens question idx: resets answer slots, sends the question
// to every alive player and arms the countdown. The (game, idx) lock plus
// the monotonic index guard make duplicate timer fires from any process a
// no-op.
func (o *Orchestrator) StartQuestion(ctx context.Context, gameID string, idx int) error {
	ok, err := o.lockOrSkip(ctx, lock.StartKey(gameID, idx))
	if !ok {
		return err
	}
	defer o.locks.Release(ctx, lock.StartKey(gameID, idx))

	st, err := o.states.Update(ctx, gameID, o.cfg.StateTTL, func(st *knockout.GameState) error {
		if st.Game.Status != knockout.GameStatusInProgress {
			return errStale
		}
		if st.Game.CurrentQuestion >= idx {
			return errStale
		}
		if idx >= len(st.Questions) {
			return errCorrupted
		}
		now := time.Now().UTC()
		st.Game.CurrentQuestion = idx
		st.QuestionStartedAt = &now
		for i := range st.Players {
			if st.Players[i].Status == knockout.PlayerStatusAlive {
				st.Players[i].Answer = nil
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, errStale), errors.Is(err, gamestate.ErrNotFound):
		return nil
	case errors.Is(err, errCorrupted):
		return o.failGame(ctx, gameID, "question index out of range")
	case err != nil:
		return fmt.Errorf("starting question %d: %w", idx, err)
	}

	// Secondary record only; the aggregate stays authoritative.
	if err := o.durable.SetCurrentQuestion(ctx, gameID, idx); err != nil {
		o.logger.Warn("recording current question", "game_id", gameID, "error", err)
	}

	q := st.Questions[idx]
	for _, p := range st.Alive() {
		o.queue.Add(ctx, dispatch.Message{
			Kind:        dispatch.KindQuestion,
			GameID:      gameID,
			Recipient:   p.Contact,
			Text:        q.Text,
			Options:     q.Options,
			QuestionIdx: idx,
			Priority:    dispatch.PriorityHigh,
		})
	}

	for _, mark := range tickMarks {
		if mark >= o.cfg.QuestionTimer {
			continue
		}
		mark := mark
		o.timers.schedule(gameID, tickName(idx, mark), o.cfg.QuestionTimer-mark, func() {
			o.runScheduled(gameID, "tick", func(ctx context.Context) error {
				return o.tick(ctx, gameID, idx, mark)
			})
		})
	}
	o.timers.schedule(gameID, resolveName(idx), o.cfg.QuestionTimer, func() {
		o.runScheduled(gameID, "resolve question", func(ctx context.Context) error {
			return o.ResolveQuestion(ctx, gameID, idx)
		})
	})

	o.logger.Info("question started", "game_id", gameID, "question", idx)
	return nil
}

// tick reminds players who have not answered how much time remains.
func (o *Orchestrator) tick(ctx context.Context, gameID string, idx int, remaining time.Duration) error {
	st, err := o.states.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, gamestate.ErrNotFound) {
			return nil
		}
		return err
	}
	if st.Game.Status != knockout.GameStatusInProgress || st.Game.CurrentQuestion != idx || st.ResolvedThrough >= idx {
		return nil
	}
	secs := int(remaining.Seconds())
	for _, p := range st.Alive() {
		if p.Answer != nil {
			continue
		}
		o.queue.Add(ctx, dispatch.Message{
			Kind:        dispatch.Kind(fmt.Sprintf("%s_%d", dispatch.KindTick, secs)),
			GameID:      gameID,
			Recipient:   p.Contact,
			Text:        fmt.Sprintf("%d seconds left!", secs),
			QuestionIdx: idx,
			Priority:    dispatch.PriorityHigh,
		})
	}
	return nil
}

// AnswerResult is returned to the transport layer. A non-accepted result is
// not an error: late, duplicate or out-of-turn deliveries resolve silently.
type AnswerResult struct {
	Accepted  bool
	Correct   bool
	Duplicate bool
}

// HandleAnswer records one player's answer for the current question. The
// first recorded answer is authoritative: a retried delivery returns the
// cached verdict even if it carries different text. When the last alive
// player answers, resolution runs at once instead of waiting out the clock.
func (o *Orchestrator) HandleAnswer(ctx context.Context, gameID, contact, raw string, receivedAt time.Time) (AnswerResult, error) {
	st, err := o.states.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, gamestate.ErrNotFound) {
			return AnswerResult{}, nil
		}
		return AnswerResult{}, fmt.Errorf("loading game state: %w", err)
	}
	idx := st.Game.CurrentQuestion
	if st.Game.Status != knockout.GameStatusInProgress || idx < 0 || st.ResolvedThrough >= idx {
		return AnswerResult{}, nil
	}
	player := st.PlayerByContact(contact)
	if player == nil || player.Status != knockout.PlayerStatusAlive {
		return AnswerResult{}, nil
	}
	playerID := player.ID

	key := lock.AnswerKey(gameID, idx, playerID)
	ok, err := o.lockOrSkip(ctx, key)
	if !ok {
		// A twin delivery is being handled right now; nothing to do.
		return AnswerResult{}, err
	}
	defer o.locks.Release(ctx, key)

	var (
		res         AnswerResult
		allAnswered bool
	)
	_, err = o.states.Update(ctx, gameID, o.cfg.StateTTL, func(st *knockout.GameState) error {
		if st.Game.Status != knockout.GameStatusInProgress || st.Game.CurrentQuestion != idx || st.ResolvedThrough >= idx {
			return errStale
		}
		p := st.PlayerByContact(contact)
		if p == nil || p.Status != knockout.PlayerStatusAlive {
			return errStale
		}
		if p.Answer != nil {
			res = AnswerResult{Accepted: true, Correct: p.Answer.Correct, Duplicate: true}
			return errDuplicate
		}
		q := st.CurrentQuestion()
		if q == nil {
			return errCorrupted
		}
		p.Answer = &knockout.Answer{
			Text:       raw,
			Correct:    q.AnswerMatches(raw),
			ReceivedAt: receivedAt.UTC(),
		}
		res = AnswerResult{Accepted: true, Correct: p.Answer.Correct}
		allAnswered = st.AllAnswered()
		return nil
	})
	switch {
	case errors.Is(err, errDuplicate):
		return res, nil
	case errors.Is(err, errStale), errors.Is(err, gamestate.ErrNotFound):
		return AnswerResult{}, nil
	case errors.Is(err, errCorrupted):
		return AnswerResult{}, o.failGame(ctx, gameID, "current question missing")
	case err != nil:
		return AnswerResult{}, fmt.Errorf("recording answer: %w", err)
	}

	if err := o.durable.RecordAnswer(ctx, gameID, idx, playerID, raw, res.Correct, receivedAt); err != nil {
		o.logger.Warn("writing answer audit", "game_id", gameID, "player_id", playerID, "error", err)
	}

	o.queue.Add(ctx, dispatch.Message{
		Kind:        dispatch.KindAnswerAck,
		GameID:      gameID,
		Recipient:   contact,
		Text:        "Answer locked in.",
		QuestionIdx: idx,
	})

	if allAnswered {
		// ResolveQuestion cancels the countdown once it holds the resolve
		// lock. A skipped or failed attempt leaves the deadline armed as the
		// safety net.
		o.logger.Info("all players answered, resolving early", "game_id", gameID, "question", idx)
		if err := o.ResolveQuestion(ctx, gameID, idx); err != nil {
			o.logger.Error("early resolution failed", "game_id", gameID, "question", idx, "error", err)
		}
	}
	return res, nil
}

// ResolveQuestion closes question idx: players whose stored answer is wrong
// or missing are eliminated, everyone previously alive hears their outcome,
// and the game either advances, or ends when nobody survived or this was
// the last question.
func (o *Orchestrator) ResolveQuestion(ctx context.Context, gameID string, idx int) error {
	ok, err := o.lockOrSkip(ctx, lock.ResolveKey(gameID, idx))
	if !ok {
		return err
	}
	defer o.locks.Release(ctx, lock.ResolveKey(gameID, idx))

	o.timers.cancelQuestion(gameID, idx, tickMarks)

	var outcomes []ScoreOutcome
	st, err := o.states.Update(ctx, gameID, o.cfg.StateTTL, func(st *knockout.GameState) error {
		if st.Game.Status != knockout.GameStatusInProgress || st.ResolvedThrough >= idx {
			return errStale
		}
		if st.Game.CurrentQuestion != idx {
			return errStale
		}
		if idx >= len(st.Questions) {
			return errCorrupted
		}

		outcomes = o.score(ctx, st.Questions[idx], st.Players)
		now := time.Now().UTC()
		for _, out := range outcomes {
			if out.Correct {
				continue
			}
			reason := knockout.ReasonWrongAnswer
			if !out.Answered {
				reason = knockout.ReasonTimeout
			}
			for i := range st.Players {
				if st.Players[i].ID == out.PlayerID {
					st.Players[i].Eliminate(idx, reason, now)
				}
			}
		}
		st.ResolvedThrough = idx
		st.QuestionStartedAt = nil
		return nil
	})
	switch {
	case errors.Is(err, errStale), errors.Is(err, gamestate.ErrNotFound):
		return nil
	case errors.Is(err, errCorrupted):
		return o.failGame(ctx, gameID, "question data missing mid-game")
	case err != nil:
		return fmt.Errorf("resolving question %d: %w", idx, err)
	}

	correct := st.Questions[idx].CorrectOption
	for _, out := range outcomes {
		p := o.playerByID(st, out.PlayerID)
		if p == nil {
			continue
		}
		msg := dispatch.Message{
			GameID:      gameID,
			Recipient:   p.Contact,
			QuestionIdx: idx,
			Priority:    dispatch.PriorityHigh,
		}
		switch {
		case out.Correct:
			msg.Kind = dispatch.KindSurvived
			msg.Text = "Correct! You are through to the next round."
		case out.Answered:
			msg.Kind = dispatch.KindElimination
			msg.Text = fmt.Sprintf("Wrong answer — the correct answer was %q. You are out of the game.", correct)
		default:
			msg.Kind = dispatch.KindElimination
			msg.Text = fmt.Sprintf("Time's up — the correct answer was %q. You are out of the game.", correct)
		}
		o.queue.Add(ctx, msg)
	}

	// Mirror eliminations into the audit record.
	for _, out := range outcomes {
		if out.Correct {
			continue
		}
		if p := o.playerByID(st, out.PlayerID); p != nil {
			if err := o.durable.SyncPlayer(ctx, gameID, *p); err != nil {
				o.logger.Warn("syncing player", "game_id", gameID, "player_id", p.ID, "error", err)
			}
		}
	}

	alive := len(st.Alive())
	o.logger.Info("question resolved", "game_id", gameID, "question", idx, "alive", alive)

	if alive == 0 || idx == len(st.Questions)-1 {
		return o.EndGame(ctx, gameID)
	}
	o.scheduleStartQuestion(gameID, idx+1, o.cfg.QuestionGap)
	return nil
}

// EndGame settles a game: survivors become winners, the prize pool is
// split, everyone is notified, the aggregate is cleared and the durable
// record goes to finished. Safe to call more than once.
func (o *Orchestrator) EndGame(ctx context.Context, gameID string) error {
	o.timers.cancelGame(gameID)

	st, err := o.states.Update(ctx, gameID, o.cfg.StateTTL, func(st *knockout.GameState) error {
		if st.Game.Status != knockout.GameStatusInProgress {
			return errStale
		}
		now := time.Now().UTC()
		for i := range st.Players {
			st.Players[i].Settle(now)
		}
		st.Game.Status = knockout.GameStatusFinished
		return nil
	})
	if errors.Is(err, errStale) || errors.Is(err, gamestate.ErrNotFound) {
		// Someone already settled it; the durable flip below is idempotent.
		if err := o.durable.FinishGame(ctx, gameID, knockout.GameStatusFinished); err != nil {
			o.logger.Warn("finishing game record", "game_id", gameID, "error", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("settling game: %w", err)
	}

	// Winners in stable join order: the persisted player list is ordered by
	// join time, which fixes who receives the leftover cents.
	var winners []knockout.Player
	for _, p := range st.Players {
		if p.Status == knockout.PlayerStatusWinner {
			winners = append(winners, p)
		}
	}

	dist := o.distribute(ctx, st.Game.PrizePool, winners)
	for i, p := range winners {
		amount := dist.Shares[i].Amount
		o.queue.Add(ctx, dispatch.Message{
			Kind:        dispatch.KindPrize,
			GameID:      gameID,
			Recipient:   p.Contact,
			Text:        fmt.Sprintf("You won! Your share of the prize pool: %s.", amount.StringFixed(2)),
			QuestionIdx: -1,
			Priority:    dispatch.PriorityHigh,
		})
		if err := o.durable.SyncPlayer(ctx, gameID, p); err != nil {
			o.logger.Warn("syncing winner", "game_id", gameID, "player_id", p.ID, "error", err)
		}
	}
	if len(winners) == 0 {
		o.logger.Info("no survivors, prize pool unclaimed", "game_id", gameID, "pool", st.Game.PrizePool)
	}

	if err := o.states.Delete(ctx, gameID); err != nil {
		o.logger.Warn("clearing game state", "game_id", gameID, "error", err)
	}
	if err := o.durable.FinishGame(ctx, gameID, knockout.GameStatusFinished); err != nil {
		o.logger.Warn("finishing game record", "game_id", gameID, "error", err)
	}

	o.logger.Info("game finished", "game_id", gameID, "winners", len(winners))
	return nil
}

// ForceEndGame is the operator override: every still-alive player is
// treated as a winner and the game settles immediately.
func (o *Orchestrator) ForceEndGame(ctx context.Context, gameID string) error {
	o.logger.Info("force ending game", "game_id", gameID)
	return o.EndGame(ctx, gameID)
}

// distribute runs the prize split, through the worker pool for large winner
// sets, inline otherwise. A pool failure falls back to the inline path; the
// split must never be lost to a timeout.
func (o *Orchestrator) distribute(ctx context.Context, pool float64, winners []knockout.Player) reward.Distribution {
	contacts := make([]string, len(winners))
	for i, p := range winners {
		contacts[i] = p.Contact
	}
	amount := decimal.NewFromFloat(pool)

	if len(winners) >= o.cfg.BulkThreshold {
		v, err := o.pool.Submit(ctx, TaskComputePrizes, PrizeRequest{Pool: amount, Winners: contacts})
		if err == nil {
			return v.(reward.Distribution)
		}
		o.logger.Warn("prize worker failed, computing inline", "error", err)
	}
	return reward.Distribute(amount, contacts)
}

// score runs answer scoring, offloaded for large player sets.
func (o *Orchestrator) score(ctx context.Context, q knockout.Question, players []knockout.Player) []ScoreOutcome {
	if len(players) >= o.cfg.BulkThreshold {
		v, err := o.pool.Submit(ctx, TaskScoreAnswers, ScoreRequest{Question: q, Players: players})
		if err == nil {
			return v.([]ScoreOutcome)
		}
		o.logger.Warn("scoring worker failed, scoring inline", "error", err)
	}
	return scoreAnswers(q, players)
}

// Stats summarizes one game for the control surface.
type Stats struct {
	GameID          string  `json:"gameId"`
	Status          string  `json:"status"`
	CurrentQuestion int     `json:"currentQuestion"`
	TotalQuestions  int     `json:"totalQuestions"`
	TotalPlayers    int     `json:"totalPlayers"`
	Alive           int     `json:"alive"`
	Eliminated      int     `json:"eliminated"`
	Winners         int     `json:"winners"`
	PrizePool       float64 `json:"prizePool"`
}

func (o *Orchestrator) Stats(ctx context.Context, gameID string) (Stats, error) {
	st, err := o.states.Get(ctx, gameID)
	if err == nil {
		return statsFrom(st), nil
	}
	if !errors.Is(err, gamestate.ErrNotFound) {
		return Stats{}, fmt.Errorf("loading game state: %w", err)
	}

	// Not in flight: answer from the durable record.
	g, err := o.durable.GetGame(ctx, gameID)
	if err != nil {
		return Stats{}, err
	}
	players, err := o.durable.ListPlayers(ctx, gameID)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		GameID:          g.ID,
		Status:          string(g.Status),
		CurrentQuestion: g.CurrentQuestion,
		TotalQuestions:  g.QuestionCount,
		TotalPlayers:    len(players),
		PrizePool:       g.PrizePool,
	}
	for _, p := range players {
		switch p.Status {
		case knockout.PlayerStatusAlive:
			s.Alive++
		case knockout.PlayerStatusEliminated:
			s.Eliminated++
		case knockout.PlayerStatusWinner:
			s.Winners++
		}
	}
	return s, nil
}

func statsFrom(st *knockout.GameState) Stats {
	s := Stats{
		GameID:          st.Game.ID,
		Status:          string(st.Game.Status),
		CurrentQuestion: st.Game.CurrentQuestion,
		TotalQuestions:  len(st.Questions),
		TotalPlayers:    len(st.Players),
		PrizePool:       st.Game.PrizePool,
	}
	for _, p := range st.Players {
		switch p.Status {
		case knockout.PlayerStatusAlive:
			s.Alive++
		case knockout.PlayerStatusEliminated:
			s.Eliminated++
		case knockout.PlayerStatusWinner:
			s.Winners++
		}
	}
	return s
}

// failGame handles fatal per-game errors: the game is cancelled and cleaned
// up, and the rest of the process keeps serving other games.
func (o *Orchestrator) failGame(ctx context.Context, gameID, reason string) error {
	o.logger.Error("force-ending corrupted game", "game_id", gameID, "reason", reason)
	o.timers.cancelGame(gameID)
	if err := o.states.Delete(ctx, gameID); err != nil {
		o.logger.Warn("clearing corrupted game state", "game_id", gameID, "error", err)
	}
	if err := o.durable.FinishGame(ctx, gameID, knockout.GameStatusCancelled); err != nil {
		o.logger.Warn("cancelling game record", "game_id", gameID, "error", err)
	}
	return nil
}

// lockOrSkip acquires key, treating both contention and lock-service
// failure as "someone else is handling this": the lease-based design means
// giving up is always safe, the TTL or a twin process will move the game
// forward.
func (o *Orchestrator) lockOrSkip(ctx context.Context, key string) (bool, error) {
	ok, err := o.locks.Acquire(ctx, key, o.cfg.LockTTL)
	if err != nil {
		o.logger.Warn("lock acquire failed", "key", key, "error", err)
		return false, nil
	}
	return ok, nil
}

func (o *Orchestrator) playerByID(st *knockout.GameState, id string) *knockout.Player {
	for i := range st.Players {
		if st.Players[i].ID == id {
			return &st.Players[i]
		}
	}
	return nil
}

func (o *Orchestrator) scheduleStartQuestion(gameID string, idx int, after time.Duration) {
	o.timers.schedule(gameID, startName(idx), after, func() {
		o.runScheduled(gameID, "start question", func(ctx context.Context) error {
			return o.StartQuestion(ctx, gameID, idx)
		})
	})
}

// runScheduled is the entry point for every timer callback. Failures are
// contained to their game: logged, never propagated, never panicking the
// process.
func (o *Orchestrator) runScheduled(gameID, what string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("scheduled task panicked", "game_id", gameID, "task", what, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.OpTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		o.logger.Error("scheduled task failed", "game_id", gameID, "task", what, "error", err)
	}
}
