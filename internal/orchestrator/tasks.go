package orchestrator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/playtrivia/knockout/internal/knockout"
	"github.com/playtrivia/knockout/internal/reward"
	"github.com/playtrivia/knockout/internal/workerpool"
)

// Worker pool task types. The pool is only worth its correlation overhead
// for large batches; small games score and split inline.
const (
	TaskScoreAnswers  = "score_answers"
	TaskComputePrizes = "compute_prizes"
)

type ScoreRequest struct {
	Question knockout.Question
	Players  []knockout.Player
}

type ScoreOutcome struct {
	PlayerID string
	Answered bool
	Correct  bool
}

type PrizeRequest struct {
	Pool    decimal.Decimal
	Winners []string
}

// PoolHandlers returns the task handlers this engine registers with the
// worker pool. Both are pure functions over their payloads.
func PoolHandlers() map[string]workerpool.Handler {
	return map[string]workerpool.Handler{
		TaskScoreAnswers:  scoreTask,
		TaskComputePrizes: prizeTask,
	}
}

func scoreTask(_ context.Context, payload any) (any, error) {
	req, ok := payload.(ScoreRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}
	return scoreAnswers(req.Question, req.Players), nil
}

func prizeTask(_ context.Context, payload any) (any, error) {
	req, ok := payload.(PrizeRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}
	return reward.Distribute(req.Pool, req.Winners), nil
}

// scoreAnswers computes the round outcome for every alive player.
func scoreAnswers(q knockout.Question, players []knockout.Player) []ScoreOutcome {
	var out []ScoreOutcome
	for _, p := range players {
		if p.Status != knockout.PlayerStatusAlive {
			continue
		}
		o := ScoreOutcome{PlayerID: p.ID}
		if p.Answer != nil {
			o.Answered = true
			o.Correct = p.Answer.Correct
		}
		out = append(out, o)
	}
	return out
}
