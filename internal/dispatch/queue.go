package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

type Kind string

const (
	KindGameStart   Kind = "game_start"
	KindQuestion    Kind = "question"
	KindTick        Kind = "tick"
	KindAnswerAck   Kind = "answer_ack"
	KindElimination Kind = "elimination"
	KindSurvived    Kind = "survived"
	KindResult      Kind = "result"
	KindPrize       Kind = "prize"
)

type Priority int

const (
	PriorityNormal Priority = iota
	// PriorityHigh bypasses batching and sends immediately. Questions and
	// countdown ticks are time-sensitive and always ride this path.
	PriorityHigh
)

// Message is one outbound notification.
type Message struct {
	ID          string
	Kind        Kind
	GameID      string
	Recipient   string
	Text        string
	Options     []string
	QuestionIdx int // -1 when not scoped to a question
	Priority    Priority
}

// dedupKey identifies a notification for duplicate suppression: same game,
// same kind, same question, same recipient.
func (m Message) dedupKey() string {
	return fmt.Sprintf("%s:%s:%d:%s", m.GameID, m.Kind, m.QuestionIdx, m.Recipient)
}

type Options struct {
	BatchSize     int
	BatchWindow   time.Duration
	DedupTTL      time.Duration
	MaxRetries    uint
	RetryInterval time.Duration
}

// Queue batches normal-priority texts per recipient and retries every send
// with exponential backoff and bounded attempts.
type Queue struct {
	gw     Gateway
	dedup  Deduper
	logger *slog.Logger
	opts   Options

	mu      sync.Mutex
	batches map[string][]Message
	timers  map[string]*time.Timer
	closed  bool

	wg sync.WaitGroup
}

func NewQueue(gw Gateway, dedup Deduper, logger *slog.Logger, opts Options) *Queue {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 4
	}
	if opts.BatchWindow <= 0 {
		opts.BatchWindow = 500 * time.Millisecond
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 4
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 200 * time.Millisecond
	}
	return &Queue{
		gw:      gw,
		dedup:   dedup,
		logger:  logger,
		opts:    opts,
		batches: make(map[string][]Message),
		timers:  make(map[string]*time.Timer),
	}
}

// Add enqueues one message. Duplicates within the dedup TTL are dropped.
// Sends happen on background goroutines; Add never blocks on the gateway.
func (q *Queue) Add(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	seen, err := q.dedup.Seen(ctx, msg.dedupKey(), q.opts.DedupTTL)
	if err != nil {
		// Losing dedup means at worst a repeated notification; sending wins.
		q.logger.Warn("dedup check failed", "message_id", msg.ID, "error", err)
	} else if seen {
		q.logger.Debug("duplicate suppressed", "kind", msg.Kind, "recipient", msg.Recipient, "game_id", msg.GameID)
		return nil
	}

	if msg.Priority == PriorityHigh || msg.Kind == KindQuestion {
		q.async(msg)
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue closed")
	}

	q.batches[msg.Recipient] = append(q.batches[msg.Recipient], msg)
	if len(q.batches[msg.Recipient]) >= q.opts.BatchSize {
		q.flushLocked(msg.Recipient)
		return nil
	}
	if _, ok := q.timers[msg.Recipient]; !ok {
		recipient := msg.Recipient
		q.timers[recipient] = time.AfterFunc(q.opts.BatchWindow, func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			q.flushLocked(recipient)
		})
	}
	return nil
}

// flushLocked drains the recipient's batch into one combined send.
// Callers hold q.mu.
func (q *Queue) flushLocked(recipient string) {
	if t, ok := q.timers[recipient]; ok {
		t.Stop()
		delete(q.timers, recipient)
	}
	batch := q.batches[recipient]
	delete(q.batches, recipient)
	if len(batch) == 0 {
		return
	}

	combined := batch[0]
	if len(batch) > 1 {
		texts := make([]string, len(batch))
		for i, m := range batch {
			texts[i] = m.Text
		}
		combined.Text = strings.Join(texts, "\n\n")
	}
	q.async(combined)
}

func (q *Queue) async(msg Message) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.send(msg)
	}()
}

func (q *Queue) send(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	op := func() (struct{}, error) {
		if msg.Kind == KindQuestion {
			return struct{}{}, q.gw.SendQuestion(ctx, msg.Recipient, msg.Text, msg.Options, msg.QuestionIdx)
		}
		return struct{}{}, q.gw.SendText(ctx, msg.Recipient, msg.Text)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.opts.RetryInterval

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(q.opts.MaxRetries),
	)
	if err != nil {
		q.logger.Error("dropping message after retries",
			"message_id", msg.ID, "kind", msg.Kind, "recipient", msg.Recipient, "error", err)
		return
	}
	q.logger.Debug("message sent", "message_id", msg.ID, "kind", msg.Kind, "recipient", msg.Recipient)
}

// Close flushes every pending batch and waits for in-flight sends.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	for recipient := range q.batches {
		q.flushLocked(recipient)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
