package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeGateway struct {
	mu        sync.Mutex
	texts     []string
	questions []string
	failures  int
}

func (g *fakeGateway) SendText(_ context.Context, recipient, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures > 0 {
		g.failures--
		return errors.New("gateway unavailable")
	}
	g.texts = append(g.texts, recipient+": "+text)
	return nil
}

func (g *fakeGateway) SendQuestion(_ context.Context, recipient, text string, options []string, index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.questions = append(g.questions, recipient+": "+text)
	return nil
}

func (g *fakeGateway) sentTexts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.texts...)
}

func (g *fakeGateway) sentQuestions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.questions...)
}

func testQueue(gw Gateway, opts Options) *Queue {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewQueue(gw, NewMemoryDeduper(), logger, opts)
}

func TestHighPriorityBypassesBatching(t *testing.T) {
	gw := &fakeGateway{}
	q := testQueue(gw, Options{BatchSize: 100, BatchWindow: time.Hour})

	q.Add(context.Background(), Message{
		Kind: KindElimination, GameID: "g1", Recipient: "c1",
		Text: "you are out", QuestionIdx: 0, Priority: PriorityHigh,
	})
	q.Close()

	if got := gw.sentTexts(); len(got) != 1 {
		t.Fatalf("expected immediate send, got %v", got)
	}
}

func TestQuestionsUseInteractiveSend(t *testing.T) {
	gw := &fakeGateway{}
	q := testQueue(gw, Options{})

	q.Add(context.Background(), Message{
		Kind: KindQuestion, GameID: "g1", Recipient: "c1",
		Text: "2+2?", Options: []string{"3", "4", "5", "6"}, QuestionIdx: 0,
	})
	q.Close()

	if got := gw.sentQuestions(); len(got) != 1 {
		t.Fatalf("expected one interactive question, got %v", got)
	}
	if got := gw.sentTexts(); len(got) != 0 {
		t.Fatalf("question must not go out as plain text: %v", got)
	}
}

func TestBatchFlushesAtSizeThreshold(t *testing.T) {
	gw := &fakeGateway{}
	q := testQueue(gw, Options{BatchSize: 2, BatchWindow: time.Hour})
	ctx := context.Background()

	q.Add(ctx, Message{Kind: KindAnswerAck, GameID: "g1", Recipient: "c1", Text: "one", QuestionIdx: 1})
	q.Add(ctx, Message{Kind: KindAnswerAck, GameID: "g1", Recipient: "c1", Text: "two", QuestionIdx: 2})
	q.Close()

	got := gw.sentTexts()
	if len(got) != 1 {
		t.Fatalf("expected one combined send, got %v", got)
	}
	if !strings.Contains(got[0], "one") || !strings.Contains(got[0], "two") {
		t.Errorf("combined text missing parts: %q", got[0])
	}
}

func TestBatchFlushesOnWindow(t *testing.T) {
	gw := &fakeGateway{}
	q := testQueue(gw, Options{BatchSize: 100, BatchWindow: 20 * time.Millisecond})

	q.Add(context.Background(), Message{Kind: KindAnswerAck, GameID: "g1", Recipient: "c1", Text: "hello", QuestionIdx: 0})

	deadline := time.Now().Add(time.Second)
	for len(gw.sentTexts()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := gw.sentTexts(); len(got) != 1 {
		t.Fatalf("expected window flush, got %v", got)
	}
	q.Close()
}

func TestBatchesArePerRecipient(t *testing.T) {
	gw := &fakeGateway{}
	q := testQueue(gw, Options{BatchSize: 2, BatchWindow: time.Hour})
	ctx := context.Background()

	q.Add(ctx, Message{Kind: KindAnswerAck, GameID: "g1", Recipient: "c1", Text: "for c1", QuestionIdx: 1})
	q.Add(ctx, Message{Kind: KindAnswerAck, GameID: "g1", Recipient: "c2", Text: "for c2", QuestionIdx: 1})
	q.Close()

	got := gw.sentTexts()
	if len(got) != 2 {
		t.Fatalf("expected one send per recipient, got %v", got)
	}
}

func TestDuplicateEventsSendOnce(t *testing.T) {
	gw := &fakeGateway{}
	q := testQueue(gw, Options{})
	ctx := context.Background()

	msg := Message{
		Kind: KindElimination, GameID: "g1", Recipient: "c1",
		Text: "you are out", QuestionIdx: 3, Priority: PriorityHigh,
	}
	// Redundant timeout handler plus duplicate inbound event.
	q.Add(ctx, msg)
	q.Add(ctx, msg)
	q.Close()

	if got := gw.sentTexts(); len(got) != 1 {
		t.Fatalf("expected dedup to one send, got %v", got)
	}
}

func TestRetriesWithBackoff(t *testing.T) {
	gw := &fakeGateway{failures: 2}
	q := testQueue(gw, Options{MaxRetries: 4, RetryInterval: time.Millisecond})

	q.Add(context.Background(), Message{
		Kind: KindResult, GameID: "g1", Recipient: "c1",
		Text: "you won", QuestionIdx: -1, Priority: PriorityHigh,
	})
	q.Close()

	if got := gw.sentTexts(); len(got) != 1 {
		t.Fatalf("expected send after retries, got %v", got)
	}
}

func TestBoundedAttemptsGiveUp(t *testing.T) {
	gw := &fakeGateway{failures: 100}
	q := testQueue(gw, Options{MaxRetries: 2, RetryInterval: time.Millisecond})

	q.Add(context.Background(), Message{
		Kind: KindResult, GameID: "g1", Recipient: "c1",
		Text: "you won", QuestionIdx: -1, Priority: PriorityHigh,
	})
	q.Close()

	if got := gw.sentTexts(); len(got) != 0 {
		t.Fatalf("expected message dropped after bounded retries, got %v", got)
	}
}
