package breaker

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testBreaker() *Breaker {
	return New(0.5, 4, time.Minute, 30*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClosedByDefault(t *testing.T) {
	b := testBreaker()
	if !b.CanExecute("startGame") {
		t.Fatal("expected new breaker to allow execution")
	}
}

func TestOpensOnFailureRate(t *testing.T) {
	b := testBreaker()

	b.RecordSuccess("startGame")
	b.RecordFailure("startGame")
	b.RecordFailure("startGame")
	if !b.CanExecute("startGame") {
		t.Fatal("should stay closed below the minimum sample count")
	}

	b.RecordFailure("startGame")
	if b.CanExecute("startGame") {
		t.Fatal("expected breaker to open at 75% failures")
	}
}

func TestOperationsAreIndependent(t *testing.T) {
	b := testBreaker()

	for i := 0; i < 6; i++ {
		b.RecordFailure("flaky")
	}
	if b.CanExecute("flaky") {
		t.Fatal("expected flaky op to be open")
	}
	if !b.CanExecute("healthy") {
		t.Fatal("unrelated op must not be affected")
	}
}

func TestHalfOpenAfterCooldown(t *testing.T) {
	b := testBreaker()
	now := time.Now()
	b.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		b.RecordFailure("startGame")
	}
	if b.CanExecute("startGame") {
		t.Fatal("expected open breaker")
	}

	now = now.Add(31 * time.Second)
	if !b.CanExecute("startGame") {
		t.Fatal("expected half-open after cooldown")
	}

	// The window reset: one failure is not enough to reopen.
	b.RecordFailure("startGame")
	if !b.CanExecute("startGame") {
		t.Fatal("half-open window should tolerate samples below the minimum")
	}
}

func TestFailureRateIsRolling(t *testing.T) {
	b := testBreaker()
	now := time.Now()
	b.now = func() time.Time { return now }

	// A long healthy history must not dilute a fresh burst of failures.
	for i := 0; i < 100; i++ {
		b.RecordSuccess("startGame")
	}
	now = now.Add(61 * time.Second)
	for i := 0; i < 4; i++ {
		b.RecordFailure("startGame")
	}
	if b.CanExecute("startGame") {
		t.Fatal("expected old successes to age out and the breaker to open")
	}
}

func TestTallyPersistsWithinWindow(t *testing.T) {
	b := testBreaker()
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordSuccess("startGame")
	now = now.Add(30 * time.Second)
	for i := 0; i < 3; i++ {
		b.RecordFailure("startGame")
	}
	// 3 failures out of 4 samples in the same window: open at 75%.
	if b.CanExecute("startGame") {
		t.Fatal("expected samples within one window to accumulate")
	}
}
