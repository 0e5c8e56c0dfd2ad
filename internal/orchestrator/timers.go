package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// timerRegistry tracks every scheduled task per game so countdowns can be
// cancelled early and a finished game leaves nothing behind. A handle fires
// at most once; scheduling the same name again replaces the pending timer.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]map[string]*time.Timer
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]map[string]*time.Timer)}
}

func startName(idx int) string   { return fmt.Sprintf("q:%d:start", idx) }
func resolveName(idx int) string { return fmt.Sprintf("q:%d:resolve", idx) }
func tickName(idx int, remaining time.Duration) string {
	return fmt.Sprintf("q:%d:tick:%d", idx, int(remaining.Seconds()))
}

func (r *timerRegistry) schedule(gameID, name string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.timers[gameID]; ok {
		if t, ok := m[name]; ok {
			t.Stop()
		}
	} else {
		r.timers[gameID] = make(map[string]*time.Timer)
	}
	r.timers[gameID][name] = time.AfterFunc(d, func() {
		r.remove(gameID, name)
		fn()
	})
}

// cancel stops the named timer if it is still pending.
func (r *timerRegistry) cancel(gameID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.timers[gameID]
	if !ok {
		return false
	}
	t, ok := m[name]
	if !ok {
		return false
	}
	stopped := t.Stop()
	delete(m, name)
	if len(m) == 0 {
		delete(r.timers, gameID)
	}
	return stopped
}

// cancelQuestion stops the countdown for one question: its reminder ticks
// and its resolution deadline.
func (r *timerRegistry) cancelQuestion(gameID string, idx int, marks []time.Duration) {
	for _, m := range marks {
		r.cancel(gameID, tickName(idx, m))
	}
	r.cancel(gameID, resolveName(idx))
}

// cancelGame stops everything pending for the game.
func (r *timerRegistry) cancelGame(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.timers[gameID] {
		t.Stop()
	}
	delete(r.timers, gameID)
}

// pending reports whether any timer is scheduled for the game.
func (r *timerRegistry) pending(gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers[gameID]) > 0
}

func (r *timerRegistry) remove(gameID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.timers[gameID]; ok {
		delete(m, name)
		if len(m) == 0 {
			delete(r.timers, gameID)
		}
	}
}
