// Package memory keeps the bounded question/answer history of a session.
package memory

import (
	"sync"
	"time"
)

// DefaultSize is the number of turns remembered.
const DefaultSize = 5

// Turn is one completed question/answer exchange.
type Turn struct {
	Seq      int       `json:"seq"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// Window is a FIFO of the last k turns.
type Window struct {
	mu    sync.RWMutex
	size  int
	turns []Turn
	next  int
}

// New creates a window holding at most k turns. Non-positive k uses DefaultSize.
func New(k int) *Window {
	if k <= 0 {
		k = DefaultSize
	}
	return &Window{size: k, turns: make([]Turn, 0, k+1)}
}

// Append stores a copy of t, evicting the oldest turn when full.
// It assigns Seq (and At when unset) and returns the stored turn.
func (w *Window) Append(t Turn) Turn {
	w.mu.Lock()
	defer w.mu.Unlock()

	t.Seq = w.next
	w.next++
	if t.At.IsZero() {
		t.At = time.Now()
	}

	w.turns = append(w.turns, t)
	if len(w.turns) > w.size {
		// Shift in place so the backing array never grows past size+1.
		n := copy(w.turns, w.turns[len(w.turns)-w.size:])
		w.turns = w.turns[:n]
	}
	return t
}

// History returns the remembered turns, oldest first.
func (w *Window) History() []Turn {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Last returns up to n of the most recent turns, oldest first.
func (w *Window) Last(n int) []Turn {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if n <= 0 {
		return []Turn{}
	}
	if n > len(w.turns) {
		n = len(w.turns)
	}
	out := make([]Turn, n)
	copy(out, w.turns[len(w.turns)-n:])
	return out
}

// Clear forgets every turn. Sequence numbers keep increasing.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = w.turns[:0]
}

// Len returns the number of remembered turns.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.turns)
}

// Cap returns the window capacity.
func (w *Window) Cap() int { return w.size }
