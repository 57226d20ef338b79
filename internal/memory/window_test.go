package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWindow_Defaults(t *testing.T) {
	w := New(0)
	assert.Equal(t, DefaultSize, w.Cap())
	assert.Equal(t, 0, w.Len())
	assert.Empty(t, w.History())
}

func TestWindow_AppendAssignsSeq(t *testing.T) {
	w := New(3)
	first := w.Append(Turn{Question: "q1", Answer: "a1"})
	second := w.Append(Turn{Question: "q2", Answer: "a2"})

	assert.Equal(t, 0, first.Seq)
	assert.Equal(t, 1, second.Seq)
	assert.False(t, first.At.IsZero())
	assert.Equal(t, []Turn{first, second}, w.History())
}

func TestWindow_SixthTurnEvictsFirst(t *testing.T) {
	w := New(5)
	for i := 1; i <= 6; i++ {
		w.Append(Turn{Question: fmt.Sprintf("q%d", i)})
	}

	h := w.History()
	require.Len(t, h, 5)
	assert.Equal(t, "q2", h[0].Question)
	assert.Equal(t, "q6", h[4].Question)
}

func TestWindow_HistoryIsACopy(t *testing.T) {
	w := New(2)
	w.Append(Turn{Question: "q"})

	h := w.History()
	h[0].Question = "mutated"
	assert.Equal(t, "q", w.History()[0].Question)
}

func TestWindow_Last(t *testing.T) {
	w := New(4)
	for i := 0; i < 3; i++ {
		w.Append(Turn{Question: fmt.Sprintf("q%d", i)})
	}

	last := w.Last(2)
	require.Len(t, last, 2)
	assert.Equal(t, "q1", last[0].Question)
	assert.Equal(t, "q2", last[1].Question)
	assert.Len(t, w.Last(10), 3)
	assert.Empty(t, w.Last(0))
}

func TestWindow_ClearKeepsSequence(t *testing.T) {
	w := New(2)
	w.Append(Turn{})
	w.Append(Turn{})
	w.Clear()

	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 2, w.Append(Turn{}).Seq)
}

func TestWindow_ConcurrentReaders(t *testing.T) {
	w := New(5)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			w.Append(Turn{Question: "q"})
		}()
		go func() {
			defer wg.Done()
			assert.LessOrEqual(t, len(w.History()), 5)
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, w.Len())
}

// TestWindow_KeepsLastK: after n >= k appends the window holds exactly the last k, in order.
func TestWindow_KeepsLastK(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(1, 10).Draw(rt, "k")
		questions := rapid.SliceOfN(rapid.String(), k+1, 3*k).Draw(rt, "questions")

		w := New(k)
		for _, q := range questions {
			w.Append(Turn{Question: q})
		}

		h := w.History()
		require.Len(rt, h, k)
		want := questions[len(questions)-k:]
		for i, turn := range h {
			assert.Equal(rt, want[i], turn.Question)
			assert.Equal(rt, len(questions)-k+i, turn.Seq)
		}
	})
}
