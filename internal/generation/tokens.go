package generation

import (
	"log/slog"
	"sync/atomic"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/bull/docchat/internal/index"
)

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// EstimateCounter assumes roughly 4 characters per token.
type EstimateCounter struct{}

// Count returns the estimated token count of text.
func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4.1":       "o200k_base",
	"gpt-4.1-mini":  "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// Tiktoken counts tokens with the model's BPE encoding.
// The encoding loads in the background because tiktoken-go may download it.
// Until it is ready, or if loading fails, Count falls back to EstimateCounter.
type Tiktoken struct {
	encoding string
	enc      atomic.Pointer[tiktoken.Tiktoken]
	ready    chan struct{}
}

// NewTiktoken creates a counter for model and starts loading its encoding.
// Unknown models use cl100k_base.
func NewTiktoken(model string, logger *slog.Logger) *Tiktoken {
	return newTiktoken(model, logger, tiktoken.GetEncoding)
}

func newTiktoken(model string, logger *slog.Logger, load func(string) (*tiktoken.Tiktoken, error)) *Tiktoken {
	if logger == nil {
		logger = slog.Default()
	}
	encoding, ok := modelEncodings[model]
	if !ok {
		encoding = "cl100k_base"
	}
	t := &Tiktoken{encoding: encoding, ready: make(chan struct{})}
	go func() {
		defer close(t.ready)
		enc, err := load(encoding)
		if err != nil {
			logger.Warn("Tiktoken encoding unavailable, estimating tokens", "encoding", encoding, "error", err)
			return
		}
		t.enc.Store(enc)
	}()
	return t
}

// Ready is closed once loading has finished, whether or not it succeeded.
func (t *Tiktoken) Ready() <-chan struct{} { return t.ready }

// Count returns the number of tokens in text. It never waits for the encoding.
func (t *Tiktoken) Count(text string) int {
	enc := t.enc.Load()
	if enc == nil {
		return EstimateCounter{}.Count(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// fitContext keeps the leading results whose passages fit in budget tokens.
// The best result is always kept so the model sees at least one passage.
func fitContext(results []index.Result, budget int, counter TokenCounter) []index.Result {
	if budget <= 0 || len(results) == 0 {
		return results
	}
	used := 0
	for i, r := range results {
		used += counter.Count(r.Chunk.Content)
		if used > budget && i > 0 {
			return results[:i]
		}
	}
	return results
}
