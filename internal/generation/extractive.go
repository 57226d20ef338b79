package generation

import (
	"context"
	"fmt"
	"strings"
)

// Extractive answers offline by quoting the best-scoring passage.
// It needs no model, which makes it useful for local runs and tests.
type Extractive struct {
	MaxChars int // 0 quotes the whole passage
}

// Generate returns the top passage, or a fixed reply when nothing was retrieved.
func (e Extractive) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Context) == 0 {
		return "I could not find anything relevant in the documents.", nil
	}

	top := req.Context[0]
	passage := strings.TrimSpace(top.Chunk.Content)
	if e.MaxChars > 0 {
		if r := []rune(passage); len(r) > e.MaxChars {
			passage = string(r[:e.MaxChars]) + "..."
		}
	}
	return fmt.Sprintf("From %s: %s", sourceLabel(top), passage), nil
}
