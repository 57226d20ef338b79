// Package generation turns retrieved context, conversation history and a question into an answer.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bull/docchat/internal/index"
	"github.com/bull/docchat/internal/memory"
)

var ErrNoChoices = errors.New("model returned no choices")

// Request carries everything a Generator may ground its answer on.
// Context is ordered by descending similarity.
type Request struct {
	Context  []index.Result
	History  []memory.Turn
	Question string
}

// Generator produces answer text for a Request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

const systemPrompt = `You answer questions about the user's documents.
Use only the context passages below. If they do not contain the answer, say you don't know.
Keep answers concise and quote the documents where it helps.`

// FormatContext renders retrieved chunks as numbered passages.
func FormatContext(results []index.Result) string {
	if len(results) == 0 {
		return "(no relevant passages found)"
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s)\n%s", i+1, sourceLabel(r), r.Chunk.Content)
	}
	return b.String()
}

func sourceLabel(r index.Result) string {
	if r.Chunk.Source != "" {
		return r.Chunk.Source
	}
	return fmt.Sprintf("chunk %d", r.Chunk.Index)
}
