package qa

import (
	"log/slog"
	"time"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/extract"
	"github.com/bull/docchat/internal/generation"
	"github.com/bull/docchat/internal/index"
	"github.com/bull/docchat/internal/memory"
	"github.com/bull/docchat/internal/metrics"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// Deps are the collaborators a Session is built from.
// The single Embedder serves both indexing and queries.
type Deps struct {
	Extractor extract.Extractor
	Embedder  embedding.Embedder
	Generator generation.Generator
	Builder   index.Builder      // nil builds in-memory indexes
	Logger    *slog.Logger       // nil uses slog.Default()
	Metrics   *metrics.Collector // nil disables metrics
}

// Options tune chunking, retrieval and memory.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Separator    string

	MemoryWindow int
	TopK         int

	// FoldHistoryTurns prepends the last n questions to the retrieval query.
	// 0 searches with the raw question.
	FoldHistoryTurns int

	// EmbedBatchSize is the number of chunks per embedding call; 1 pins failures to one chunk.
	EmbedBatchSize int

	AskTimeout    time.Duration // 0 means no timeout
	IngestTimeout time.Duration // 0 means no timeout
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    chunker.DefaultSize,
		ChunkOverlap: chunker.DefaultOverlap,
		Separator:    chunker.DefaultSeparator,
		MemoryWindow: memory.DefaultSize,
		TopK:         DefaultTopK,
	}
}
