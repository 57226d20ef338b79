package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/embedding"
)

// DefaultBatchSize is the number of chunks sent to the embedder per call.
const DefaultBatchSize = 64

// Indexer embeds chunks and hands them to a Builder.
// Building is all-or-nothing: any embedder error aborts without returning an index.
type Indexer struct {
	embedder  embedding.Embedder
	builder   Builder
	batchSize int
	logger    *slog.Logger
}

// NewIndexer creates an Indexer. A batch size of 1 attributes failures to the exact chunk.
func NewIndexer(embedder embedding.Embedder, builder Builder, batchSize int, logger *slog.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if builder == nil {
		builder = MemoryBuilder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		embedder:  embedder,
		builder:   builder,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Embedder returns the embedder used for indexing, so queries can share it.
func (ix *Indexer) Embedder() embedding.Embedder { return ix.embedder }

// Build embeds every chunk and builds a fresh Index.
func (ix *Indexer) Build(ctx context.Context, chunks []chunker.Chunk) (Index, error) {
	start := time.Now()
	vectors := make([][]float32, 0, len(chunks))

	for i := 0; i < len(chunks); i += ix.batchSize {
		end := min(i+ix.batchSize, len(chunks))

		texts := make([]string, end-i)
		for j, c := range chunks[i:end] {
			texts[j] = c.Content
		}

		batch, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, &EmbeddingError{Stage: StageIndex, ChunkIndex: chunks[i].Index, Err: err}
		}
		if len(batch) != len(texts) {
			return nil, &EmbeddingError{
				Stage:      StageIndex,
				ChunkIndex: chunks[i].Index,
				Err:        fmt.Errorf("%w: %d texts, %d vectors", ErrVectorCount, len(texts), len(batch)),
			}
		}
		for j, vec := range batch {
			if len(vec) == 0 || (len(vectors) > 0 && len(vec) != len(vectors[0])) {
				return nil, &EmbeddingError{
					Stage:      StageIndex,
					ChunkIndex: chunks[i+j].Index,
					Err:        fmt.Errorf("%w: got %d dimensions", ErrDimensionMismatch, len(vec)),
				}
			}
			vectors = append(vectors, vec)
		}
		ix.logger.Debug("Embedded batch", "from", i, "to", end)
	}

	idx, err := ix.builder.Build(ctx, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	ix.logger.Info("Index built",
		"chunks", idx.Len(),
		"dimension", idx.Dimension(),
		"embedder", ix.embedder.Name(),
		"duration", time.Since(start),
	)
	return idx, nil
}
