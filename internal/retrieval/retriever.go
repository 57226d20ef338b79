// Package retrieval answers similarity queries against an index.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/index"
)

// Retriever embeds query text and searches an index with the result.
// It must share its embedder with the Indexer that built the index.
type Retriever struct {
	embedder embedding.Embedder
	logger   *slog.Logger
}

// New creates a Retriever over the given embedder.
func New(embedder embedding.Embedder, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, logger: logger}
}

// Search returns the top k chunks of idx most similar to query.
// An empty index yields an empty result, not an error.
func (r *Retriever) Search(ctx context.Context, idx index.Index, query string, k int) ([]index.Result, error) {
	if idx == nil || idx.Len() == 0 || k <= 0 {
		return []index.Result{}, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &index.EmbeddingError{Stage: index.StageQuery, ChunkIndex: -1, Err: err}
	}
	if len(vectors) != 1 {
		return nil, &index.EmbeddingError{
			Stage:      index.StageQuery,
			ChunkIndex: -1,
			Err:        fmt.Errorf("%w: expected 1 vector, got %d", index.ErrVectorCount, len(vectors)),
		}
	}
	if len(vectors[0]) != idx.Dimension() {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			index.ErrDimensionMismatch, len(vectors[0]), idx.Dimension())
	}

	results, err := idx.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	r.logger.Debug("Retrieved chunks", "k", k, "results", len(results))
	return results, nil
}
