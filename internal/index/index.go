// Package index holds the searchable (chunk, vector) collection built once per ingestion.
package index

import (
	"context"
	"sort"

	"github.com/bull/docchat/internal/chunker"
)

// Result is a chunk with its similarity to the query.
type Result struct {
	Chunk chunker.Chunk
	Score float64
}

// Index supports nearest-neighbour queries over embedded chunks.
// An Index is immutable once built; a new ingestion builds a new Index.
type Index interface {
	// Len returns the number of indexed chunks.
	Len() int
	// Dimension returns the vector size, 0 for an empty index.
	Dimension() int
	// Search returns at most k results ordered by descending score,
	// ties broken by ascending chunk index.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	// Close releases any resources held by the index.
	Close(ctx context.Context) error
}

// Builder creates an Index from chunks and their vectors (same length, same order).
type Builder interface {
	Build(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) (Index, error)
}

// SortResults orders results by descending score, then ascending chunk index.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})
}
