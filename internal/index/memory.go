package index

import (
	"context"
	"fmt"
	"math"

	"github.com/bull/docchat/internal/chunker"
)

// Memory is an in-process Index that scans every vector on each query.
// It suits the few thousand chunks a handful of documents produce.
type Memory struct {
	chunks    []chunker.Chunk
	vectors   [][]float32
	norms     []float64
	dimension int
}

// MemoryBuilder builds Memory indexes.
type MemoryBuilder struct{}

// Build copies chunks and vectors into a new Memory index.
func (MemoryBuilder) Build(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) (Index, error) {
	return NewMemory(chunks, vectors)
}

// NewMemory validates that every chunk has a vector of one shared dimension.
func NewMemory(chunks []chunker.Chunk, vectors [][]float32) (*Memory, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrVectorCount, len(chunks), len(vectors))
	}

	m := &Memory{
		chunks:  make([]chunker.Chunk, len(chunks)),
		vectors: make([][]float32, len(vectors)),
		norms:   make([]float64, len(vectors)),
	}
	copy(m.chunks, chunks)

	for i, v := range vectors {
		if i == 0 {
			m.dimension = len(v)
		}
		if len(v) == 0 || len(v) != m.dimension {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, chunks[i].Index, len(v), m.dimension)
		}
		vec := make([]float32, len(v))
		copy(vec, v)
		m.vectors[i] = vec
		m.norms[i] = norm(vec)
	}
	return m, nil
}

// Len returns the number of indexed chunks.
func (m *Memory) Len() int { return len(m.chunks) }

// Dimension returns the vector size.
func (m *Memory) Dimension() int { return m.dimension }

// Search ranks every chunk by cosine similarity to query.
func (m *Memory) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(m.chunks) == 0 || k <= 0 {
		return []Result{}, nil
	}
	if len(query) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), m.dimension)
	}

	qn := norm(query)
	results := make([]Result, len(m.chunks))
	for i, vec := range m.vectors {
		score := 0.0
		if qn != 0 && m.norms[i] != 0 {
			score = dot(query, vec) / (qn * m.norms[i])
		}
		results[i] = Result{Chunk: m.chunks[i], Score: score}
	}

	SortResults(results)
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Close is a no-op; the index is garbage collected with its owner.
func (m *Memory) Close(ctx context.Context) error { return nil }

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
