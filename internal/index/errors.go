package index

import (
	"errors"
	"fmt"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrVectorCount       = errors.New("vector count does not match chunk count")
)

// Stage names where an embedding call happened.
type Stage string

const (
	StageIndex Stage = "index"
	StageQuery Stage = "query"
)

// EmbeddingError reports an embedding collaborator failure.
// ChunkIndex is the first chunk of the failing batch while indexing, -1 for queries.
type EmbeddingError struct {
	Stage      Stage
	ChunkIndex int
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.Stage == StageQuery {
		return fmt.Sprintf("embedding failed (stage %s): %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("embedding failed (stage %s, chunk %d): %v", e.Stage, e.ChunkIndex, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
