package qa

import (
	"errors"
	"fmt"

	"github.com/bull/docchat/internal/index"
)

var (
	ErrNotReady      = errors.New("no documents have been processed yet")
	ErrEmptyInput    = errors.New("no documents provided")
	ErrEmptyQuestion = errors.New("question is empty")
	ErrEmptyAnswer   = errors.New("generator returned an empty answer")
)

// EmbeddingError reports an embedding failure while indexing or querying.
type EmbeddingError = index.EmbeddingError

// ExtractionError reports a document whose text could not be extracted.
type ExtractionError struct {
	DocIndex int
	Name     string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract document %d (%s): %v", e.DocIndex, e.Name, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// GenerationError reports a failed or unusable answer from the generator.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate answer: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
