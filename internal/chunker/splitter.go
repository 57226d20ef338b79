// Package chunker splits extracted document text into overlapping, size-bounded chunks.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Default splitter settings, measured in runes.
const (
	DefaultSize      = 1000
	DefaultOverlap   = 200
	DefaultSeparator = "\n"
)

var (
	ErrInvalidSize    = errors.New("chunk size must be positive")
	ErrInvalidOverlap = errors.New("chunk overlap must be >= 0 and smaller than chunk size")
)

// Chunk is a contiguous piece of a document's text used as the retrieval granule.
type Chunk struct {
	Index   int    // Position in the ingestion batch (0, 1, 2...)
	DocID   string // Owning document
	Source  string // Document name, for citations
	Content string
}

// Splitter accumulates separator-delimited units into chunks of at most Size runes.
// Consecutive chunks share the trailing Overlap runes of the previous chunk whenever
// that prefix plus the next unit still fits. A unit longer than Size is emitted as
// its own oversized chunk rather than truncated.
type Splitter struct {
	size      int
	overlap   int
	separator string
}

// NewSplitter validates the settings and returns a Splitter.
// An empty separator falls back to DefaultSeparator.
func NewSplitter(size, overlap int, separator string) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrInvalidOverlap, overlap, size)
	}
	if separator == "" {
		separator = DefaultSeparator
	}
	return &Splitter{size: size, overlap: overlap, separator: separator}, nil
}

// Size returns the configured maximum chunk length in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// Separator returns the unit separator.
func (s *Splitter) Separator() string { return s.separator }

// Split breaks text into chunk strings. Empty input yields nil.
func (s *Splitter) Split(text string) []string {
	units := s.units(text)
	if len(units) == 0 {
		return nil
	}

	sepLen := utf8.RuneCountInString(s.separator)
	var chunks []string
	var buf strings.Builder
	bufLen := 0

	for _, u := range units {
		uLen := utf8.RuneCountInString(u)
		if bufLen == 0 {
			buf.WriteString(u)
			bufLen = uLen
			continue
		}
		if bufLen+sepLen+uLen <= s.size {
			buf.WriteString(s.separator)
			buf.WriteString(u)
			bufLen += sepLen + uLen
			continue
		}

		emitted := buf.String()
		chunks = append(chunks, emitted)
		buf.Reset()

		tail := lastRunes(emitted, s.overlap)
		tailLen := utf8.RuneCountInString(tail)
		if tailLen > 0 && tailLen+sepLen+uLen <= s.size {
			buf.WriteString(tail)
			buf.WriteString(s.separator)
			buf.WriteString(u)
			bufLen = tailLen + sepLen + uLen
		} else {
			buf.WriteString(u)
			bufLen = uLen
		}
	}
	if bufLen > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// Chunk splits a document's text and numbers the chunks starting at start.
func (s *Splitter) Chunk(docID, source, text string, start int) []Chunk {
	parts := s.Split(text)
	if len(parts) == 0 {
		return nil
	}
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{
			Index:   start + i,
			DocID:   docID,
			Source:  source,
			Content: p,
		}
	}
	return chunks
}

// units splits text on the separator and drops empty units.
func (s *Splitter) units(text string) []string {
	if text == "" {
		return nil
	}
	raw := strings.Split(text, s.separator)
	out := raw[:0]
	for _, u := range raw {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// lastRunes returns the trailing n runes of s.
func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := len(s)
	for count := 0; count < n; count++ {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}
