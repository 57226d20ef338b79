package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultHashDimension is the vector size of the local hashing embedder.
const DefaultHashDimension = 512

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

// Hash is a deterministic bag-of-words embedder using the hashing trick.
// It needs no network or corpus preparation, so it serves offline runs and tests.
// Vectors are L2 normalised; texts without tokens map to the zero vector.
type Hash struct {
	dimension int
	stopwords map[string]struct{}
}

// NewHash creates a hashing embedder. Non-positive dimension uses DefaultHashDimension.
func NewHash(dimension int) *Hash {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &Hash{dimension: dimension, stopwords: defaultStopwords()}
}

// Name returns the identifier of this embedder implementation.
func (h *Hash) Name() string { return "hash" }

// Dimension returns the dimensionality of the produced vectors.
func (h *Hash) Dimension() int { return h.dimension }

// Embed computes a vector for every text.
func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hash) vector(text string) []float32 {
	vec := make([]float64, h.dimension)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := h.stopwords[tok]; stop {
			continue
		}
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		// The top bit picks the sign so collisions tend to cancel instead of pile up.
		sign := 1.0
		if sum>>63 == 1 {
			sign = -1.0
		}
		vec[sum%uint64(h.dimension)] += sign
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, h.dimension)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "it", "this", "that", "these", "those",
		"from", "what", "which", "who", "how", "does", "do", "about",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
