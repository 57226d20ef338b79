// Package embedding turns text into vectors, either through OpenAI or a local hashing model.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500
)

var ErrEmptyResponse = errors.New("embedding response did not match input count")

// Embedder converts texts into fixed-dimension vectors.
// Indexing and querying must go through the same Embedder so both share one vector space.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAI generates embeddings with an OpenAI embedding model.
// It batches requests for efficiency and implements exponential backoff on rate limit errors.
type OpenAI struct {
	client    *Client
	model     string
	batchSize int
}

// NewOpenAI creates an embedder with the given client, model and batch size.
// Empty model and non-positive batch size fall back to the defaults.
func NewOpenAI(client *Client, model string, batchSize int) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &OpenAI{
		client:    client,
		model:     model,
		batchSize: batchSize,
	}
}

// Name identifies the embedder and model, e.g. "openai/text-embedding-3-small".
func (e *OpenAI) Name() string { return "openai/" + e.model }

// Embed generates one embedding per text, in input order.
func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		embeddings, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, embeddings...)
	}

	return all, nil
}

// embedBatchWithRetry embeds a single batch.
// Rate limit errors (HTTP 429) are retried with exponential backoff; anything else is permanent.
func (e *OpenAI) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if IsRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: got %d, want %d", ErrEmptyResponse, len(resp.Data), len(texts)))
		}

		embeddings = make([][]float32, len(resp.Data))
		for _, data := range resp.Data {
			if data.Index < 0 || int(data.Index) >= len(embeddings) {
				return backoff.Permanent(fmt.Errorf("embedding index %d out of range", data.Index))
			}
			embeddings[data.Index] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

// IsRateLimitError checks if the error is an OpenAI rate limit error (HTTP 429).
func IsRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI returns float64, the index keeps float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
