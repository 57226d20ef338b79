// Package storage keeps chunk vectors in Qdrant instead of process memory.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/index"
)

// upsertBatchSize is the number of points sent per upsert call.
const upsertBatchSize = 100

// Config holds Qdrant connection settings.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Qdrant wraps the Qdrant client with connection management and health checks.
// It builds one collection per ingestion and implements index.Builder.
type Qdrant struct {
	client *qdrant.Client
	logger *slog.Logger
}

// NewQdrant connects over gRPC and waits for the server to report healthy.
// It fails fast with ErrQdrantUnreachable when retries are exhausted.
func NewQdrant(ctx context.Context, cfg Config, logger *slog.Logger) (*Qdrant, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &Qdrant{client: client, logger: logger}
	if err := retry(ctx, func() error { return s.Health(ctx) }); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	logger.Info("Connected to Qdrant", "host", cfg.Host, "port", cfg.Port)
	return s, nil
}

// retry runs op with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *Qdrant) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// DropStale deletes docchat collections left behind by a process that exited without cleanup.
// Indexes never outlive a session, so any existing one is stale.
func (s *Qdrant) DropStale(ctx context.Context) (int, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list collections: %w", err)
	}
	dropped := 0
	for _, name := range names {
		if !strings.HasPrefix(name, CollectionPrefix) {
			continue
		}
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return dropped, fmt.Errorf("failed to delete collection %s: %w", name, err)
		}
		dropped++
	}
	if dropped > 0 {
		s.logger.Info("Dropped stale collections", "count", dropped)
	}
	return dropped, nil
}

// Close closes the Qdrant client connection.
func (s *Qdrant) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Build creates a fresh collection and upserts every chunk with its vector.
// On failure the half-written collection is deleted.
func (s *Qdrant) Build(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) (index.Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", index.ErrVectorCount, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return &Collection{store: s}, nil
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				index.ErrDimensionMismatch, chunks[i].Index, len(v), dim)
		}
	}

	name := newCollectionName()
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorName: {
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	col := &Collection{store: s, name: name, size: len(chunks), dimension: dim}
	if err := s.upsertChunks(ctx, name, chunks, vectors); err != nil {
		if dropErr := col.Close(context.WithoutCancel(ctx)); dropErr != nil {
			s.logger.Warn("Failed to drop partial collection", "collection", name, "error", dropErr)
		}
		return nil, err
	}

	s.logger.Info("Built Qdrant collection", "collection", name, "chunks", len(chunks), "dimension", dim)
	return col, nil
}

// upsertChunks stores chunks in batches of upsertBatchSize.
func (s *Qdrant) upsertChunks(ctx context.Context, name string, chunks []chunker.Chunk, vectors [][]float32) error {
	for i := 0; i < len(chunks); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(chunks))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for j := i; j < end; j++ {
			points = append(points, &qdrant.PointStruct{
				Id: qdrant.NewIDNum(uint64(j)),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					VectorName: qdrant.NewVector(vectors[j]...),
				}),
				Payload: chunkPayload(chunks[j]),
			})
		}

		err := retry(ctx, func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: name,
				Wait:           qdrant.PtrOf(true),
				Points:         points,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// Collection is an index.Index stored in one Qdrant collection.
// Closing it drops the collection.
type Collection struct {
	store     *Qdrant
	name      string
	size      int
	dimension int

	mu      sync.Mutex
	dropped bool
}

// Name returns the Qdrant collection name, empty for an empty index.
func (c *Collection) Name() string { return c.name }

// Len returns the number of stored chunks.
func (c *Collection) Len() int { return c.size }

// Dimension returns the vector size, 0 for an empty index.
func (c *Collection) Dimension() int { return c.dimension }

// Search queries the named vector and re-sorts so equal scores order by chunk index.
// Qdrant breaks ties by point id, so one extra point is fetched to detect a
// tie at the cut-off. When there is one, every point scoring at least the
// cut-off score is fetched before trimming to k.
func (c *Collection) Search(ctx context.Context, query []float32, k int) ([]index.Result, error) {
	if c.size == 0 || k <= 0 {
		return []index.Result{}, nil
	}
	if len(query) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			index.ErrDimensionMismatch, len(query), c.dimension)
	}
	c.mu.Lock()
	dropped := c.dropped
	c.mu.Unlock()
	if dropped {
		return nil, ErrCollectionClosed
	}

	results, err := c.query(ctx, query, k+1, nil)
	if err != nil {
		return nil, err
	}
	if tieAtCutoff(results, k) {
		threshold := float32(results[k-1].Score)
		if results, err = c.query(ctx, query, c.size, &threshold); err != nil {
			return nil, err
		}
		index.SortResults(results)
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// query returns up to limit points scoring at least threshold, sorted.
func (c *Collection) query(ctx context.Context, query []float32, limit int, threshold *float32) ([]index.Result, error) {
	vectorName := VectorName
	points, err := c.store.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(query...),
		Using:          &vectorName,
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: threshold,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results := make([]index.Result, 0, len(points))
	for _, p := range points {
		results = append(results, index.Result{
			Chunk: chunkFromPayload(p.Payload),
			Score: float64(p.Score),
		})
	}
	index.SortResults(results)
	return results, nil
}

// tieAtCutoff reports whether the k-th and (k+1)-th sorted results share a score.
func tieAtCutoff(results []index.Result, k int) bool {
	return k > 0 && len(results) > k && results[k-1].Score == results[k].Score
}

// Close drops the collection. It is safe to call more than once.
func (c *Collection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped || c.name == "" {
		c.dropped = true
		return nil
	}
	if err := c.store.client.DeleteCollection(ctx, c.name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", c.name, err)
	}
	c.dropped = true
	c.store.logger.Debug("Dropped collection", "collection", c.name)
	return nil
}
