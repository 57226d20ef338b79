// Package qa runs the conversational question-answering loop over ingested documents.
//
// A Session is Unindexed until the first successful Ingest and Ready afterwards.
// Ingest replaces the index and clears the conversation; Ask retrieves passages,
// asks the generator and records the turn. Every failure leaves the session as it was.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/extract"
	"github.com/bull/docchat/internal/generation"
	"github.com/bull/docchat/internal/index"
	"github.com/bull/docchat/internal/memory"
	"github.com/bull/docchat/internal/metrics"
	"github.com/bull/docchat/internal/retrieval"
)

// State is the lifecycle position of a Session.
type State int

const (
	Unindexed State = iota
	Ready
)

func (s State) String() string {
	switch s {
	case Unindexed:
		return "unindexed"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Document is an extracted source, alive only during ingestion.
type Document struct {
	ID    string
	Name  string
	Pages []string
}

// IngestResult summarises a successful ingestion.
type IngestResult struct {
	Documents []string
	Pages     int
	Chunks    int
	Duration  time.Duration
}

// Answer is a generated reply with the passages it was grounded on.
type Answer struct {
	Text    string
	Sources []index.Result
	Turn    memory.Turn
}

// Status is a snapshot of the session for presentation layers.
type Status struct {
	State      State
	Documents  []string
	Chunks     int
	Turns      int
	Window     int
	TopK       int
	Embedder   string
	LastIngest time.Time
}

// Session holds one index and one conversation window.
// Ingest, Ask and Reset are serialized; reads never wait on them.
type Session struct {
	extractor extract.Extractor
	generator generation.Generator
	splitter  *chunker.Splitter
	indexer   *index.Indexer
	retriever *retrieval.Retriever
	memory    *memory.Window
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Collector

	op sync.Mutex // one in-flight operation

	mu         sync.RWMutex // guards the fields below
	index      index.Index
	documents  []string
	lastIngest time.Time
}

// NewSession wires the collaborators into an Unindexed session.
func NewSession(deps Deps, opts Options) (*Session, error) {
	if deps.Extractor == nil || deps.Embedder == nil || deps.Generator == nil {
		return nil, errors.New("extractor, embedder and generator are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MemoryWindow <= 0 {
		opts.MemoryWindow = memory.DefaultSize
	}

	splitter, err := chunker.NewSplitter(opts.ChunkSize, opts.ChunkOverlap, opts.Separator)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking options: %w", err)
	}
	opts.Separator = splitter.Separator()

	return &Session{
		extractor: deps.Extractor,
		generator: deps.Generator,
		splitter:  splitter,
		indexer:   index.NewIndexer(deps.Embedder, deps.Builder, opts.EmbedBatchSize, deps.Logger),
		retriever: retrieval.New(deps.Embedder, deps.Logger),
		memory:    memory.New(opts.MemoryWindow),
		opts:      opts,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}, nil
}

// State reports whether an index is loaded.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return Unindexed
	}
	return Ready
}

// Ingest extracts, chunks and indexes sources, replacing any previous index.
// The conversation is cleared only when every step succeeds.
func (s *Session) Ingest(ctx context.Context, sources []extract.Source) (*IngestResult, error) {
	if len(sources) == 0 {
		s.logger.Warn("Ingest called without documents")
		return nil, ErrEmptyInput
	}

	s.op.Lock()
	defer s.op.Unlock()

	start := time.Now()
	res, idx, err := s.build(ctx, sources)
	if err != nil {
		s.metrics.RecordIngest(err, 0, 0, time.Since(start))
		s.logger.Error("Ingest failed", "documents", len(sources), "error", err)
		return nil, err
	}
	res.Duration = time.Since(start)

	s.mu.Lock()
	old := s.index
	s.index = idx
	s.documents = append([]string(nil), res.Documents...)
	s.lastIngest = time.Now()
	s.memory.Clear()
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release previous index", "error", err)
		}
	}

	s.metrics.RecordIngest(nil, len(res.Documents), res.Chunks, res.Duration)
	s.logger.Info("Documents processed",
		"documents", len(res.Documents),
		"pages", res.Pages,
		"chunks", res.Chunks,
		"duration", res.Duration,
	)
	return res, nil
}

// build runs extraction, chunking and indexing without touching session state.
func (s *Session) build(ctx context.Context, sources []extract.Source) (*IngestResult, index.Index, error) {
	if s.opts.IngestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.IngestTimeout)
		defer cancel()
	}

	stage := time.Now()
	docs := make([]Document, 0, len(sources))
	res := &IngestResult{Documents: make([]string, 0, len(sources))}
	for i, src := range sources {
		pages, err := s.extractor.Extract(ctx, src)
		if err != nil {
			return nil, nil, &ExtractionError{DocIndex: i, Name: src.Name, Err: err}
		}
		docs = append(docs, Document{ID: uuid.NewString(), Name: src.Name, Pages: pages})
		res.Documents = append(res.Documents, src.Name)
		res.Pages += len(pages)
	}
	s.metrics.RecordStage("extract", time.Since(stage))

	var chunks []chunker.Chunk
	for _, doc := range docs {
		text := strings.Join(doc.Pages, s.opts.Separator)
		chunks = append(chunks, s.splitter.Chunk(doc.ID, doc.Name, text, len(chunks))...)
	}
	res.Chunks = len(chunks)
	if len(chunks) == 0 {
		s.logger.Warn("No text extracted from documents", "documents", len(docs))
	}

	stage = time.Now()
	idx, err := s.indexer.Build(ctx, chunks)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.RecordStage("index", time.Since(stage))
	return res, idx, nil
}

// Ask answers question from the current index and remembers the exchange.
// A failed Ask records nothing.
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	s.op.Lock()
	defer s.op.Unlock()

	start := time.Now()
	ans, err := s.ask(ctx, question)
	s.metrics.RecordAsk(err, time.Since(start))
	if err != nil {
		if !errors.Is(err, ErrNotReady) && !errors.Is(err, ErrEmptyQuestion) {
			s.logger.Error("Ask failed", "error", err)
		}
		return nil, err
	}
	s.logger.Debug("Question answered", "turn", ans.Turn.Seq, "sources", len(ans.Sources), "duration", time.Since(start))
	return ans, nil
}

func (s *Session) ask(ctx context.Context, question string) (*Answer, error) {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()
	if idx == nil {
		return nil, ErrNotReady
	}

	q := strings.TrimSpace(question)
	if q == "" {
		return nil, ErrEmptyQuestion
	}

	if s.opts.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AskTimeout)
		defer cancel()
	}

	history := s.memory.History()

	stage := time.Now()
	results, err := s.retriever.Search(ctx, idx, s.retrievalQuery(q, history), s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	s.metrics.RecordStage("retrieve", time.Since(stage))

	stage = time.Now()
	text, err := s.generator.Generate(ctx, generation.Request{
		Context:  results,
		History:  history,
		Question: q,
	})
	if err != nil {
		return nil, &GenerationError{Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &GenerationError{Err: ErrEmptyAnswer}
	}
	s.metrics.RecordStage("generate", time.Since(stage))

	turn := s.memory.Append(memory.Turn{Question: q, Answer: text})
	return &Answer{Text: text, Sources: results, Turn: turn}, nil
}

// retrievalQuery prefixes q with the last FoldHistoryTurns questions when enabled.
func (s *Session) retrievalQuery(q string, history []memory.Turn) string {
	n := s.opts.FoldHistoryTurns
	if n <= 0 || len(history) == 0 {
		return q
	}
	if n > len(history) {
		n = len(history)
	}
	parts := make([]string, 0, n+1)
	for _, t := range history[len(history)-n:] {
		parts = append(parts, t.Question)
	}
	return strings.Join(append(parts, q), "\n")
}

// History returns the remembered turns, oldest first.
func (s *Session) History() []memory.Turn {
	return s.memory.History()
}

// Reset drops the index and the conversation, returning to Unindexed.
// The session is reset even when releasing the index fails; that error is returned.
func (s *Session) Reset(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	old := s.index
	s.index = nil
	s.documents = nil
	s.lastIngest = time.Time{}
	s.memory.Clear()
	s.mu.Unlock()

	s.metrics.RecordReset()
	s.logger.Info("Session reset")
	if old != nil {
		if err := old.Close(ctx); err != nil {
			return fmt.Errorf("release index: %w", err)
		}
	}
	return nil
}

// Close releases the index. The session is Unindexed afterwards.
func (s *Session) Close(ctx context.Context) error {
	return s.Reset(ctx)
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:      Unindexed,
		Documents:  append([]string(nil), s.documents...),
		Turns:      s.memory.Len(),
		Window:     s.memory.Cap(),
		TopK:       s.opts.TopK,
		Embedder:   s.indexer.Embedder().Name(),
		LastIngest: s.lastIngest,
	}
	if s.index != nil {
		st.State = Ready
		st.Chunks = s.index.Len()
	}
	return st
}
