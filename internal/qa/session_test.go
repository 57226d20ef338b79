package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/extract"
	"github.com/bull/docchat/internal/generation"
	"github.com/bull/docchat/internal/index"
)

// pagesExtractor returns Data split on form feeds and fails for failOn.
type pagesExtractor struct {
	failOn string
}

func (p pagesExtractor) Extract(ctx context.Context, src extract.Source) ([]string, error) {
	if src.Name == p.failOn {
		return nil, errors.New("corrupt file")
	}
	return strings.Split(string(src.Data), "\f"), nil
}

// switchEmbedder wraps the hashing embedder and records single-text calls.
type switchEmbedder struct {
	mu      sync.Mutex
	inner   *embedding.Hash
	fail    bool
	queries []string
}

func newSwitchEmbedder() *switchEmbedder {
	return &switchEmbedder{inner: embedding.NewHash(128)}
}

func (e *switchEmbedder) Name() string { return "switch" }

func (e *switchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return nil, errors.New("embedding service down")
	}
	if len(texts) == 1 {
		e.queries = append(e.queries, texts[0])
	}
	return e.inner.Embed(ctx, texts)
}

func (e *switchEmbedder) setFail(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = v
}

// recordingGenerator answers "answer N" and keeps every request.
type recordingGenerator struct {
	mu       sync.Mutex
	requests []generation.Request
	err      error
	reply    string
}

func (g *recordingGenerator) Generate(ctx context.Context, req generation.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return fmt.Sprintf("answer %d", len(g.requests)), nil
}

func (g *recordingGenerator) last() generation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

// closeCounter counts Close calls on the indexes it builds.
type closeCounter struct {
	mu     sync.Mutex
	closed int
}

type countedIndex struct {
	index.Index
	owner *closeCounter
}

func (c countedIndex) Close(ctx context.Context) error {
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	c.owner.closed++
	return nil
}

func (c *closeCounter) Build(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) (index.Index, error) {
	idx, err := index.NewMemory(chunks, vectors)
	if err != nil {
		return nil, err
	}
	return countedIndex{Index: idx, owner: c}, nil
}

func (c *closeCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fixture struct {
	session  *Session
	embedder *switchEmbedder
	gen      *recordingGenerator
	builder  *closeCounter
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		embedder: newSwitchEmbedder(),
		gen:      &recordingGenerator{},
		builder:  &closeCounter{},
	}
	s, err := NewSession(Deps{
		Extractor: pagesExtractor{failOn: "broken.pdf"},
		Embedder:  f.embedder,
		Generator: f.gen,
		Builder:   f.builder,
	}, opts)
	require.NoError(t, err)
	f.session = s
	return f
}

func doc(name, text string) extract.Source {
	return extract.Source{Name: name, Data: []byte(text)}
}

func TestIngest_EmptyInput(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()

	_, err := f.session.Ingest(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, Unindexed, f.session.State())

	_, err = f.session.Ask(ctx, "anything?")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, f.gen.requests)
}

func TestIngest_SingleUnitChunks(t *testing.T) {
	opts := DefaultOptions()
	opts.ChunkSize = 1
	opts.ChunkOverlap = 0
	f := newFixture(t, opts)
	ctx := context.Background()

	res, err := f.session.Ingest(ctx, []extract.Source{doc("abc.txt", "A\nB\nC")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, []string{"abc.txt"}, res.Documents)
	assert.Equal(t, Ready, f.session.State())

	ans, err := f.session.Ask(ctx, "what is A?")
	require.NoError(t, err)
	assert.Equal(t, "answer 1", ans.Text)
	assert.Equal(t, 0, ans.Turn.Seq)
	require.Len(t, f.session.History(), 1)

	var contents []string
	for _, r := range f.gen.last().Context {
		contents = append(contents, r.Chunk.Content)
	}
	assert.ElementsMatch(t, []string{"A", "B", "C"}, contents)
}

func TestAsk_WindowKeepsLastFive(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	_, err := f.session.Ingest(ctx, []extract.Source{doc("a.txt", "some content")})
	require.NoError(t, err)

	for i := 1; i <= 6; i++ {
		_, err := f.session.Ask(ctx, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}

	h := f.session.History()
	require.Len(t, h, 5)
	assert.Equal(t, "question 2", h[0].Question)
	assert.Equal(t, "question 6", h[4].Question)
	assert.Len(t, f.gen.last().History, 5, "generator saw the window before the sixth turn")
}

func TestAsk_RetrievesVerbatimChunkFirst(t *testing.T) {
	opts := DefaultOptions()
	opts.ChunkSize = 60
	opts.ChunkOverlap = 0
	f := newFixture(t, opts)
	ctx := context.Background()

	text := strings.Join([]string{
		"The warranty covers manufacturing defects for two years.",
		"Batteries must be recycled at an approved facility.",
		"Firmware updates are released every quarter.",
		"Customer support is available on weekdays.",
	}, "\n")
	_, err := f.session.Ingest(ctx, []extract.Source{doc("manual.pdf", text)})
	require.NoError(t, err)

	ans, err := f.session.Ask(ctx, "Firmware updates are released every quarter.")
	require.NoError(t, err)
	require.NotEmpty(t, ans.Sources)
	assert.Contains(t, ans.Sources[0].Chunk.Content, "Firmware updates are released every quarter.")
	assert.Equal(t, "manual.pdf", ans.Sources[0].Chunk.Source)
}

func TestIngest_ChunkIndexesAreGlobal(t *testing.T) {
	opts := DefaultOptions()
	opts.ChunkSize = 5
	opts.ChunkOverlap = 0
	f := newFixture(t, opts)

	_, err := f.session.Ingest(context.Background(), []extract.Source{
		doc("one.txt", "aaaa\nbbbb"),
		doc("two.txt", "cccc\fdddd"),
	})
	require.NoError(t, err)

	ans, err := f.session.Ask(context.Background(), "dddd")
	require.NoError(t, err)
	seen := map[int]string{}
	for _, r := range ans.Sources {
		seen[r.Chunk.Index] = r.Chunk.Source
	}
	assert.Equal(t, map[int]string{0: "one.txt", 1: "one.txt", 2: "two.txt", 3: "two.txt"}, seen)
}

func TestIngest_ExtractionFailureKeepsState(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	_, err := f.session.Ingest(ctx, []extract.Source{doc("first.txt", "first content")})
	require.NoError(t, err)
	_, err = f.session.Ask(ctx, "first?")
	require.NoError(t, err)

	_, err = f.session.Ingest(ctx, []extract.Source{doc("ok.txt", "x"), doc("broken.pdf", "")})

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, 1, extErr.DocIndex)
	assert.Equal(t, "broken.pdf", extErr.Name)

	st := f.session.Status()
	assert.Equal(t, Ready, st.State)
	assert.Equal(t, []string{"first.txt"}, st.Documents)
	assert.Equal(t, 1, st.Turns, "memory survives a failed ingest")
	assert.Zero(t, f.builder.count())
}

func TestIngest_EmbeddingFailureKeepsState(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()

	f.embedder.setFail(true)
	_, err := f.session.Ingest(ctx, []extract.Source{doc("a.txt", "content")})
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, index.StageIndex, embErr.Stage)
	assert.Equal(t, 0, embErr.ChunkIndex)
	assert.Equal(t, Unindexed, f.session.State())
}

func TestAsk_QueryEmbeddingFailure(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	_, err := f.session.Ingest(ctx, []extract.Source{doc("a.txt", "content")})
	require.NoError(t, err)

	f.embedder.setFail(true)
	_, err = f.session.Ask(ctx, "q")
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, index.StageQuery, embErr.Stage)
	assert.Empty(t, f.session.History())
}

func TestAsk_GenerationFailureRecordsNothing(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	_, err := f.session.Ingest(ctx, []extract.Source{doc("a.txt", "content")})
	require.NoError(t, err)

	f.gen.err = errors.New("model overloaded")
	_, err = f.session.Ask(ctx, "q")
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Empty(t, f.session.History())

	f.gen.err = nil
	f.gen.reply = "   "
	_, err = f.session.Ask(ctx, "q")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
	assert.Empty(t, f.session.History())
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, req generation.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAsk_TimeoutIsAFailure(t *testing.T) {
	opts := DefaultOptions()
	opts.AskTimeout = 20 * time.Millisecond
	s, err := NewSession(Deps{
		Extractor: pagesExtractor{},
		Embedder:  embedding.NewHash(0),
		Generator: blockingGenerator{},
	}, opts)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.Ingest(ctx, []extract.Source{doc("a.txt", "content")})
	require.NoError(t, err)

	_, err = s.Ask(ctx, "q")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, s.History())
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	_, err := f.session.Ingest(ctx, []extract.Source{doc("a.txt", "content")})
	require.NoError(t, err)

	_, err = f.session.Ask(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAsk_FoldsHistoryIntoQuery(t *testing.T) {
	opts := DefaultOptions()
	opts.FoldHistoryTurns = 1
	f := newFixture(t, opts)
	ctx := context.Background()
	_, err := f.session.Ingest(ctx, []extract.Source{doc("a.txt", "content")})
	require.NoError(t, err)

	_, err = f.session.Ask(ctx, "what is the price of the basic plan?")
	require.NoError(t, err)
	_, err = f.session.Ask(ctx, "and the pro one?")
	require.NoError(t, err)

	q := f.embedder.queries
	require.GreaterOrEqual(t, len(q), 2)
	assert.Equal(t, "what is the price of the basic plan?", q[len(q)-2])
	assert.Equal(t, "what is the price of the basic plan?\nand the pro one?", q[len(q)-1])
	assert.Equal(t, "and the pro one?", f.gen.last().Question, "the generator still gets the raw question")
}

func TestReingest_ReplacesIndexAndClearsMemory(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()

	_, err := f.session.Ingest(ctx, []extract.Source{doc("old.txt", "old content")})
	require.NoError(t, err)
	_, err = f.session.Ask(ctx, "q")
	require.NoError(t, err)

	_, err = f.session.Ingest(ctx, []extract.Source{doc("new.txt", "new content")})
	require.NoError(t, err)

	assert.Equal(t, 1, f.builder.count(), "previous index released")
	assert.Empty(t, f.session.History())
	assert.Equal(t, []string{"new.txt"}, f.session.Status().Documents)
}

func TestReset(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	_, err := f.session.Ingest(ctx, []extract.Source{doc("a.txt", "content")})
	require.NoError(t, err)
	_, err = f.session.Ask(ctx, "q")
	require.NoError(t, err)

	require.NoError(t, f.session.Reset(ctx))
	assert.Equal(t, Unindexed, f.session.State())
	assert.Empty(t, f.session.History())
	assert.Equal(t, 1, f.builder.count())

	_, err = f.session.Ask(ctx, "q")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestIngest_EmptyTextIsReady(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()

	res, err := f.session.Ingest(ctx, []extract.Source{doc("scan.pdf", "\f\f")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Chunks)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, Ready, f.session.State())

	ans, err := f.session.Ask(ctx, "anything?")
	require.NoError(t, err)
	assert.Empty(t, ans.Sources)
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(Deps{}, DefaultOptions())
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.ChunkOverlap = opts.ChunkSize
	_, err = NewSession(Deps{
		Extractor: pagesExtractor{},
		Embedder:  embedding.NewHash(0),
		Generator: generation.Extractive{},
	}, opts)
	assert.ErrorIs(t, err, chunker.ErrInvalidOverlap)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	st := f.session.Status()
	assert.Equal(t, Unindexed, st.State)
	assert.Equal(t, "unindexed", st.State.String())
	assert.Equal(t, 5, st.Window)
	assert.Equal(t, DefaultTopK, st.TopK)
	assert.Equal(t, "switch", st.Embedder)
	assert.True(t, st.LastIngest.IsZero())
}

func TestStatus_DocumentsAreNotShared(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	res, err := f.session.Ingest(context.Background(), []extract.Source{doc("a.txt", "alpha"), doc("b.txt", "beta")})
	require.NoError(t, err)
	res.Documents[0] = "changed.txt"

	st := f.session.Status()
	assert.Equal(t, []string{"a.txt", "b.txt"}, st.Documents)
	st.Documents[1] = "changed.txt"
	assert.Equal(t, []string{"a.txt", "b.txt"}, f.session.Status().Documents)
}

func TestAsk_ConcurrentCallsAreSerialized(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	_, err := f.session.Ingest(ctx, []extract.Source{doc("a.txt", "content")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.session.Ask(ctx, fmt.Sprintf("q%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	h := f.session.History()
	require.Len(t, h, 5)
	for i := 1; i < len(h); i++ {
		assert.Equal(t, h[i-1].Seq+1, h[i].Seq)
	}
}

// TestAsk_TurnAccounting: each successful ask appends one turn, each failure none.
func TestAsk_TurnAccounting(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		window := rapid.IntRange(1, 6).Draw(rt, "window")
		outcomes := rapid.SliceOfN(rapid.Bool(), 1, 20).Draw(rt, "outcomes")

		opts := DefaultOptions()
		opts.MemoryWindow = window
		gen := &recordingGenerator{}
		s, err := NewSession(Deps{
			Extractor: pagesExtractor{},
			Embedder:  embedding.NewHash(32),
			Generator: gen,
		}, opts)
		require.NoError(rt, err)
		ctx := context.Background()
		_, err = s.Ingest(ctx, []extract.Source{doc("a.txt", "content")})
		require.NoError(rt, err)

		successes := 0
		for _, ok := range outcomes {
			if ok {
				gen.err = nil
				successes++
			} else {
				gen.err = errors.New("fail")
			}
			_, _ = s.Ask(ctx, "q")
		}
		assert.Equal(rt, min(successes, window), len(s.History()))
	})
}
