package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docchat/internal/extract"
	"github.com/bull/docchat/internal/qa"
	"github.com/bull/docchat/internal/source"
)

var (
	ErrNoInput       = errors.New("provide paths or repo")
	ErrReposDisabled = errors.New("repository ingestion is not configured")
	ErrPathsDisabled = errors.New("local path ingestion is not configured; set server.docs_root")
)

const notReadyMessage = "no documents are indexed yet; call ingest_documents first"

// makeIngestHandler creates the ingest_documents tool handler.
// Local paths are read first, then the repository, and everything is indexed as one batch.
func makeIngestHandler(
	session *qa.Session,
	paths PathLoader,
	repos RepoLoader,
	supports source.SupportsFunc,
	logger *slog.Logger,
) func(context.Context, *mcp.CallToolRequest, IngestDocumentsInput) (*mcp.CallToolResult, IngestDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestDocumentsInput) (
		*mcp.CallToolResult, IngestDocumentsOutput, error,
	) {
		if len(input.Paths) == 0 && input.Repo == "" {
			return nil, IngestDocumentsOutput{}, ErrNoInput
		}

		var sources []extract.Source
		if len(input.Paths) > 0 {
			if paths == nil {
				return nil, IngestDocumentsOutput{}, ErrPathsDisabled
			}
			local, err := paths.Load(input.Paths)
			if err != nil {
				return nil, IngestDocumentsOutput{}, fmt.Errorf("failed to load paths: %w", err)
			}
			sources = append(sources, local...)
		}

		if input.Repo != "" {
			if repos == nil {
				return nil, IngestDocumentsOutput{}, ErrReposDisabled
			}
			spec, err := source.ParseRepoSpec(input.Repo)
			if err != nil {
				return nil, IngestDocumentsOutput{}, err
			}
			remote, err := repos.Load(ctx, spec, supports)
			if err != nil {
				return nil, IngestDocumentsOutput{}, fmt.Errorf("failed to load repository: %w", err)
			}
			sources = append(sources, remote...)
		}

		if len(sources) == 0 {
			return nil, IngestDocumentsOutput{}, fmt.Errorf("no supported documents found: %w", qa.ErrEmptyInput)
		}

		logger.Info("Ingesting documents", "sources", len(sources), "repo", input.Repo)
		res, err := session.Ingest(ctx, sources)
		if err != nil {
			return nil, IngestDocumentsOutput{}, fmt.Errorf("ingestion failed: %w", err)
		}

		out := IngestDocumentsOutput{
			Documents:  res.Documents,
			Pages:      res.Pages,
			Chunks:     res.Chunks,
			DurationMS: res.Duration.Milliseconds(),
			Message:    fmt.Sprintf("Indexed %d documents into %d chunks.", len(res.Documents), res.Chunks),
		}
		if res.Chunks == 0 {
			out.Message = "No text could be extracted; questions will find no passages."
		}
		return nil, out, nil
	}
}

// makeAskHandler creates the ask_question tool handler.
func makeAskHandler(session *qa.Session) func(
	context.Context, *mcp.CallToolRequest, AskQuestionInput,
) (*mcp.CallToolResult, AskQuestionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskQuestionInput) (
		*mcp.CallToolResult, AskQuestionOutput, error,
	) {
		ans, err := session.Ask(ctx, input.Question)
		if err != nil {
			if errors.Is(err, qa.ErrNotReady) {
				return nil, AskQuestionOutput{}, fmt.Errorf("%s: %w", notReadyMessage, err)
			}
			return nil, AskQuestionOutput{}, err
		}

		sources := make([]Passage, 0, len(ans.Sources))
		for _, r := range ans.Sources {
			sources = append(sources, Passage{
				Source:     r.Chunk.Source,
				ChunkIndex: r.Chunk.Index,
				Score:      r.Score,
				Content:    r.Chunk.Content,
			})
		}
		return nil, AskQuestionOutput{
			Answer:  ans.Text,
			Sources: sources,
			Turn:    ans.Turn.Seq,
		}, nil
	}
}

// makeHistoryHandler creates the get_history tool handler.
func makeHistoryHandler(session *qa.Session) func(
	context.Context, *mcp.CallToolRequest, GetHistoryInput,
) (*mcp.CallToolResult, GetHistoryOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetHistoryInput) (
		*mcp.CallToolResult, GetHistoryOutput, error,
	) {
		history := session.History()
		turns := make([]Turn, 0, len(history))
		for _, t := range history {
			turns = append(turns, Turn{Seq: t.Seq, Question: t.Question, Answer: t.Answer, At: t.At})
		}
		return nil, GetHistoryOutput{Turns: turns, Count: len(turns)}, nil
	}
}

// makeResetHandler creates the reset_session tool handler.
// The session is reset even when releasing the index fails; that failure is reported.
func makeResetHandler(session *qa.Session) func(
	context.Context, *mcp.CallToolRequest, ResetSessionInput,
) (*mcp.CallToolResult, ResetSessionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ResetSessionInput) (
		*mcp.CallToolResult, ResetSessionOutput, error,
	) {
		if err := session.Reset(ctx); err != nil {
			return nil, ResetSessionOutput{}, fmt.Errorf("session reset, but releasing the index failed: %w", err)
		}
		return nil, ResetSessionOutput{
			State:   session.State().String(),
			Message: "Index and conversation cleared.",
		}, nil
	}
}

// makeStatusHandler creates the get_status tool handler.
func makeStatusHandler(session *qa.Session) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		return nil, statusOutput(session.Status()), nil
	}
}

func statusOutput(st qa.Status) StatusOutput {
	out := StatusOutput{
		State:     st.State.String(),
		Documents: st.Documents,
		Chunks:    st.Chunks,
		Turns:     st.Turns,
		Window:    st.Window,
		TopK:      st.TopK,
		Embedder:  st.Embedder,
	}
	if out.Documents == nil {
		out.Documents = []string{} // Ensure non-nil for JSON marshaling
	}
	if !st.LastIngest.IsZero() {
		out.LastIngest = st.LastIngest.UTC().Format(time.RFC3339)
	}
	return out
}
