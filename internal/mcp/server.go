package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docchat/internal/extract"
	"github.com/bull/docchat/internal/qa"
	"github.com/bull/docchat/internal/source"
)

// RepoLoader fetches documents from a repository location.
// *source.GitHub implements it.
type RepoLoader interface {
	Load(ctx context.Context, spec source.RepoSpec, supports source.SupportsFunc) ([]extract.Source, error)
}

// PathLoader reads local documents. source.Loader implements it.
type PathLoader interface {
	Load(paths []string) ([]extract.Source, error)
}

// Server wraps the MCP server with its session.
type Server struct {
	server  *mcp.Server
	session *qa.Session
}

// Config holds server dependencies.
type Config struct {
	Session  *qa.Session
	Repos    RepoLoader          // nil disables the repo input of ingest_documents
	Supports source.SupportsFunc // filters every local and repo document
	Logger   *slog.Logger
	Version  string

	// DocsRoot confines the paths input of ingest_documents. Empty disables it.
	DocsRoot     string
	MaxFileBytes int64
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}

	var paths PathLoader
	if cfg.DocsRoot != "" {
		paths = source.Loader{
			Root:     cfg.DocsRoot,
			Supports: cfg.Supports,
			Strict:   true,
			MaxBytes: cfg.MaxFileBytes,
		}
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "docchat",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_documents",
		Description: "Index local files, directories or a GitHub location for question answering. Replaces any previous index and clears the conversation.",
	}, makeIngestHandler(cfg.Session, paths, cfg.Repos, cfg.Supports, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question from the indexed documents, taking the recent conversation into account. Returns the answer and the passages it was based on.",
	}, makeAskHandler(cfg.Session))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_history",
		Description: "List the remembered question and answer turns, oldest first.",
	}, makeHistoryHandler(cfg.Session))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_session",
		Description: "Drop the index and the conversation.",
	}, makeResetHandler(cfg.Session))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get the session state, indexed documents, chunk count and conversation size.",
	}, makeStatusHandler(cfg.Session))

	return &Server{
		server:  server,
		session: cfg.Session,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
