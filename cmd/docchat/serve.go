package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/bull/docchat/internal/mcp"
)

var serveFlags struct {
	stdio     bool
	addr      string
	stateless bool
	docsRoot  string
}

var serveCmd = &cobra.Command{
	Use:   "serve [paths...]",
	Short: "Serve the document session over the Model Context Protocol",
	Long: `Starts an MCP server exposing ingest_documents, ask_question, get_history,
reset_session and get_status. Paths, if given, are processed before serving.

By default MCP is served over Streamable HTTP at /mcp, with /health and /metrics
alongside. With --stdio, MCP runs over stdin/stdout and the HTTP endpoints are
still served in the background for local testing.

Clients may only ingest local files under --docs-root (server.docs_root), which
defaults to the working directory.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveFlags.stdio, "stdio", false, "serve MCP over stdin/stdout")
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "HTTP listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveFlags.stateless, "stateless", false, "disable MCP session management over HTTP")
	serveCmd.Flags().StringVar(&serveFlags.docsRoot, "docs-root", "", "directory MCP clients may ingest from (overrides server.docs_root)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// stdout carries the protocol in stdio mode, so logs always go to stderr.
	a, err := newApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) > 0 {
		sources, err := a.loadPaths(args)
		if err != nil {
			return err
		}
		if _, err := a.session.Ingest(ctx, sources); err != nil {
			return fmt.Errorf("process documents: %w", err)
		}
	}

	var repos mcpserver.RepoLoader
	if gh, err := newGitHubLoader(a); err != nil {
		a.logger.Warn("Repository ingestion disabled", "error", err)
	} else {
		repos = gh
	}

	docsRoot, err := resolveDocsRoot(a.cfg.Server.DocsRoot)
	if err != nil {
		return err
	}
	a.logger.Info("Local ingestion confined", "docs_root", docsRoot)

	server := mcpserver.NewServer(&mcpserver.Config{
		Session:      a.session,
		Repos:        repos,
		Supports:     a.registry.Supports,
		Logger:       a.logger,
		DocsRoot:     docsRoot,
		MaxFileBytes: a.cfg.Server.MaxFileBytes,
	})

	muxOpts := mcpserver.MuxOptions{
		Metrics: a.metrics.Handler(),
		HTTP:    &mcpserver.HTTPHandlerOptions{Stateless: serveFlags.stateless},
	}
	if a.store != nil {
		muxOpts.Store = a.store
	}

	addr := a.cfg.Server.Addr
	if serveFlags.addr != "" {
		addr = serveFlags.addr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mcpserver.NewMux(server, muxOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if serveFlags.stdio {
		go func() {
			a.logger.Info("Starting health server", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("Health server error", "error", err)
			}
		}()
		defer shutdown(httpServer)

		a.logger.Info("Starting docchat MCP server (stdio mode)")
		return server.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", "addr", addr, "mcp", "/mcp", "health", "/health", "metrics", "/metrics")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("Shutting down")
		shutdown(httpServer)
		return nil
	}
}

// resolveDocsRoot picks the flag, then the config, then the working directory.
func resolveDocsRoot(configured string) (string, error) {
	root := configured
	if serveFlags.docsRoot != "" {
		root = serveFlags.docsRoot
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve docs root: %w", err)
		}
		root = wd
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("docs root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("docs root %s is not a directory", root)
	}
	return root, nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
