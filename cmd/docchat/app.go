package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bull/docchat/internal/config"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/extract"
	"github.com/bull/docchat/internal/generation"
	"github.com/bull/docchat/internal/index"
	"github.com/bull/docchat/internal/metrics"
	"github.com/bull/docchat/internal/qa"
	"github.com/bull/docchat/internal/source"
	"github.com/bull/docchat/internal/storage"
)

// app holds everything a subcommand needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *extract.Registry
	session  *qa.Session
	store    *storage.Qdrant // nil with the memory index
	metrics  *metrics.Collector
}

// newApp loads configuration and wires the session. Logs go to logOut.
func newApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := cfg.Log.NewLogger(logOut)
	slog.SetDefault(logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: extract.NewRegistry(),
		metrics:  metrics.NewCollector("docchat"),
	}
	a.registry.Register(extract.PDF{Logger: logger}, ".pdf")

	var client *embedding.Client
	if cfg.NeedsOpenAI() {
		client, err = embedding.NewClient(embedding.ClientConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Timeout: time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("create OpenAI client: %w", err)
		}
	}

	var embedder embedding.Embedder
	switch cfg.Embedder.Type {
	case config.EmbedderHash:
		embedder = embedding.NewHash(cfg.Embedder.Dimension)
	default:
		embedder = embedding.NewOpenAI(client, cfg.Embedder.Model, cfg.Embedder.BatchSize)
	}

	var generator generation.Generator
	switch cfg.Generator.Type {
	case config.GeneratorExtractive:
		generator = generation.Extractive{MaxChars: 600}
	default:
		generator = generation.NewOpenAI(client.Client(), generation.OpenAIConfig{
			Model:            cfg.Generator.Model,
			MaxContextTokens: cfg.Generator.MaxContextTokens,
			Temperature:      cfg.Generator.Temperature,
		}, logger)
	}

	var builder index.Builder
	if cfg.Index.Type == config.IndexQdrant {
		q := cfg.Index.Qdrant
		logger.Info("Connecting to Qdrant", "host", q.Host, "port", q.Port)
		a.store, err = storage.NewQdrant(ctx, storage.Config{
			Host:   q.Host,
			Port:   q.Port,
			APIKey: q.APIKey,
			UseTLS: q.UseTLS,
		}, logger)
		if err != nil {
			return nil, err
		}
		// Collections left behind by a crashed run are never read again.
		if n, err := a.store.DropStale(ctx); err != nil {
			logger.Warn("Failed to drop stale collections", "error", err)
		} else if n > 0 {
			logger.Info("Dropped stale collections", "count", n)
		}
		builder = a.store
	}

	a.session, err = qa.NewSession(qa.Deps{
		Extractor: a.registry,
		Embedder:  embedder,
		Generator: generator,
		Builder:   builder,
		Logger:    logger,
		Metrics:   a.metrics,
	}, cfg.SessionOptions())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create session: %w", err)
	}

	logger.Debug("Session ready",
		"embedder", embedder.Name(),
		"generator", cfg.Generator.Type,
		"index", cfg.Index.Type,
	)
	return a, nil
}

// loadPaths reads local documents the registry can extract.
func (a *app) loadPaths(paths []string) ([]extract.Source, error) {
	return source.LoadPaths(paths, a.registry.Supports)
}

// loadRepo fetches documents from a GitHub location.
func (a *app) loadRepo(ctx context.Context, repo string) ([]extract.Source, error) {
	spec, err := source.ParseRepoSpec(repo)
	if err != nil {
		return nil, err
	}
	gh, err := newGitHubLoader(a)
	if err != nil {
		return nil, err
	}
	return gh.Load(ctx, spec, a.registry.Supports)
}

func newGitHubLoader(a *app) (*source.GitHub, error) {
	return source.NewGitHub(a.cfg.GitHub.Token, a.logger)
}

// close releases the live index and the Qdrant connection.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.session != nil {
		if err := a.session.Close(ctx); err != nil {
			a.logger.Warn("Failed to release index", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close Qdrant connection", "error", err)
		}
	}
}
