// Package config loads docchat settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/memory"
	"github.com/bull/docchat/internal/qa"
)

// DefaultPath is looked up in the working directory when no path is given.
const DefaultPath = "docchat.yaml"

// Adapter names.
const (
	EmbedderOpenAI = "openai"
	EmbedderHash   = "hash"

	GeneratorOpenAI     = "openai"
	GeneratorExtractive = "extractive"

	IndexMemory = "memory"
	IndexQdrant = "qdrant"
)

var ErrInvalid = errors.New("invalid configuration")

// ChunkConfig controls document splitting, in runes.
type ChunkConfig struct {
	Size      int    `yaml:"size"`
	Overlap   int    `yaml:"overlap"`
	Separator string `yaml:"separator"`
}

// RetrievalConfig controls how many chunks ground each answer.
type RetrievalConfig struct {
	TopK             int `yaml:"top_k"`
	FoldHistoryTurns int `yaml:"fold_history_turns"`
}

// MemoryConfig controls the conversation window.
type MemoryConfig struct {
	Window int `yaml:"window"`
}

// OpenAIConfig holds the shared OpenAI-compatible endpoint settings.
type OpenAIConfig struct {
	APIKey      string `yaml:"-"` // only from OPENAI_API_KEY
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects the embedding adapter.
type EmbedderConfig struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	Dimension int    `yaml:"dimension"` // hash embedder only
}

// GeneratorConfig selects the answer generator.
type GeneratorConfig struct {
	Type             string  `yaml:"type"`
	Model            string  `yaml:"model"`
	MaxContextTokens int     `yaml:"max_context_tokens"`
	Temperature      float64 `yaml:"temperature"`
}

// QdrantConfig holds Qdrant connection details.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// IndexConfig selects where vectors live.
type IndexConfig struct {
	Type           string       `yaml:"type"`
	EmbedBatchSize int          `yaml:"embed_batch_size"`
	Qdrant         QdrantConfig `yaml:"qdrant"`
}

// SessionConfig bounds blocking operations. Zero disables a timeout.
type SessionConfig struct {
	AskTimeoutSecs    int `yaml:"ask_timeout_secs"`
	IngestTimeoutSecs int `yaml:"ingest_timeout_secs"`
}

// ServerConfig controls the MCP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// DocsRoot confines paths sent by MCP clients. Empty disables local paths.
	DocsRoot     string `yaml:"docs_root"`
	MaxFileBytes int64  `yaml:"max_file_bytes"`
}

// GitHubConfig authenticates repository loading.
type GitHubConfig struct {
	Token string `yaml:"-"` // only from GITHUB_TOKEN
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Config is the root configuration.
type Config struct {
	Chunk     ChunkConfig     `yaml:"chunk"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Memory    MemoryConfig    `yaml:"memory"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Index     IndexConfig     `yaml:"index"`
	Session   SessionConfig   `yaml:"session"`
	Server    ServerConfig    `yaml:"server"`
	GitHub    GitHubConfig    `yaml:"-"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Chunk: ChunkConfig{
			Size:      chunker.DefaultSize,
			Overlap:   chunker.DefaultOverlap,
			Separator: chunker.DefaultSeparator,
		},
		Retrieval: RetrievalConfig{TopK: qa.DefaultTopK},
		Memory:    MemoryConfig{Window: memory.DefaultSize},
		OpenAI:    OpenAIConfig{TimeoutSecs: 60},
		Embedder:  EmbedderConfig{Type: EmbedderOpenAI},
		Generator: GeneratorConfig{Type: GeneratorOpenAI},
		Index: IndexConfig{
			Type:   IndexMemory,
			Qdrant: QdrantConfig{Host: "localhost", Port: 6334},
		},
		Session: SessionConfig{AskTimeoutSecs: 120, IngestTimeoutSecs: 600},
		Server:  ServerConfig{Addr: "127.0.0.1:8080", MaxFileBytes: 64 << 20},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path tries DefaultPath; a missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() error {
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.GitHub.Token, "GITHUB_TOKEN")
	setString(&c.Embedder.Type, "DOCCHAT_EMBEDDER")
	setString(&c.Embedder.Model, "DOCCHAT_EMBEDDING_MODEL")
	setString(&c.Generator.Type, "DOCCHAT_GENERATOR")
	setString(&c.Generator.Model, "DOCCHAT_CHAT_MODEL")
	setString(&c.Index.Type, "DOCCHAT_INDEX")
	setString(&c.Index.Qdrant.Host, "QDRANT_HOST")
	setString(&c.Index.Qdrant.APIKey, "QDRANT_API_KEY")
	setString(&c.Log.Level, "DOCCHAT_LOG_LEVEL")
	setString(&c.Log.Format, "DOCCHAT_LOG_FORMAT")
	setString(&c.Server.DocsRoot, "DOCCHAT_DOCS_ROOT")
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = "0.0.0.0:" + port
	}

	ints := []struct {
		dst *int
		key string
	}{
		{&c.Index.Qdrant.Port, "QDRANT_PORT"},
		{&c.Chunk.Size, "DOCCHAT_CHUNK_SIZE"},
		{&c.Chunk.Overlap, "DOCCHAT_CHUNK_OVERLAP"},
		{&c.Retrieval.TopK, "DOCCHAT_TOP_K"},
		{&c.Retrieval.FoldHistoryTurns, "DOCCHAT_FOLD_HISTORY"},
		{&c.Memory.Window, "DOCCHAT_MEMORY_WINDOW"},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, e.key, v)
		}
		*e.dst = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects settings the session cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Chunk.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunk.size must be positive, got %d", c.Chunk.Size))
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		errs = append(errs, fmt.Errorf("chunk.overlap must be in [0, size), got %d", c.Chunk.Overlap))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.FoldHistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("retrieval.fold_history_turns must not be negative"))
	}
	if c.Memory.Window <= 0 {
		errs = append(errs, fmt.Errorf("memory.window must be positive, got %d", c.Memory.Window))
	}
	if !oneOf(c.Embedder.Type, EmbedderOpenAI, EmbedderHash) {
		errs = append(errs, fmt.Errorf("unknown embedder.type %q", c.Embedder.Type))
	}
	if !oneOf(c.Generator.Type, GeneratorOpenAI, GeneratorExtractive) {
		errs = append(errs, fmt.Errorf("unknown generator.type %q", c.Generator.Type))
	}
	if !oneOf(c.Index.Type, IndexMemory, IndexQdrant) {
		errs = append(errs, fmt.Errorf("unknown index.type %q", c.Index.Type))
	}
	if c.Server.MaxFileBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_file_bytes must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if !oneOf(c.Log.Format, "text", "json") {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// NeedsOpenAI reports whether any adapter calls the OpenAI API.
func (c *Config) NeedsOpenAI() bool {
	return c.Embedder.Type == EmbedderOpenAI || c.Generator.Type == GeneratorOpenAI
}

// SessionOptions maps the configuration onto qa.Options.
func (c *Config) SessionOptions() qa.Options {
	return qa.Options{
		ChunkSize:        c.Chunk.Size,
		ChunkOverlap:     c.Chunk.Overlap,
		Separator:        c.Chunk.Separator,
		MemoryWindow:     c.Memory.Window,
		TopK:             c.Retrieval.TopK,
		FoldHistoryTurns: c.Retrieval.FoldHistoryTurns,
		EmbedBatchSize:   c.Index.EmbedBatchSize,
		AskTimeout:       time.Duration(c.Session.AskTimeoutSecs) * time.Second,
		IngestTimeout:    time.Duration(c.Session.IngestTimeoutSecs) * time.Second,
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
