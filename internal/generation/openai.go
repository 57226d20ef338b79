package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/index"
	"github.com/bull/docchat/internal/memory"
)

const (
	// DefaultModel is the chat model used for answers.
	DefaultModel = "gpt-4o-mini"

	// DefaultMaxContextTokens bounds the retrieved passages sent with each question.
	DefaultMaxContextTokens = 6000
)

// OpenAIConfig configures the chat completion generator.
type OpenAIConfig struct {
	Model            string
	MaxContextTokens int
	Temperature      float64
	Counter          TokenCounter // nil uses tiktoken for Model
}

// OpenAI answers with an OpenAI chat model.
// Rate limit errors are retried with exponential backoff.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	counter     TokenCounter
	logger      *slog.Logger
}

// NewOpenAI creates a generator on an existing OpenAI client.
func NewOpenAI(client *openai.Client, cfg OpenAIConfig, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	if cfg.Counter == nil {
		cfg.Counter = NewTiktoken(cfg.Model, logger)
	}
	return &OpenAI{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxContextTokens,
		temperature: cfg.Temperature,
		counter:     cfg.Counter,
		logger:      logger,
	}
}

// Generate sends the grounded conversation to the model and returns its reply.
func (g *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	passages := fitContext(req.Context, g.maxTokens, g.counter)
	if dropped := len(req.Context) - len(passages); dropped > 0 {
		g.logger.Warn("Trimmed context to fit token budget",
			"dropped", dropped, "kept", len(passages), "budget", g.maxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(passages, req.History, req.Question),
		Model:    openai.ChatModel(g.model),
	}
	if g.temperature > 0 {
		params.Temperature = openai.Float(g.temperature)
	}

	var answer string
	operation := func() error {
		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if embedding.IsRateLimitError(err) {
				g.logger.Warn("Chat completion rate limited, retrying", "model", g.model)
				return err
			}
			return backoff.Permanent(fmt.Errorf("chat completion failed: %w", err))
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(ErrNoChoices)
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 60 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return answer, nil
}

// buildMessages lays out system context, replayed history, then the question.
func buildMessages(passages []index.Result, history []memory.Turn, question string) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2+2*len(history))
	msgs = append(msgs, openai.SystemMessage(systemPrompt+"\n\nContext:\n"+FormatContext(passages)))
	for _, t := range history {
		msgs = append(msgs, openai.UserMessage(t.Question), openai.AssistantMessage(t.Answer))
	}
	msgs = append(msgs, openai.UserMessage(question))
	return msgs
}
