package embedding

import (
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClientConfig configures the shared OpenAI-compatible client.
type ClientConfig struct {
	APIKey  string        // Falls back to OPENAI_API_KEY when empty
	BaseURL string        // Optional, for OpenAI-compatible gateways
	Timeout time.Duration // Per-request timeout, 0 keeps the SDK default
}

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
}

// NewClient creates a new OpenAI client.
// It returns an error if no API key is configured or present in the environment.
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., answer generation).
func (c *Client) Client() *openai.Client {
	return c.client
}
