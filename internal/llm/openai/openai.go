package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"llm-crypto-trader/internal/api"
	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/trace"
	"llm-crypto-trader/internal/types"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client talks to the chat completions endpoint.
type Client struct {
	cfg  Config
	http *api.Client
}

var _ interfaces.Completer = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: api.NewClient(
			api.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
			api.WithTimeout(cfg.Timeout),
			api.WithHeader("Authorization", "Bearer "+cfg.APIKey),
			api.WithLogging(true),
		),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Complete(ctx context.Context, messages []types.Message, model string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	if c.cfg.APIKey == "" {
		return "", errors.New("OPENAI_API_KEY missing")
	}

	body := chatRequest{
		Model:       model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	for _, m := range messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.http.POST(ctx, "/chat/completions", body)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	var r chatResponse
	if err := resp.ParseJSON(&r); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(r.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}
	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}
