package claude

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

const (
	// DefaultEndpoint is the public Anthropic messages API. Proxies set CLAUDE_API_ENDPOINT.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	apiVersion      = "2023-06-01"
	defaultMaxTok   = 1024
)

type Config struct {
	APIKey      string
	Endpoint    string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client implements the Completer interface using the Anthropic messages API
type Client struct {
	cfg  Config
	http *api.Client
}

var _ interfaces.Completer = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTok
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: api.NewClient(
			api.WithTimeout(cfg.Timeout),
			api.WithHeader("x-api-key", cfg.APIKey),
			api.WithHeader("anthropic-version", apiVersion),
			api.WithLogging(true),
		),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends the conversation. System messages are lifted into the
// top-level system field since the API rejects them inside messages.
func (c *Client) Complete(ctx context.Context, messages []types.Message, model string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	if c.cfg.APIKey == "" {
		return "", errors.New("CLAUDE_API_KEY missing")
	}

	req := messagesRequest{
		Model:       model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	var system []string
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, message{Role: m.Role, Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")

	resp, err := c.http.POST(ctx, c.cfg.Endpoint, req)
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}

	var r messagesResponse
	if err := resp.ParseJSON(&r); err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}

	var sb strings.Builder
	for _, part := range r.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("claude: empty response")
	}
	return out, nil
}
