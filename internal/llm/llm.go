package llm

import (
	"fmt"
	"strings"
	"time"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/llm/claude"
	"llm-crypto-trader/internal/llm/llmobs"
	"llm-crypto-trader/internal/llm/noop"
	"llm-crypto-trader/internal/llm/openai"
)

const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderNoop   = "noop"
)

// Options selects and configures a completion provider.
type Options struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New returns the configured provider wrapped with observability.
// An empty provider falls back to noop.
func New(opts Options) (interfaces.Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	var c interfaces.Completer
	switch provider {
	case ProviderOpenAI:
		c = openai.New(openai.Config{
			APIKey:      opts.APIKey,
			BaseURL:     opts.BaseURL,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			Timeout:     opts.Timeout,
		})
	case ProviderClaude, "anthropic":
		provider = ProviderClaude
		c = claude.New(claude.Config{
			APIKey:      opts.APIKey,
			Endpoint:    opts.BaseURL,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			Timeout:     opts.Timeout,
		})
	case ProviderNoop, "":
		provider = ProviderNoop
		c = noop.New()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
	return llmobs.Wrap(c, provider), nil
}
