package noop

import (
	"context"

	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

const holdReply = `{"action":"HOLD","confidence":0,"reasoning":"no LLM provider configured"}`

// Completer is the fallback used when no LLM provider is configured.
// It always answers HOLD with zero confidence.
type Completer struct{}

func New() *Completer {
	return &Completer{}
}

func (c *Completer) Complete(ctx context.Context, messages []types.Message, model string) (string, error) {
	logger.Debug(ctx, "Noop completer called - always returns HOLD", "model", model, "messages", len(messages))
	return holdReply, nil
}
