package interfaces

import (
	"context"

	"llm-crypto-trader/internal/types"
)

// Strategy never fails: degraded outcomes come back as HOLD decisions.
type Strategy interface {
	Name() types.StrategyKind
	Decide(ctx context.Context, in types.StrategyInput) types.Decision
}

// Completer sends a chat conversation to a language model and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, messages []types.Message, model string) (string, error)
}
