package strategy

import (
	"context"
	"fmt"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

const rawSnippetLen = 200

// LLMStrategy asks a language model for the decision.
type LLMStrategy struct {
	completer interfaces.Completer
	model     string
}

var _ interfaces.Strategy = (*LLMStrategy)(nil)

func NewLLMStrategy(completer interfaces.Completer, model string) *LLMStrategy {
	return &LLMStrategy{completer: completer, model: model}
}

func (s *LLMStrategy) Name() types.StrategyKind {
	return types.StrategyLLM
}

// Decide makes one completion call. Provider and parse failures become HOLD
// with zero confidence.
func (s *LLMStrategy) Decide(ctx context.Context, in types.StrategyInput) types.Decision {
	messages := BuildMessages(in)

	text, err := s.completer.Complete(ctx, messages, s.model)
	if err != nil {
		logger.ErrorWithErr(ctx, "LLM completion failed", err, "model", s.model, "coin", in.Config.Coin)
		return types.Hold(fmt.Sprintf("LLM error: %v", err))
	}

	d, err := ParseDecision(text)
	if err != nil {
		logger.Warn(ctx, "Unparseable LLM response", "error", err, "model", s.model)
		return types.Hold(fmt.Sprintf("Failed to parse LLM response (%v): %s", err, snippet(text)))
	}

	if d.StopLossPct == 0 && d.TakeProfitPct == 0 {
		d.StopLossPct, d.TakeProfitPct = RiskLevels(in.Indicators)
	}
	return d
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= rawSnippetLen {
		return s
	}
	return string(r[:rawSnippetLen]) + "..."
}
