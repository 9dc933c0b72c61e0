package strategyobs

import (
	"context"
	"time"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/trace"
	"llm-crypto-trader/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

// observableStrategy wraps a Strategy with logging & tracing
type observableStrategy struct {
	strategy interfaces.Strategy
}

var _ interfaces.Strategy = (*observableStrategy)(nil)

func Wrap(strategy interfaces.Strategy) interfaces.Strategy {
	return &observableStrategy{strategy: strategy}
}

func (so *observableStrategy) Name() types.StrategyKind {
	return so.strategy.Name()
}

func (so *observableStrategy) Decide(ctx context.Context, in types.StrategyInput) types.Decision {
	ctx, span := trace.StartSpan(ctx, "strategy.Decide")
	defer span.End()

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Requesting trading decision",
		"strategy", so.strategy.Name(),
		"coin", in.Config.Coin,
		"price", in.Indicators.CurrentPrice,
		"rsi", in.Indicators.RSI,
		"htf_trend", in.HTFTrend,
		"in_position", in.Position.InPosition,
	)

	d := so.strategy.Decide(ctx, in)

	span.SetAttributes(
		attribute.String("strategy", string(so.strategy.Name())),
		attribute.String("action", string(d.Action)),
		attribute.Float64("confidence", d.Confidence),
	)
	logger.InfoSkip(ctx, 1, "Trading decision received",
		"strategy", so.strategy.Name(),
		"coin", in.Config.Coin,
		"action", d.Action,
		"confidence", d.Confidence,
		"reasoning", d.Reasoning,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return d
}
