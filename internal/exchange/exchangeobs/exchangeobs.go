package exchangeobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/trace"
	"llm-crypto-trader/internal/types"
)

// observableExchange wraps an Exchange with observability (logging & tracing)
type observableExchange struct {
	exchange interfaces.Exchange
	name     string
}

var _ interfaces.Exchange = (*observableExchange)(nil)

func Wrap(exchange interfaces.Exchange, name string) interfaces.Exchange {
	return &observableExchange{
		exchange: exchange,
		name:     name,
	}
}

func (oe *observableExchange) FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.FetchOHLCV")
	defer span.End()
	span.SetAttributes(
		attribute.String("exchange", oe.name),
		attribute.String("symbol", symbol),
		attribute.String("interval", interval),
	)

	logger.DebugSkip(ctx, 1, "Fetching candles", "exchange", oe.name, "symbol", symbol, "interval", interval, "limit", limit)

	candles, err := oe.exchange.FetchOHLCV(ctx, symbol, interval, limit)
	if err != nil {
		span.RecordError(err)
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch candles", err, "exchange", oe.name, "symbol", symbol, "interval", interval)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Candles fetched successfully", "symbol", symbol, "interval", interval, "count", len(candles))
	return candles, nil
}

func (oe *observableExchange) FetchTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.FetchTicker")
	defer span.End()

	t, err := oe.exchange.FetchTicker(ctx, symbol)
	if err != nil {
		span.RecordError(err)
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch ticker", err, "exchange", oe.name, "symbol", symbol)
		return types.Ticker{}, err
	}

	logger.DebugSkip(ctx, 1, "Ticker fetched", "symbol", symbol, "last", t.Last)
	return t, nil
}

func (oe *observableExchange) FetchBalance(ctx context.Context) (types.Balance, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.FetchBalance")
	defer span.End()

	b, err := oe.exchange.FetchBalance(ctx)
	if err != nil {
		span.RecordError(err)
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch balance", err, "exchange", oe.name)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Balance fetched", "exchange", oe.name, "assets", len(b))
	return b, nil
}

func (oe *observableExchange) CreateMarketBuyOrder(ctx context.Context, symbol string, cost float64) (types.Order, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.CreateMarketBuyOrder")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Float64("cost", cost))

	logger.InfoSkip(ctx, 1, "Placing market buy", "exchange", oe.name, "symbol", symbol, "cost", cost)

	order, err := oe.exchange.CreateMarketBuyOrder(ctx, symbol, cost)
	if err != nil {
		span.RecordError(err)
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place buy order", err, "exchange", oe.name, "symbol", symbol, "cost", cost)
		return types.Order{}, err
	}

	logger.InfoSkip(ctx, 1, "Buy order placed successfully",
		"symbol", symbol,
		"order_id", order.ID,
		"status", order.Status,
		"filled", order.Filled,
		"average", order.Average,
	)
	return order, nil
}

func (oe *observableExchange) CreateMarketSellOrder(ctx context.Context, symbol string, qty float64) (types.Order, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.CreateMarketSellOrder")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Float64("qty", qty))

	logger.InfoSkip(ctx, 1, "Placing market sell", "exchange", oe.name, "symbol", symbol, "qty", qty)

	order, err := oe.exchange.CreateMarketSellOrder(ctx, symbol, qty)
	if err != nil {
		span.RecordError(err)
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place sell order", err, "exchange", oe.name, "symbol", symbol, "qty", qty)
		return types.Order{}, err
	}

	logger.InfoSkip(ctx, 1, "Sell order placed successfully",
		"symbol", symbol,
		"order_id", order.ID,
		"status", order.Status,
		"filled", order.Filled,
		"average", order.Average,
	)
	return order, nil
}
