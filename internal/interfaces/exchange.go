package interfaces

import (
	"context"

	"llm-crypto-trader/internal/types"
)

// Exchange is the spot market the engine trades on. Symbols use the BASE/QUOTE form.
type Exchange interface {
	FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
	FetchTicker(ctx context.Context, symbol string) (types.Ticker, error)
	FetchBalance(ctx context.Context) (types.Balance, error)
	// CreateMarketBuyOrder spends cost units of the quote asset.
	CreateMarketBuyOrder(ctx context.Context, symbol string, cost float64) (types.Order, error)
	CreateMarketSellOrder(ctx context.Context, symbol string, qty float64) (types.Order, error)
}
