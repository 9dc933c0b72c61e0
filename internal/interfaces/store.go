package interfaces

import (
	"context"

	"llm-crypto-trader/internal/types"
)

type TradeStore interface {
	SaveTrade(ctx context.Context, rec types.TradeRecord) error
	// GetTrades returns up to limit records, newest first. An empty coin matches all coins.
	GetTrades(ctx context.Context, limit int, coin string) ([]types.TradeRecord, error)
	GetTodayTrades(ctx context.Context) ([]types.TradeRecord, error)
}
