package engine

import (
	"context"

	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

// Status is a read-only projection of the engine and today's stored trades.
// Before the first tick every numeric field is zero.
func (e *Engine) Status(ctx context.Context) types.Status {
	e.mu.RLock()
	pos := e.pos.get()
	s := types.Status{
		Running:           e.running,
		Coin:              e.cfg.Coin,
		Timeframe:         e.cfg.Timeframe,
		CandleInterval:    e.cfg.CandleInterval,
		Strategy:          string(e.deps.Strategy.Name()),
		Model:             e.cfg.Model,
		Exchange:          e.cfg.Exchange,
		Ticks:             e.ticks,
		CurrentPrice:      e.currentPrice,
		InPosition:        pos.InPosition,
		EntryPrice:        pos.EntryPrice,
		Quantity:          pos.Quantity,
		EntryTime:         pos.EntryTime,
		HTFTrend:          e.htfTrend,
		ConsecutiveLosses: e.risk.consecutiveLosses,
		DailyPnLPct:       e.risk.dailyPnL(e.now()),
		LastUpdate:        e.lastUpdate,
	}
	s.UnrealizedPnL, s.UnrealizedPnLPct = e.pos.unrealized(e.currentPrice, e.cfg.FeeRate)
	if e.lastDecision != nil {
		d := *e.lastDecision
		s.LastDecision = &d
	}
	e.mu.RUnlock()

	today, err := e.deps.Store.GetTodayTrades(ctx)
	if err != nil {
		logger.Warn(ctx, "Could not load today's trades for status", "error", err)
		return s
	}
	for _, t := range today {
		if t.Coin != e.cfg.Coin {
			continue
		}
		s.TodayTrades++
		s.TodayPnL += t.PnL
		s.TodayFees += t.Fee
	}
	return s
}
