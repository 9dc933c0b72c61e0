package engine

import (
	"context"

	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

const (
	stopATRMult   = 1.5
	stopFixedPct  = 2.0
	safetyNetPct  = -2.0
	stopReasonATR = "Stop-loss (ATR)"
	stopReasonPct = "Stop-loss (2%)"
	stopReasonNet = "Safety net (-2%)"
)

// stopManager decides whether an open position must be closed before any
// strategy input is considered.
type stopManager struct {
	feeRate float64
}

func newStopManager(feeRate float64) *stopManager {
	return &stopManager{feeRate: feeRate}
}

// stopPrice is entry - 1.5·ATR when ATR is known, else entry - 2%.
func (sm *stopManager) stopPrice(entry, atr float64) float64 {
	if atr > 0 {
		return entry - stopATRMult*atr
	}
	return entry * (1 - stopFixedPct/100)
}

// check evaluates the ATR or fixed stop, then the unconditional safety net.
//
// Returns:
//   - triggered: true if the position must be sold now
//   - reason: which gate fired
func (sm *stopManager) check(ctx context.Context, coin string, pos types.Position, price, atr float64) (triggered bool, reason string) {
	if !pos.InPosition || price <= 0 {
		return false, ""
	}

	stop := sm.stopPrice(pos.EntryPrice, atr)
	switch {
	case price <= stop && atr > 0:
		reason = stopReasonATR
	case price <= stop:
		reason = stopReasonPct
	default:
		if priceChangePct(pos.EntryPrice, price) <= safetyNetPct {
			reason = stopReasonNet
		}
	}
	if reason == "" {
		return false, ""
	}

	_, pnlPct := roundTrip(pos.EntryPrice, price, pos.Quantity, sm.feeRate)
	logger.Warn(ctx, "Stop loss triggered",
		"coin", coin,
		"event", "STOP_LOSS_TRIGGERED",
		"reason", reason,
		"current_price", price,
		"stop_price", stop,
		"entry_price", pos.EntryPrice,
		"quantity", pos.Quantity,
		"atr", atr,
		"unrealized_pct", pnlPct,
	)
	return true, reason
}

// priceChangePct is the move from entry to price, ignoring fees.
func priceChangePct(entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (price - entry) / entry * 100
}
