package engine

import (
	"time"

	"llm-crypto-trader/internal/types"
)

// dustFraction is the share of a position below which a sell counts as full.
const dustFraction = 1e-6

// positionManager tracks the engine's single spot position.
// Callers hold the engine lock.
type positionManager struct {
	pos types.Position
}

func newPositionManager() *positionManager {
	return &positionManager{}
}

func (pm *positionManager) get() types.Position {
	return pm.pos
}

func (pm *positionManager) inPosition() bool {
	return pm.pos.InPosition
}

// open records a filled buy. Non-positive price or quantity is ignored so the
// InPosition invariant holds.
func (pm *positionManager) open(price, qty float64, at time.Time) bool {
	if price <= 0 || qty <= 0 {
		return false
	}
	pm.pos = types.Position{
		InPosition: true,
		EntryPrice: price,
		Quantity:   qty,
		EntryTime:  at,
	}
	return true
}

// close resets to flat and returns the position that was held.
func (pm *positionManager) close() types.Position {
	prev := pm.pos
	pm.pos = types.Position{}
	return prev
}

// reduce removes a partially sold qty and returns what remains open. Selling
// the whole quantity, or more, closes the position.
func (pm *positionManager) reduce(qty float64) types.Position {
	if !pm.pos.InPosition || qty <= 0 {
		return pm.pos
	}
	remaining := pm.pos.Quantity - qty
	if remaining <= pm.pos.Quantity*dustFraction {
		pm.pos = types.Position{}
		return pm.pos
	}
	pm.pos.Quantity = remaining
	return pm.pos
}

// unrealized values the open position at price with fees on both legs.
//
// Returns:
//   - pnl: exit notional - entry notional - round trip fee
//   - pnlPct: pnl as a percentage of entry notional
func (pm *positionManager) unrealized(price, feeRate float64) (pnl, pnlPct float64) {
	if !pm.pos.InPosition || price <= 0 {
		return 0, 0
	}
	return roundTrip(pm.pos.EntryPrice, price, pm.pos.Quantity, feeRate)
}

// roundTrip is the closed-trade accounting shared by sells and status.
func roundTrip(entry, exit, qty, feeRate float64) (pnl, pnlPct float64) {
	entryNotional := qty * entry
	exitNotional := qty * exit
	fee := entryNotional*feeRate + exitNotional*feeRate
	pnl = exitNotional - entryNotional - fee
	if entryNotional > 0 {
		pnlPct = pnl / entryNotional * 100
	}
	return pnl, pnlPct
}

// roundTripFee is entry notional·F + exit notional·F.
func roundTripFee(entry, exit, qty, feeRate float64) float64 {
	return qty*entry*feeRate + qty*exit*feeRate
}
