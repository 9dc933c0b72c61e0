package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

// ErrInsufficientBalance is returned by buy when the free quote balance is below the trade amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// fill is what an executed market order is accounted at.
type fill struct {
	orderID string
	price   float64
	qty     float64
}

// orderExecutor handles the exchange side of buys and sells.
type orderExecutor struct {
	exchange interfaces.Exchange
	cfg      types.EngineConfig
}

func newOrderExecutor(exchange interfaces.Exchange, cfg types.EngineConfig) *orderExecutor {
	return &orderExecutor{exchange: exchange, cfg: cfg}
}

// checkBalance fails with ErrInsufficientBalance when the free quote balance
// cannot cover the configured amount.
func (oe *orderExecutor) checkBalance(ctx context.Context) error {
	bal, err := oe.exchange.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	quote := strings.ToUpper(oe.cfg.Quote)
	if free := bal[quote]; free < oe.cfg.Amount {
		return fmt.Errorf("%w: %.2f %s free, %.2f needed", ErrInsufficientBalance, free, quote, oe.cfg.Amount)
	}
	return nil
}

// placeBuy spends the configured amount of quote currency.
//
// Fill price falls back from the order average to cost/filled to the ticker.
// Quantity falls back from the filled amount to amount/price.
func (oe *orderExecutor) placeBuy(ctx context.Context) (fill, error) {
	symbol := oe.cfg.Symbol()
	ticker, err := oe.exchange.FetchTicker(ctx, symbol)
	if err != nil {
		return fill{}, fmt.Errorf("fetch ticker: %w", err)
	}

	order, err := oe.exchange.CreateMarketBuyOrder(ctx, symbol, oe.cfg.Amount)
	if err != nil {
		return fill{}, fmt.Errorf("market buy: %w", err)
	}

	price := fillPrice(order, ticker.Last)
	if price <= 0 {
		return fill{}, fmt.Errorf("market buy %s: no fill price", order.ID)
	}
	qty := order.Filled
	if qty <= 0 {
		qty = oe.cfg.Amount / price
	}
	return fill{orderID: order.ID, price: price, qty: qty}, nil
}

// placeSell sells qty. lastPrice is used when neither the order nor the
// ticker yields a price.
func (oe *orderExecutor) placeSell(ctx context.Context, qty, lastPrice float64) (fill, error) {
	symbol := oe.cfg.Symbol()
	fallback := lastPrice
	if ticker, err := oe.exchange.FetchTicker(ctx, symbol); err == nil && ticker.Last > 0 {
		fallback = ticker.Last
	} else if err != nil {
		logger.Warn(ctx, "Ticker unavailable before sell, using last candle price", "symbol", symbol, "error", err)
	}

	order, err := oe.exchange.CreateMarketSellOrder(ctx, symbol, qty)
	if err != nil {
		return fill{}, fmt.Errorf("market sell: %w", err)
	}

	price := fillPrice(order, fallback)
	if price <= 0 {
		return fill{}, fmt.Errorf("market sell %s: no fill price", order.ID)
	}
	sold := qty
	if order.Filled > 0 {
		sold = order.Filled
	}
	return fill{orderID: order.ID, price: price, qty: sold}, nil
}

func fillPrice(order types.Order, fallback float64) float64 {
	switch {
	case order.Average > 0:
		return order.Average
	case order.Cost > 0 && order.Filled > 0:
		return order.Cost / order.Filled
	default:
		return fallback
	}
}

// tradeRecord builds the closed round trip for a sell fill.
func (oe *orderExecutor) tradeRecord(pos types.Position, f fill, reason string, exitTime time.Time) types.TradeRecord {
	pnl, pnlPct := roundTrip(pos.EntryPrice, f.price, f.qty, oe.cfg.FeeRate)
	return types.TradeRecord{
		ID:             uuid.New().String(),
		Coin:           oe.cfg.Coin,
		Timeframe:      oe.cfg.Timeframe,
		CandleInterval: oe.cfg.CandleInterval,
		EntryPrice:     pos.EntryPrice,
		ExitPrice:      f.price,
		Amount:         oe.cfg.Amount,
		Quantity:       f.qty,
		PnL:            pnl,
		PnLPct:         pnlPct,
		Fee:            roundTripFee(pos.EntryPrice, f.price, f.qty, oe.cfg.FeeRate),
		Reasoning:      reason,
		EntryTime:      pos.EntryTime,
		ExitTime:       exitTime,
	}
}

// buy opens a position. Any failure leaves engine state untouched.
func (e *Engine) buy(ctx context.Context, reason string) error {
	symbol := e.cfg.Symbol()

	if err := e.exec.checkBalance(ctx); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			e.emit(types.EventWarning, fmt.Sprintf("Buy skipped: %v", err))
		} else {
			e.emit(types.EventError, fmt.Sprintf("Buy failed: %v", err))
		}
		return err
	}

	f, err := e.exec.placeBuy(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Buy failed", err, "symbol", symbol, "amount", e.cfg.Amount)
		e.emit(types.EventError, fmt.Sprintf("Buy failed: %v", err))
		return err
	}

	e.mu.Lock()
	e.pos.open(f.price, f.qty, e.now())
	e.risk.tradeExecuted()
	e.mu.Unlock()

	logger.Trade(ctx, symbol, string(types.ActionBuy), f.qty, f.price, f.orderID, "reason", reason, "amount", e.cfg.Amount)
	e.emit(types.EventTrade, types.TradeEvent{
		Side:     types.ActionBuy,
		Coin:     e.cfg.Coin,
		Price:    f.price,
		Quantity: f.qty,
		Amount:   e.cfg.Amount,
		OrderID:  f.orderID,
		Reason:   reason,
	})
	return nil
}

// sell closes the position and records the trade for the filled quantity.
// A partial fill leaves the unsold remainder open. It is a no-op when flat.
// A failed order leaves engine state untouched.
func (e *Engine) sell(ctx context.Context, reason string) error {
	e.mu.RLock()
	pos := e.pos.get()
	lastPrice := e.currentPrice
	e.mu.RUnlock()
	if !pos.InPosition {
		return nil
	}
	symbol := e.cfg.Symbol()

	f, err := e.exec.placeSell(ctx, pos.Quantity, lastPrice)
	if err != nil {
		logger.ErrorWithErr(ctx, "Sell failed", err, "symbol", symbol, "qty", pos.Quantity)
		e.emit(types.EventError, fmt.Sprintf("Sell failed: %v", err))
		return err
	}

	exitTime := e.now()
	rec := e.exec.tradeRecord(pos, f, reason, exitTime)

	// the exchange already filled, so the position closes even if the store fails
	if err := e.deps.Store.SaveTrade(ctx, rec); err != nil {
		logger.ErrorWithErr(ctx, "Failed to save trade record", err, "id", rec.ID, "coin", rec.Coin)
		e.emit(types.EventError, fmt.Sprintf("Trade filled but not saved: %v", err))
	}

	e.mu.Lock()
	left := e.pos.reduce(f.qty)
	e.risk.recordClose(rec.PnL, rec.PnLPct, exitTime)
	e.risk.tradeExecuted()
	e.mu.Unlock()

	if left.InPosition {
		logger.Warn(ctx, "Partial sell fill, remainder stays open",
			"symbol", symbol, "sold", f.qty, "requested", pos.Quantity, "remaining", left.Quantity)
		e.emit(types.EventWarning, fmt.Sprintf("Partial sell fill: %g of %g %s sold, %g still open",
			f.qty, pos.Quantity, e.cfg.Coin, left.Quantity))
	}

	logger.Trade(ctx, symbol, string(types.ActionSell), f.qty, f.price, f.orderID,
		"reason", reason,
		"pnl", rec.PnL,
		"pnl_pct", rec.PnLPct,
		"fee", rec.Fee,
	)
	e.emit(types.EventTrade, types.TradeEvent{
		Side:     types.ActionSell,
		Coin:     e.cfg.Coin,
		Price:    f.price,
		Quantity: f.qty,
		Amount:   e.cfg.Amount,
		OrderID:  f.orderID,
		Reason:   reason,
		Record:   &rec,
	})
	return nil
}
