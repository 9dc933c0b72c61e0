package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

// MarketData is the read-only half of an exchange.
type MarketData interface {
	FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
	FetchTicker(ctx context.Context, symbol string) (types.Ticker, error)
}

// Exchange fills market orders at the live ticker price against a virtual
// balance. Fees are charged in the quote asset on both sides.
type Exchange struct {
	market  MarketData
	feeRate float64

	mu       sync.Mutex
	balances types.Balance
	seq      int
}

var _ interfaces.Exchange = (*Exchange)(nil)

func New(market MarketData, quote string, startingBalance, feeRate float64) *Exchange {
	return &Exchange{
		market:   market,
		feeRate:  feeRate,
		balances: types.Balance{strings.ToUpper(quote): startingBalance},
	}
}

func (e *Exchange) FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	return e.market.FetchOHLCV(ctx, symbol, interval, limit)
}

func (e *Exchange) FetchTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	return e.market.FetchTicker(ctx, symbol)
}

func (e *Exchange) FetchBalance(ctx context.Context) (types.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(types.Balance, len(e.balances))
	for k, v := range e.balances {
		out[k] = v
	}
	return out, nil
}

func (e *Exchange) CreateMarketBuyOrder(ctx context.Context, symbol string, cost float64) (types.Order, error) {
	base, quote, err := splitSymbol(symbol)
	if err != nil {
		return types.Order{}, err
	}
	if cost <= 0 {
		return types.Order{}, fmt.Errorf("buy cost must be positive")
	}
	price, err := e.price(ctx, symbol)
	if err != nil {
		return types.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fee := cost * e.feeRate
	if e.balances[quote] < cost+fee {
		return types.Order{}, fmt.Errorf("insufficient %s balance: have %.8f, need %.8f", quote, e.balances[quote], cost+fee)
	}
	qty := cost / price
	e.balances[quote] -= cost + fee
	e.balances[base] += qty

	order := e.fill(symbol, "buy", price, qty)
	logger.Trade(ctx, symbol, "BUY", qty, price, order.ID, "paper", true, "fee", fee)
	return order, nil
}

func (e *Exchange) CreateMarketSellOrder(ctx context.Context, symbol string, qty float64) (types.Order, error) {
	base, quote, err := splitSymbol(symbol)
	if err != nil {
		return types.Order{}, err
	}
	if qty <= 0 {
		return types.Order{}, fmt.Errorf("sell quantity must be positive")
	}
	price, err := e.price(ctx, symbol)
	if err != nil {
		return types.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// float dust from the buy side is tolerated
	if e.balances[base] < qty*(1-1e-9) {
		return types.Order{}, fmt.Errorf("insufficient %s balance: have %.8f, need %.8f", base, e.balances[base], qty)
	}
	proceeds := qty * price
	fee := proceeds * e.feeRate
	e.balances[base] -= qty
	if e.balances[base] < 0 {
		e.balances[base] = 0
	}
	e.balances[quote] += proceeds - fee

	order := e.fill(symbol, "sell", price, qty)
	logger.Trade(ctx, symbol, "SELL", qty, price, order.ID, "paper", true, "fee", fee)
	return order, nil
}

func (e *Exchange) price(ctx context.Context, symbol string) (float64, error) {
	t, err := e.market.FetchTicker(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("paper fill price: %w", err)
	}
	if t.Last <= 0 {
		return 0, fmt.Errorf("paper fill price: no price for %s", symbol)
	}
	return t.Last, nil
}

// fill must be called with mu held.
func (e *Exchange) fill(symbol, side string, price, qty float64) types.Order {
	e.seq++
	return types.Order{
		ID:      fmt.Sprintf("paper-%d", e.seq),
		Symbol:  symbol,
		Side:    side,
		Status:  "closed",
		Average: price,
		Filled:  qty,
		Cost:    price * qty,
	}
}

func splitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(strings.ToUpper(symbol), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("symbol %q is not in BASE/QUOTE form", symbol)
	}
	return parts[0], parts[1], nil
}
