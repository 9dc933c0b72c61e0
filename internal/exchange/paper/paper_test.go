package paper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-crypto-trader/internal/types"
)

type stubMarket struct {
	price float64
	err   error
}

func (s *stubMarket) FetchOHLCV(context.Context, string, string, int) ([]types.Candle, error) {
	return []types.Candle{{Close: s.price}}, nil
}

func (s *stubMarket) FetchTicker(_ context.Context, symbol string) (types.Ticker, error) {
	return types.Ticker{Symbol: symbol, Last: s.price}, s.err
}

func TestPaperRoundTrip(t *testing.T) {
	m := &stubMarket{price: 100}
	ex := New(m, "usdt", 1000, 0.001)
	ctx := context.Background()

	buy, err := ex.CreateMarketBuyOrder(ctx, "BTC/USDT", 200)
	require.NoError(t, err)
	assert.Equal(t, 100.0, buy.Average)
	assert.InDelta(t, 2.0, buy.Filled, 1e-12)

	bal, _ := ex.FetchBalance(ctx)
	assert.InDelta(t, 1000-200-0.2, bal["USDT"], 1e-9)
	assert.InDelta(t, 2.0, bal["BTC"], 1e-12)

	m.price = 110
	sell, err := ex.CreateMarketSellOrder(ctx, "BTC/USDT", buy.Filled)
	require.NoError(t, err)
	assert.Equal(t, 110.0, sell.Average)
	assert.NotEqual(t, buy.ID, sell.ID)

	bal, _ = ex.FetchBalance(ctx)
	assert.InDelta(t, 799.8+220-0.22, bal["USDT"], 1e-9)
	assert.Zero(t, bal["BTC"])
}

func TestPaperRejects(t *testing.T) {
	ctx := context.Background()
	ex := New(&stubMarket{price: 100}, "USDT", 50, 0)

	_, err := ex.CreateMarketBuyOrder(ctx, "BTC/USDT", 100)
	assert.ErrorContains(t, err, "insufficient USDT")

	_, err = ex.CreateMarketSellOrder(ctx, "BTC/USDT", 1)
	assert.ErrorContains(t, err, "insufficient BTC")

	_, err = ex.CreateMarketBuyOrder(ctx, "BTCUSDT", 10)
	assert.Error(t, err)

	bad := New(&stubMarket{err: errors.New("down")}, "USDT", 50, 0)
	_, err = bad.CreateMarketBuyOrder(ctx, "BTC/USDT", 10)
	assert.ErrorContains(t, err, "down")

	bal, _ := ex.FetchBalance(ctx)
	assert.Equal(t, types.Balance{"USDT": 50}, bal)
}
