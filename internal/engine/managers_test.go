package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/tradelog"
	"llm-crypto-trader/internal/types"
)

func TestRoundTripAccounting(t *testing.T) {
	tests := []struct {
		name             string
		entry, exit, qty float64
		fee              float64
		wantPnL          float64
	}{
		{"profit", 100, 110, 2, 0.001, 2*110 - 2*100 - 0.001*2*(110+100)},
		{"loss", 100, 95, 0.5, 0.001, 0.5*95 - 0.5*100 - 0.001*0.5*(95+100)},
		{"flat pays fees", 100, 100, 1, 0.001, -0.2},
		{"no fees", 50, 60, 1, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pnl, pct := roundTrip(tt.entry, tt.exit, tt.qty, tt.fee)
			assert.InDelta(t, tt.wantPnL, pnl, 1e-9)
			assert.InDelta(t, tt.wantPnL/(tt.qty*tt.entry)*100, pct, 1e-9)
			assert.InDelta(t, tt.fee*tt.qty*(tt.entry+tt.exit), roundTripFee(tt.entry, tt.exit, tt.qty, tt.fee), 1e-12)
		})
	}
}

func TestPositionManager(t *testing.T) {
	pm := newPositionManager()
	assert.False(t, pm.open(0, 1, time.Now()))
	assert.False(t, pm.open(100, 0, time.Now()))
	assert.False(t, pm.inPosition())

	require.True(t, pm.open(100, 2, time.Now()))
	pnl, _ := pm.unrealized(110, 0)
	assert.InDelta(t, 20, pnl, 1e-9)

	prev := pm.close()
	assert.Equal(t, 100.0, prev.EntryPrice)
	assert.Equal(t, types.Position{}, pm.get())
	pnl, pct := pm.unrealized(110, 0.001)
	assert.Zero(t, pnl)
	assert.Zero(t, pct)
}

func TestStopManager(t *testing.T) {
	sm := newStopManager(0.001)
	ctx := context.Background()
	pos := types.Position{InPosition: true, EntryPrice: 100, Quantity: 1}

	tests := []struct {
		name   string
		pos    types.Position
		price  float64
		atr    float64
		hit    bool
		reason string
	}{
		{"flat never stops", types.Position{}, 50, 1, false, ""},
		{"above atr stop", pos, 99, 1, false, ""},
		{"at atr stop", pos, 98.5, 1, true, stopReasonATR},
		{"below atr stop", pos, 96.5, 2, true, stopReasonATR},
		{"fixed stop without atr", pos, 98, 0, true, stopReasonPct},
		{"above fixed stop", pos, 98.1, 0, false, ""},
		{"wide atr caught by safety net", pos, 97.9, 5, true, stopReasonNet},
		{"wide atr small dip", pos, 98.5, 5, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, reason := sm.check(ctx, "BTC", tt.pos, tt.price, tt.atr)
			assert.Equal(t, tt.hit, hit)
			assert.Equal(t, tt.reason, reason)
		})
	}

	assert.InDelta(t, 97, sm.stopPrice(100, 2), 1e-12)
	assert.InDelta(t, 98, sm.stopPrice(100, 0), 1e-12)
}

func TestRiskManagerCooldown(t *testing.T) {
	rm := newRiskManager(0.5)
	ctx := context.Background()
	buy := types.Decision{Action: types.ActionBuy, Confidence: 0.9}

	rm.tick()
	ok, _ := rm.gate(ctx, "BTC", buy)
	assert.True(t, ok, "a fresh engine is not cooling down")

	rm.tradeExecuted()
	rm.tick()
	ok, reason := rm.gate(ctx, "BTC", buy)
	assert.False(t, ok)
	assert.Equal(t, "cooldown", reason)

	rm.tick()
	ok, _ = rm.gate(ctx, "BTC", buy)
	assert.True(t, ok)
}

func TestRiskManagerConfidence(t *testing.T) {
	ctx := context.Background()

	rm := newRiskManager(0.5)
	ok, reason := rm.gate(ctx, "BTC", types.Decision{Action: types.ActionBuy, Confidence: 0.49})
	assert.False(t, ok)
	assert.Equal(t, "confidence below threshold", reason)

	ok, _ = rm.gate(ctx, "BTC", types.Decision{Action: types.ActionBuy, Confidence: 0.5})
	assert.True(t, ok)

	now := time.Now()
	rm.recordClose(-1, -0.5, now)
	rm.recordClose(-1, -0.5, now)
	assert.Equal(t, 0.5, rm.minConfidence())
	rm.recordClose(-1, -0.5, now)
	assert.InDelta(t, 0.65, rm.minConfidence(), 1e-12)

	rm.recordClose(2, 1, now)
	assert.Zero(t, rm.consecutiveLosses)
	assert.Equal(t, 0.5, rm.minConfidence())

	capped := newRiskManager(0.9)
	capped.consecutiveLosses = 5
	assert.Equal(t, maxMinConfidence, capped.minConfidence())

	llm := newRiskManager(0.7)
	llm.consecutiveLosses = 3
	assert.InDelta(t, 0.85, llm.minConfidence(), 1e-12)
}

func TestRiskManagerDailyLoss(t *testing.T) {
	rm := newRiskManager(0.5)
	day := time.Date(2024, 3, 10, 9, 0, 0, 0, time.Local)

	rm.recordClose(-1, -3, day)
	assert.False(t, rm.dailyLossHit(day))
	rm.recordClose(-1, -2, day.Add(time.Hour))
	assert.True(t, rm.dailyLossHit(day.Add(2*time.Hour)))
	assert.InDelta(t, -5, rm.dailyPnL(day), 1e-12)

	next := day.AddDate(0, 0, 1)
	assert.Zero(t, rm.dailyPnL(next))
	assert.False(t, rm.dailyLossHit(next))
	assert.InDelta(t, -5, rm.dailyPnLPct, 1e-12, "reading does not roll the day")

	rm.recordClose(1, 0.5, next)
	assert.InDelta(t, 0.5, rm.dailyPnL(next), 1e-12)
}

func TestRiskManagerDayMatchesTradeStore(t *testing.T) {
	rm := newRiskManager(0.5)
	late := time.Date(2024, 3, 10, 23, 59, 59, 0, time.Local)
	midnight := time.Date(2024, 3, 11, 0, 0, 0, 0, time.Local)

	rm.recordClose(-1, -6, late)
	assert.Equal(t, tradelog.StartOfDay(late), rm.day)
	assert.True(t, rm.dailyLossHit(late))
	assert.False(t, rm.dailyLossHit(midnight))
}

func TestSeedLosses(t *testing.T) {
	rm := newRiskManager(0.5)
	rm.seedLosses([]types.TradeRecord{{PnL: -1}, {PnL: -0.5}, {PnL: 0}, {PnL: -3}})
	assert.Equal(t, 2, rm.consecutiveLosses)

	rm.seedLosses(nil)
	assert.Zero(t, rm.consecutiveLosses)
}

func TestHigherTimeframe(t *testing.T) {
	assert.Equal(t, "1h", HigherTimeframe("5m"))
	assert.Equal(t, "4h", HigherTimeframe("15m"))
	assert.Equal(t, "1d", HigherTimeframe("1h"))
	assert.Equal(t, "1d", HigherTimeframe("1d"))
	assert.Equal(t, "1d", HigherTimeframe("weird"))
}

func TestParseInterval(t *testing.T) {
	tests := map[string]time.Duration{
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range tests {
		got, err := ParseInterval(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "m", "0m", "-1h", "5x", "five minutes"} {
		_, err := ParseInterval(bad)
		assert.Error(t, err, bad)
	}
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Hour))
	assert.False(t, sleepCtx(ctx, 0))
}

func TestBuyFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, types.StrategyRule, flatCandles(60, 100))
	ctx := context.Background()
	h.ex.buyErr = errors.New("rejected")
	h.eng.risk.ticksSinceTrade = 7

	err := h.eng.buy(ctx, "test")
	require.Error(t, err)
	assert.False(t, h.eng.pos.inPosition())
	assert.Equal(t, 7, h.eng.risk.ticksSinceTrade)
	assert.True(t, h.sink.hasMessage(types.EventError, "Buy failed"))
	assert.Empty(t, h.sink.ofType(types.EventTrade))
}

func TestBuySkippedOnInsufficientBalance(t *testing.T) {
	h := newHarness(t, types.StrategyRule, flatCandles(60, 100))
	h.ex.balance = types.Balance{"USDT": 99.99}

	err := h.eng.buy(context.Background(), "test")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Empty(t, h.ex.buys)
	assert.True(t, h.sink.hasMessage(types.EventWarning, "Buy skipped"))
	assert.False(t, h.eng.pos.inPosition())
}

func TestSellFailureKeepsPosition(t *testing.T) {
	h := newHarness(t, types.StrategyRule, flatCandles(60, 100))
	ctx := context.Background()
	h.eng.pos.open(100, 1, testNow)
	h.ex.sellErr = errors.New("rejected")

	require.Error(t, h.eng.sell(ctx, "test"))
	assert.True(t, h.eng.pos.inPosition())
	trades, err := h.store.GetTrades(ctx, 10, "")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSellWritesTradeRecord(t *testing.T) {
	h := newHarness(t, types.StrategyRule, flatCandles(60, 100))
	ctx := context.Background()
	entryAt := testNow.Add(-time.Hour)
	h.eng.pos.open(100, 2, entryAt)
	h.ex.price = 110

	require.NoError(t, h.eng.sell(ctx, "take profit"))

	trades, err := h.store.GetTrades(ctx, 10, "BTC")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	rec := trades[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "BTC", rec.Coin)
	assert.Equal(t, 100.0, rec.EntryPrice)
	assert.Equal(t, 110.0, rec.ExitPrice)
	assert.Equal(t, 2.0, rec.Quantity)
	assert.InDelta(t, 19.58, rec.PnL, 1e-9)
	assert.InDelta(t, 9.79, rec.PnLPct, 1e-9)
	assert.InDelta(t, 0.42, rec.Fee, 1e-9)
	assert.Equal(t, "take profit", rec.Reasoning)
	assert.Equal(t, entryAt, rec.EntryTime)
	assert.Equal(t, testNow, rec.ExitTime)

	assert.False(t, h.eng.pos.inPosition())
	assert.InDelta(t, 9.79, h.eng.risk.dailyPnL(testNow), 1e-9)

	// flat sell is a no-op
	require.NoError(t, h.eng.sell(ctx, "again"))
	assert.Len(t, h.ex.sells, 1)
}

func TestPartialSellKeepsRemainderOpen(t *testing.T) {
	h := newHarness(t, types.StrategyRule, flatCandles(60, 100))
	ctx := context.Background()
	entryAt := testNow.Add(-time.Hour)
	h.eng.pos.open(100, 2, entryAt)
	h.ex.price = 110
	h.ex.sellFill = 0.25

	require.NoError(t, h.eng.sell(ctx, "take profit"))

	trades, err := h.store.GetTrades(ctx, 10, "BTC")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 0.5, trades[0].Quantity)
	assert.InDelta(t, 4.895, trades[0].PnL, 1e-9)

	pos := h.eng.pos.get()
	assert.True(t, pos.InPosition)
	assert.Equal(t, 1.5, pos.Quantity)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, entryAt, pos.EntryTime)
	assert.True(t, h.sink.hasMessage(types.EventWarning, "Partial sell fill"))

	// the next sell offers only the remainder
	h.ex.sellFill = 0
	require.NoError(t, h.eng.sell(ctx, "exit rest"))
	assert.Equal(t, []float64{2, 1.5}, h.ex.sells)
	assert.False(t, h.eng.pos.inPosition())
}

func TestPositionReduce(t *testing.T) {
	pm := newPositionManager()
	pm.open(100, 1, testNow)

	assert.InDelta(t, 0.4, pm.reduce(0.6).Quantity, 1e-12)
	assert.True(t, pm.inPosition())
	assert.False(t, pm.reduce(0.4+1e-9).InPosition)
	assert.False(t, pm.reduce(1).InPosition, "reducing when flat is a no-op")
}

type failingStore struct {
	*tradelog.MemoryStore
}

func (failingStore) SaveTrade(context.Context, types.TradeRecord) error {
	return errors.New("disk full")
}

func TestSellClosesEvenWhenStoreFails(t *testing.T) {
	h := newHarness(t, types.StrategyRule, flatCandles(60, 100))
	h.eng.deps.Store = failingStore{tradelog.NewMemoryStore()}
	h.eng.pos.open(100, 1, testNow)

	require.NoError(t, h.eng.sell(context.Background(), "exit"))
	assert.False(t, h.eng.pos.inPosition())
	assert.True(t, h.sink.hasMessage(types.EventError, "not saved"))
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	var built int
	reg := NewRegistry(func(cfg types.EngineConfig) (interfaces.Engine, error) {
		built++
		h := newHarness(t, cfg.Strategy, flatCandles(60, 100))
		return h.eng, nil
	})

	assert.False(t, reg.IsRunning())
	assert.Equal(t, types.Status{}, reg.Status(ctx))
	assert.ErrorIs(t, reg.Stop(ctx), ErrNotRunning)

	cfg := types.EngineConfig{Strategy: types.StrategyRule}
	_, err := reg.Start(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, reg.IsRunning())

	_, err = reg.Start(ctx, cfg)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, 1, built)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, reg.Stop(stopCtx))
	assert.False(t, reg.IsRunning())
	assert.False(t, reg.Status(ctx).Running)
	assert.Equal(t, "BTC", reg.Status(ctx).Coin)

	_, err = reg.Start(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, built)
	require.NoError(t, reg.Stop(stopCtx))
}

func TestRegistryBuildError(t *testing.T) {
	reg := NewRegistry(func(types.EngineConfig) (interfaces.Engine, error) {
		return nil, errors.New("bad config")
	})
	_, err := reg.Start(context.Background(), types.EngineConfig{})
	assert.EqualError(t, err, "bad config")
	assert.Nil(t, reg.Current())
}
