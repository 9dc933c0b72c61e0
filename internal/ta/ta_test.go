package ta

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-crypto-trader/internal/types"
)

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestSMASeriesMatchesWindowMean(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3}
	got := SMASeries(values, 3)
	require.Len(t, got, len(values))

	for i := range values {
		if i < 2 {
			assert.True(t, math.IsNaN(got[i]), "index %d should be undefined", i)
			continue
		}
		want := (values[i] + values[i-1] + values[i-2]) / 3
		assert.InDelta(t, want, got[i], 1e-12)
	}
	assert.InDelta(t, SMA(values, 3), got[len(got)-1], 1e-12)
}

func TestSMAShortInputIsUndefined(t *testing.T) {
	assert.True(t, math.IsNaN(SMA([]float64{1, 2}, 3)))
	for _, v := range SMASeries([]float64{1, 2}, 3) {
		assert.True(t, math.IsNaN(v))
	}
}

func TestEMASeriesRecurrence(t *testing.T) {
	values := []float64{10, 11, 12, 11, 13, 14, 13, 15, 16, 15, 17}
	n := 4
	got := EMASeries(values, n)
	k := 2.0 / float64(n+1)

	for i := 0; i < n-1; i++ {
		assert.True(t, math.IsNaN(got[i]))
	}
	want := (values[0] + values[1] + values[2] + values[3]) / 4
	assert.InDelta(t, want, got[n-1], 1e-12)
	for i := n; i < len(values); i++ {
		want = values[i]*k + want*(1-k)
		assert.InDelta(t, want, got[i], 1e-9)
	}
}

func TestRSIBounds(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	closes := make([]float64, 200)
	price := 100.0
	for i := range closes {
		price += r.NormFloat64()
		closes[i] = price
	}
	for end := 15; end <= len(closes); end++ {
		v := RSI(closes[:end], 14)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestRSIMonotonicSeries(t *testing.T) {
	assert.InDelta(t, 100.0, RSI(linear(60, 100, 1), 14), 1e-9)
	assert.InDelta(t, 0.0, RSI(linear(60, 200, -1), 14), 1e-9)
	assert.True(t, math.IsNaN(RSI(linear(14, 1, 1), 14)))
}

func TestMACDDegenerateIsZero(t *testing.T) {
	m, s, h := MACD(linear(33, 1, 1), 12, 26, 9)
	assert.Zero(t, m)
	assert.Zero(t, s)
	assert.Zero(t, h)

	m, s, h = MACD(linear(80, 1, 1), 12, 26, 9)
	assert.Greater(t, m, 0.0)
	assert.InDelta(t, m-s, h, 1e-12)
}

func TestBollingerPosition(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}
	_, mid, _, pos := Bollinger(flat, 20, 2)
	assert.Equal(t, 50.0, mid)
	assert.Equal(t, 0.5, pos)

	breakout := append(linear(19, 100, 0.1), 130)
	_, _, _, pos = Bollinger(breakout, 20, 2)
	assert.Greater(t, pos, 1.0, "breakout bars keep their unclamped position")
}

func TestATRSimpleAverage(t *testing.T) {
	highs := []float64{11, 12, 13, 14}
	lows := []float64{9, 10, 11, 12}
	closes := []float64{10, 11, 12, 13}
	// true ranges from index 1: 2, 2, 2
	assert.InDelta(t, 2.0, ATR(highs, lows, closes, 3), 1e-12)
	assert.True(t, math.IsNaN(ATR(highs, lows, closes, 4)))
	assert.True(t, math.IsNaN(ATR(highs, lows[:3], closes, 2)))
}

func assertAllFinite(t *testing.T, in types.Indicators) {
	t.Helper()
	v := reflect.ValueOf(in)
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i).Float()
		assert.False(t, math.IsNaN(f) || math.IsInf(f, 0), "%s is not finite", v.Type().Field(i).Name)
	}
}

func TestCalculateAllMinimalInput(t *testing.T) {
	for _, n := range []int{0, 1, 2} {
		candles := make([]types.Candle, n)
		for i := range candles {
			candles[i] = types.Candle{Ts: int64(i), Open: 10, High: 11, Low: 9, Close: 10 + float64(i), Vol: 5}
		}
		inds := CalculateAll(candles)
		assertAllFinite(t, inds)
		assert.Zero(t, inds.MACD)
		assert.Zero(t, inds.MACDSignal)
	}

	inds := CalculateAll([]types.Candle{{Close: 10}, {Close: 11}})
	assert.Equal(t, 11.0, inds.CurrentPrice)
	assert.InDelta(t, 10.0, inds.PriceChangePct, 1e-9)
}

func TestCalculateAllFullWindow(t *testing.T) {
	candles := make([]types.Candle, 150)
	for i := range candles {
		c := 100 + float64(i)*0.5
		candles[i] = types.Candle{Ts: int64(i) * 60000, Open: c - 0.2, High: c + 1, Low: c - 1, Close: c, Vol: 10}
	}
	inds := CalculateAll(candles)
	assertAllFinite(t, inds)
	assert.Greater(t, inds.EMA12, inds.EMA26)
	assert.Greater(t, inds.CurrentPrice, inds.SMA50)
	assert.Equal(t, types.TrendBullish, ClassifyTrend(inds))
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name string
		in   types.Indicators
		want types.Trend
	}{
		{"all bullish", types.Indicators{EMA12: 2, EMA26: 1, CurrentPrice: 10, SMA50: 9, MACDHistogram: 0.1}, types.TrendBullish},
		{"all bearish", types.Indicators{EMA12: 1, EMA26: 2, CurrentPrice: 8, SMA50: 9, MACDHistogram: -0.1}, types.TrendBearish},
		{"two of three bearish", types.Indicators{EMA12: 1, EMA26: 2, CurrentPrice: 10, SMA50: 9, MACDHistogram: -0.1}, types.TrendBearish},
		{"split with abstain", types.Indicators{EMA12: 2, EMA26: 1, CurrentPrice: 8, SMA50: 9}, types.TrendNeutral},
		{"no data", types.Indicators{}, types.TrendNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTrend(tt.in))
		})
	}
}
