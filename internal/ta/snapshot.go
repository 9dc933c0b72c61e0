package ta

import (
	"llm-crypto-trader/internal/types"
)

const (
	RSIPeriod    = 14
	MACDFast     = 12
	MACDSlow     = 26
	MACDSignal   = 9
	BBWindow     = 20
	BBStdDev     = 2.0
	ATRPeriod    = 14
	VolumeWindow = 20
)

// CalculateAll builds the indicator snapshot for the last candle. It accepts
// any number of candles and never returns NaN fields.
func CalculateAll(candles []types.Candle) types.Indicators {
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	vols := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		vols[i] = c.Vol
	}

	var inds types.Indicators
	if n == 0 {
		return inds
	}

	inds.CurrentPrice = closes[n-1]
	inds.Volume = vols[n-1]
	if n >= 2 && closes[n-2] != 0 {
		inds.PriceChangePct = (closes[n-1] - closes[n-2]) / closes[n-2] * 100
	}

	inds.RSI = RSI(closes, RSIPeriod)
	inds.MACD, inds.MACDSignal, inds.MACDHistogram = MACD(closes, MACDFast, MACDSlow, MACDSignal)
	inds.BBUpper, inds.BBMiddle, inds.BBLower, inds.BBPosition = Bollinger(closes, BBWindow, BBStdDev)
	inds.SMA20 = SMA(closes, 20)
	inds.SMA50 = SMA(closes, 50)
	inds.EMA12 = EMA(closes, 12)
	inds.EMA26 = EMA(closes, 26)
	inds.VolumeAvg20 = SMA(vols, VolumeWindow)
	inds.ATR = ATR(highs, lows, closes, ATRPeriod)

	inds.Normalize()
	return inds
}

// ClassifyTrend takes a majority vote of EMA12 vs EMA26, price vs SMA50 and
// the MACD histogram sign. Equal or missing values abstain.
func ClassifyTrend(in types.Indicators) types.Trend {
	bull, bear := 0, 0
	vote := func(a, b float64) {
		switch {
		case a > b:
			bull++
		case a < b:
			bear++
		}
	}

	if in.EMA12 != 0 && in.EMA26 != 0 {
		vote(in.EMA12, in.EMA26)
	}
	if in.SMA50 != 0 {
		vote(in.CurrentPrice, in.SMA50)
	}
	vote(in.MACDHistogram, 0)

	switch {
	case bull >= 2:
		return types.TrendBullish
	case bear >= 2:
		return types.TrendBearish
	default:
		return types.TrendNeutral
	}
}

// TrendFromCandles is CalculateAll followed by ClassifyTrend.
func TrendFromCandles(candles []types.Candle) (types.Trend, types.Indicators) {
	inds := CalculateAll(candles)
	return ClassifyTrend(inds), inds
}
