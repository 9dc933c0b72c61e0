package ta

import "math"

// Series functions return a slice the length of their input with NaN in
// the leading positions that lack enough history.

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMASeries is the simple moving average of the trailing n values at each index.
func SMASeries(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) < n {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// SMA returns the latest simple moving average, NaN with fewer than n values.
func SMA(values []float64, n int) float64 {
	if len(values) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(values) - n; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(n)
}

// EMASeries is seeded with the SMA of the first n values at index n-1.
func EMASeries(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) < n {
		return out
	}
	k := 2.0 / float64(n+1)
	seed := 0.0
	for i := 0; i < n; i++ {
		seed += values[i]
	}
	out[n-1] = seed / float64(n)
	for i := n; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

func EMA(values []float64, n int) float64 {
	return last(EMASeries(values, n))
}

// RSI uses Wilder smoothing seeded from the first period deltas.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// MACD returns the latest MACD line, signal and histogram. All three are zero
// when there are fewer than slow+signal-1 closes.
func MACD(closes []float64, fast, slow, signal int) (macd, sig, hist float64) {
	if fast <= 0 || slow <= 0 || signal <= 0 || len(closes) < slow+signal-1 {
		return 0, 0, 0
	}
	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)

	line := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		line = append(line, fastEMA[i]-slowEMA[i])
	}
	signalLine := EMASeries(line, signal)

	macd = last(line)
	sig = last(signalLine)
	return macd, sig, macd - sig
}

// StdDev is the population standard deviation of the trailing n values.
func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

// Bollinger returns the bands and where the last close sits between them.
// position is not clamped: it leaves [0,1] on breakout bars.
func Bollinger(closes []float64, n int, k float64) (upper, middle, lower, position float64) {
	if len(closes) < n || n <= 0 {
		nan := math.NaN()
		return nan, nan, nan, nan
	}
	middle = SMA(closes, n)
	sd := StdDev(closes, n)
	upper = middle + k*sd
	lower = middle - k*sd
	if upper == lower {
		return upper, middle, lower, 0.5
	}
	position = (closes[len(closes)-1] - lower) / (upper - lower)
	return upper, middle, lower, position
}

// ATR is the simple mean of the last period true ranges.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += TrueRange(highs[i], lows[i], closes[i-1])
	}
	return sum / float64(period)
}

func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
