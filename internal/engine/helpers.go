package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// higherTimeframes maps a candle interval to the coarser interval used as
// trend filter. Intervals not listed use 1d.
var higherTimeframes = map[string]string{
	"1m":  "1h",
	"3m":  "1h",
	"5m":  "1h",
	"10m": "1h",
	"15m": "4h",
	"30m": "4h",
	"1h":  "1d",
	"2h":  "1d",
	"4h":  "1d",
}

// HigherTimeframe returns the trend-filter interval for a candle interval.
func HigherTimeframe(interval string) string {
	if htf, ok := higherTimeframes[strings.ToLower(interval)]; ok {
		return htf
	}
	return "1d"
}

// ParseInterval understands exchange interval strings such as 30s, 5m, 4h, 1d and 1w.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid interval unit in %q", s)
	}
	return time.Duration(n) * unit, nil
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
