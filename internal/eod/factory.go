package eod

import (
	"fmt"
	"time"

	"llm-crypto-trader/internal/interfaces"
)

// DefaultCutoff is 23:55 local time.
const DefaultCutoff = 23*time.Hour + 55*time.Minute

type Options struct {
	// Dir is the log root; summaries go to Dir/eod. Defaults to "logs".
	Dir string
	// Cutoff is the time of day after which ShouldRunNow reports true.
	Cutoff time.Duration
}

// NewSummarizer builds a summarizer over the trade store.
func NewSummarizer(store interfaces.TradeStore, opts Options) interfaces.EodSummarizer {
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if opts.Cutoff <= 0 || opts.Cutoff >= 24*time.Hour {
		opts.Cutoff = DefaultCutoff
	}
	return &eodSummarizer{store: store, dir: opts.Dir, cutoff: opts.Cutoff, now: time.Now}
}

// ParseCutoff reads an HH:MM time of day.
func ParseCutoff(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff %q, want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
