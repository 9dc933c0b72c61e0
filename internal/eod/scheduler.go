package eod

import (
	"context"
	"fmt"
	"time"

	"llm-crypto-trader/internal/events"
	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

// Scheduler writes today's summary once the cutoff has passed and announces
// every written file on the event bus.
type Scheduler struct {
	summarizer interfaces.EodSummarizer
	bus        *events.Bus
	every      time.Duration
}

// NewScheduler checks the summarizer every interval. bus may be nil.
func NewScheduler(summarizer interfaces.EodSummarizer, bus *events.Bus, every time.Duration) *Scheduler {
	if every <= 0 {
		every = time.Minute
	}
	return &Scheduler{summarizer: summarizer, bus: bus, every: every}
}

// Run blocks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	tick := time.NewTicker(s.every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			_, _ = s.Check(ctx)
		}
	}
}

// Check writes the summary when it is due and returns its path.
func (s *Scheduler) Check(ctx context.Context) (string, error) {
	if due, _ := s.summarizer.ShouldRunNow(); !due {
		return "", nil
	}
	return s.Flush(ctx)
}

// Flush writes today's summary regardless of the cutoff. An empty path means
// there were no trades.
func (s *Scheduler) Flush(ctx context.Context) (string, error) {
	path, err := s.summarizer.SummarizeToday(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "End-of-day summary failed", err)
		s.emit(types.EventWarning, fmt.Sprintf("End-of-day summary failed: %v", err))
		return "", err
	}
	if path != "" {
		s.emit(types.EventProgress, "End-of-day summary written: "+path)
	}
	return path, nil
}

func (s *Scheduler) emit(t types.EventType, content any) {
	if s.bus != nil {
		s.bus.Emit(t, content)
	}
}
