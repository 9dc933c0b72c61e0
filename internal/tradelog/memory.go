package tradelog

import (
	"context"
	"sync"
	"time"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/types"
)

// MemoryStore keeps trades in process memory, newest first.
type MemoryStore struct {
	mu     sync.RWMutex
	trades []types.TradeRecord
	now    func() time.Time
}

var _ interfaces.TradeStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) SaveTrade(_ context.Context, rec types.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = prepend(m.trades, rec)
	return nil
}

func (m *MemoryStore) GetTrades(_ context.Context, limit int, coin string) ([]types.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterTrades(m.trades, limit, coin), nil
}

func (m *MemoryStore) GetTodayTrades(_ context.Context) ([]types.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return todayTrades(m.trades, m.now()), nil
}

// replace swaps the whole history. Used when a backend reloads.
func (m *MemoryStore) replace(trades []types.TradeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append([]types.TradeRecord(nil), trades...)
}

func prepend(trades []types.TradeRecord, rec types.TradeRecord) []types.TradeRecord {
	out := make([]types.TradeRecord, 0, len(trades)+1)
	out = append(out, rec)
	return append(out, trades...)
}

// filterTrades expects newest-first input. limit <= 0 means no limit.
func filterTrades(trades []types.TradeRecord, limit int, coin string) []types.TradeRecord {
	out := make([]types.TradeRecord, 0)
	for _, t := range trades {
		if coin != "" && t.Coin != coin {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// todayTrades returns trades whose exit falls on now's local calendar day.
func todayTrades(trades []types.TradeRecord, now time.Time) []types.TradeRecord {
	start := StartOfDay(now)
	end := start.AddDate(0, 0, 1)
	out := make([]types.TradeRecord, 0)
	for _, t := range trades {
		if !t.ExitTime.Before(start) && t.ExitTime.Before(end) {
			out = append(out, t)
		}
	}
	return out
}

// StartOfDay is local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
