package eod

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/tradelog"
	"llm-crypto-trader/internal/types"
)

// historyLimit bounds how many stored trades are scanned for one day.
const historyLimit = 10000

var header = []string{"coin", "trades", "wins", "losses", "win_rate_pct", "realized_pnl", "fees", "gross_buy_value", "gross_sell_value"}

type coinRow struct {
	Coin      string
	Trades    int
	Wins      int
	Losses    int
	PnL       float64
	Fees      float64
	BuyValue  float64
	SellValue float64
}

func (r *coinRow) add(t types.TradeRecord) {
	r.Trades++
	if t.PnL >= 0 {
		r.Wins++
	} else {
		r.Losses++
	}
	r.PnL += t.PnL
	r.Fees += t.Fee
	r.BuyValue += t.Quantity * t.EntryPrice
	r.SellValue += t.Quantity * t.ExitPrice
}

func (r *coinRow) record() []string {
	var winRate float64
	if r.Trades > 0 {
		winRate = float64(r.Wins) / float64(r.Trades) * 100
	}
	return []string{
		r.Coin,
		strconv.Itoa(r.Trades),
		strconv.Itoa(r.Wins),
		strconv.Itoa(r.Losses),
		fmt.Sprintf("%.1f", winRate),
		fmt.Sprintf("%.4f", r.PnL),
		fmt.Sprintf("%.4f", r.Fees),
		fmt.Sprintf("%.2f", r.BuyValue),
		fmt.Sprintf("%.2f", r.SellValue),
	}
}

type eodSummarizer struct {
	store  interfaces.TradeStore
	dir    string
	cutoff time.Duration
	now    func() time.Time
}

var _ interfaces.EodSummarizer = (*eodSummarizer)(nil)

func (s *eodSummarizer) csvPath(t time.Time) string {
	return filepath.Join(s.dir, "eod", t.Format("2006-01-02")+".csv")
}

// SummarizeDay writes the per-coin summary of trades closed on t's calendar
// day. It returns an empty path when there were none.
func (s *eodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	trades, err := s.store.GetTrades(ctx, historyLimit, "")
	if err != nil {
		return "", fmt.Errorf("load trades: %w", err)
	}

	day := tradelog.StartOfDay(t)
	next := day.AddDate(0, 0, 1)
	rows := map[string]*coinRow{}
	for _, tr := range trades {
		if tr.ExitTime.Before(day) || !tr.ExitTime.Before(next) {
			continue
		}
		row := rows[tr.Coin]
		if row == nil {
			row = &coinRow{Coin: tr.Coin}
			rows[tr.Coin] = row
		}
		row.add(tr)
	}
	if len(rows) == 0 {
		return "", nil
	}

	coins := make([]string, 0, len(rows))
	for c := range rows {
		coins = append(coins, c)
	}
	sort.Strings(coins)

	outPath := s.csvPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return "", err
	}
	total := coinRow{Coin: "TOTAL"}
	for _, c := range coins {
		r := rows[c]
		if err := w.Write(r.record()); err != nil {
			return "", err
		}
		total.Trades += r.Trades
		total.Wins += r.Wins
		total.Losses += r.Losses
		total.PnL += r.PnL
		total.Fees += r.Fees
		total.BuyValue += r.BuyValue
		total.SellValue += r.SellValue
	}
	if err := w.Write(total.record()); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	return s.SummarizeDay(ctx, s.now())
}

// ShouldRunNow is true once the local cutoff has passed and today's CSV does
// not exist yet.
func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := s.now()
	outPath := s.csvPath(now)
	if now.Before(tradelog.StartOfDay(now).Add(s.cutoff)) {
		return false, outPath
	}
	if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
		return true, outPath
	}
	return false, outPath
}
