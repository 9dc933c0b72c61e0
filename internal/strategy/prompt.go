package strategy

import (
	"fmt"
	"strings"
	"time"

	"llm-crypto-trader/internal/types"
)

const (
	promptCandles = 10
	promptTrades  = 3
)

const systemPrompt = `You are a disciplined crypto spot trader managing a single long-only position.
You receive market data and must answer with ONE JSON object and nothing else:
{"action":"BUY|SELL|HOLD","confidence":0.0-1.0,"reasoning":"...","expected_move_pct":0.0,"stop_loss_pct":0.0,"take_profit_pct":0.0}
BUY is only valid when flat, SELL only when holding a position.`

// BuildMessages renders the system and user prompt for one decision.
func BuildMessages(in types.StrategyInput) []types.Message {
	system := systemPrompt
	if lang := strings.TrimSpace(in.Config.Language); lang != "" && !strings.EqualFold(lang, "en") {
		system += fmt.Sprintf("\nWrite the reasoning field in %s.", lang)
	}
	return []types.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: buildUserPrompt(in)},
	}
}

func buildUserPrompt(in types.StrategyInput) string {
	ind := in.Indicators
	var b strings.Builder

	fmt.Fprintf(&b, "## Market\nCoin: %s (%s)\nDecision interval: %s, candle interval: %s\n\n",
		in.Config.Coin, in.Config.Symbol(), in.Config.Timeframe, in.Config.CandleInterval)

	b.WriteString("## Indicators\n")
	fmt.Fprintf(&b, "Price: %.6f (last bar %+.2f%%)\n", ind.CurrentPrice, ind.PriceChangePct)
	fmt.Fprintf(&b, "RSI(14): %.2f\n", ind.RSI)
	fmt.Fprintf(&b, "MACD: %.6f signal: %.6f histogram: %.6f\n", ind.MACD, ind.MACDSignal, ind.MACDHistogram)
	fmt.Fprintf(&b, "Bollinger(20,2): upper %.6f middle %.6f lower %.6f position %.2f\n", ind.BBUpper, ind.BBMiddle, ind.BBLower, ind.BBPosition)
	fmt.Fprintf(&b, "SMA20: %.6f SMA50: %.6f EMA12: %.6f EMA26: %.6f\n", ind.SMA20, ind.SMA50, ind.EMA12, ind.EMA26)
	fmt.Fprintf(&b, "Volume: %.4f (20-bar avg %.4f)\n", ind.Volume, ind.VolumeAvg20)
	fmt.Fprintf(&b, "ATR(14): %.6f\n\n", ind.ATR)

	fmt.Fprintf(&b, "## Higher timeframe (%s)\nTrend: %s\n", in.HTFInterval, in.HTFTrend)
	if h := in.HTFIndicators; h != nil {
		fmt.Fprintf(&b, "RSI: %.2f EMA12: %.6f EMA26: %.6f MACD histogram: %.6f\n", h.RSI, h.EMA12, h.EMA26, h.MACDHistogram)
	}
	b.WriteString("\n")

	stopPct, takePct := RiskLevels(ind)
	fmt.Fprintf(&b, "## Risk levels\nSuggested stop-loss: %.2f%% (%.6f), take-profit: %+.2f%% (%.6f)\n\n",
		stopPct, ind.CurrentPrice*(1+stopPct/100), takePct, ind.CurrentPrice*(1+takePct/100))

	writeCandleTable(&b, in.RecentCandles)
	writePosition(&b, in)
	writeHistory(&b, in)

	if len(in.News) > 0 {
		b.WriteString("## Recent headlines\n")
		for _, h := range in.News {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("\n")
	}

	feePct := in.Config.FeeRate * 100
	b.WriteString("## Rules\n")
	b.WriteString("- Only act on a confluence of at least 3 indicators.\n")
	fmt.Fprintf(&b, "- Each leg costs %.2f%% in fees (%.2f%% round trip); the expected move must clear it.\n", feePct, 2*feePct)
	b.WriteString("- Never buy against a BEARISH higher timeframe trend.\n")
	if in.ConsecutiveLosses >= 3 {
		fmt.Fprintf(&b, "- CAUTION: %d consecutive losing trades. Require stronger evidence before buying.\n", in.ConsecutiveLosses)
	}
	b.WriteString("- When unsure, answer HOLD.\n")
	return b.String()
}

func writeCandleTable(b *strings.Builder, candles []types.Candle) {
	if len(candles) == 0 {
		return
	}
	if len(candles) > promptCandles {
		candles = candles[len(candles)-promptCandles:]
	}
	b.WriteString("## Recent candles\n| time (UTC) | open | high | low | close | volume |\n|---|---|---|---|---|---|\n")
	for _, c := range candles {
		fmt.Fprintf(b, "| %s | %.6f | %.6f | %.6f | %.6f | %.4f |\n",
			time.UnixMilli(c.Ts).UTC().Format("01-02 15:04"), c.Open, c.High, c.Low, c.Close, c.Vol)
	}
	b.WriteString("\n")
}

func writePosition(b *strings.Builder, in types.StrategyInput) {
	b.WriteString("## Position\n")
	p := in.Position
	if !p.InPosition {
		b.WriteString("Flat (no open position).\n\n")
		return
	}
	price := in.Indicators.CurrentPrice
	pnlPct := 0.0
	if p.EntryPrice > 0 {
		pnlPct = (price - p.EntryPrice) / p.EntryPrice * 100
	}
	fmt.Fprintf(b, "Holding %.8f %s since %s at %.6f (unrealized %+.2f%% before fees).\n\n",
		p.Quantity, in.Config.Coin, p.EntryTime.UTC().Format(time.RFC3339), p.EntryPrice, pnlPct)
}

func writeHistory(b *strings.Builder, in types.StrategyInput) {
	if len(in.RecentTrades) == 0 {
		return
	}
	wins, losses := 0, 0
	for _, t := range in.RecentTrades {
		if t.PnL < 0 {
			losses++
		} else {
			wins++
		}
	}
	b.WriteString("## Trade history\n")
	fmt.Fprintf(b, "Last %d trades: %d wins, %d losses. Current streak: %s\n",
		len(in.RecentTrades), wins, losses, streak(in.RecentTrades))
	n := promptTrades
	if len(in.RecentTrades) < n {
		n = len(in.RecentTrades)
	}
	for _, t := range in.RecentTrades[:n] {
		fmt.Fprintf(b, "- entry %.6f exit %.6f pnl %+.4f (%+.2f%%) closed %s\n",
			t.EntryPrice, t.ExitPrice, t.PnL, t.PnLPct, t.ExitTime.UTC().Format("01-02 15:04"))
	}
	b.WriteString("\n")
}

// streak describes the run of same-signed results at the head of a newest-first list.
func streak(trades []types.TradeRecord) string {
	if len(trades) == 0 {
		return "none"
	}
	losing := trades[0].PnL < 0
	n := 0
	for _, t := range trades {
		if (t.PnL < 0) != losing {
			break
		}
		n++
	}
	if losing {
		return fmt.Sprintf("%d loss(es)", n)
	}
	return fmt.Sprintf("%d win(s)", n)
}
