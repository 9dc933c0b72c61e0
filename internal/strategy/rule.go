package strategy

import (
	"context"
	"fmt"
	"strings"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/types"
)

const (
	sellSignalsNeeded = 2
	buySignalsNeeded  = 3

	atrStopMult = 1.5
	atrTakeMult = 2.0

	fallbackStopPct = -2.0
	fallbackTakePct = 1.5
)

type signal struct {
	name string
	hit  bool
}

// RuleStrategy scores fixed indicator thresholds.
type RuleStrategy struct{}

var _ interfaces.Strategy = (*RuleStrategy)(nil)

func NewRuleStrategy() *RuleStrategy {
	return &RuleStrategy{}
}

func (s *RuleStrategy) Name() types.StrategyKind {
	return types.StrategyRule
}

func (s *RuleStrategy) Decide(_ context.Context, in types.StrategyInput) types.Decision {
	if in.Position.InPosition {
		return s.decideExit(in)
	}
	return s.decideEntry(in)
}

func (s *RuleStrategy) decideExit(in types.StrategyInput) types.Decision {
	ind := in.Indicators
	signals := []signal{
		{"RSI overbought (>70)", ind.RSI > 70},
		{"MACD histogram negative", ind.MACDHistogram < 0},
		{"price near upper Bollinger band (>0.8)", ind.BBPosition > 0.8},
		{"EMA12 below EMA26", ind.EMA12 < ind.EMA26},
	}
	matched, names := count(signals)

	if matched >= sellSignalsNeeded {
		d := withRiskLevels(types.Decision{
			Action:     types.ActionSell,
			Confidence: float64(matched) / float64(len(signals)),
			Reasoning:  fmt.Sprintf("Sell signals %d/%d: %s", matched, len(signals), strings.Join(names, ", ")),
		}, ind)
		return d
	}
	return withRiskLevels(types.Decision{
		Action:    types.ActionHold,
		Reasoning: fmt.Sprintf("Holding position: %d/%d sell signals", matched, len(signals)),
	}, ind)
}

func (s *RuleStrategy) decideEntry(in types.StrategyInput) types.Decision {
	ind := in.Indicators

	if in.HTFTrend == types.TrendBearish {
		return withRiskLevels(types.Decision{
			Action:    types.ActionHold,
			Reasoning: fmt.Sprintf("Higher timeframe %s trend is BEARISH, not buying", in.HTFInterval),
		}, ind)
	}
	if ind.EMA12 <= ind.EMA26 {
		return withRiskLevels(types.Decision{
			Action:    types.ActionHold,
			Reasoning: fmt.Sprintf("EMA12 (%.4f) not above EMA26 (%.4f), trend not aligned", ind.EMA12, ind.EMA26),
		}, ind)
	}

	signals := []signal{
		{"RSI oversold (<30)", ind.RSI < 30},
		{"MACD histogram positive", ind.MACDHistogram > 0},
		{"price near lower Bollinger band (<0.2)", ind.BBPosition < 0.2},
		{"price above SMA20", ind.CurrentPrice > ind.SMA20},
		{"EMA12 above EMA26", true},
		{"volume above 20-bar average", ind.Volume > ind.VolumeAvg20},
		{"higher timeframe BULLISH", in.HTFTrend == types.TrendBullish},
	}
	matched, names := count(signals)

	if matched >= buySignalsNeeded {
		return withRiskLevels(types.Decision{
			Action:     types.ActionBuy,
			Confidence: float64(matched) / float64(len(signals)),
			Reasoning:  fmt.Sprintf("Buy signals %d/%d: %s", matched, len(signals), strings.Join(names, ", ")),
		}, ind)
	}
	return withRiskLevels(types.Decision{
		Action:    types.ActionHold,
		Reasoning: fmt.Sprintf("Only %d/%d buy signals", matched, len(signals)),
	}, ind)
}

func count(signals []signal) (int, []string) {
	names := make([]string, 0, len(signals))
	for _, s := range signals {
		if s.hit {
			names = append(names, s.name)
		}
	}
	return len(names), names
}

// RiskLevels returns stop-loss and take-profit percentages for the price.
func RiskLevels(ind types.Indicators) (stopPct, takePct float64) {
	if ind.ATR > 0 && ind.CurrentPrice > 0 {
		return -atrStopMult * ind.ATR / ind.CurrentPrice * 100, atrTakeMult * ind.ATR / ind.CurrentPrice * 100
	}
	return fallbackStopPct, fallbackTakePct
}

func withRiskLevels(d types.Decision, ind types.Indicators) types.Decision {
	d.StopLossPct, d.TakeProfitPct = RiskLevels(ind)
	if d.Action == types.ActionBuy {
		d.ExpectedMovePct = d.TakeProfitPct
	}
	return d
}
