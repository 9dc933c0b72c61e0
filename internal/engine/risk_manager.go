package engine

import (
	"context"
	"math"
	"time"

	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/tradelog"
	"llm-crypto-trader/internal/types"
)

const (
	cooldownTicks          = 2
	dailyLossLimitPct      = -5.0
	lossStreakThreshold    = 3
	lossStreakConfidenceUp = 0.15
	maxMinConfidence       = 0.95
)

// riskManager holds the counters behind the execution gates.
// Callers hold the engine lock.
type riskManager struct {
	baseMinConfidence float64

	ticksSinceTrade   int
	consecutiveLosses int

	dailyPnLPct float64
	day         time.Time
}

func newRiskManager(baseMinConfidence float64) *riskManager {
	return &riskManager{
		baseMinConfidence: baseMinConfidence,
		ticksSinceTrade:   cooldownTicks,
	}
}

// tick advances the cooldown counter once per loop iteration.
func (rm *riskManager) tick() {
	if rm.ticksSinceTrade < math.MaxInt32 {
		rm.ticksSinceTrade++
	}
}

func (rm *riskManager) tradeExecuted() {
	rm.ticksSinceTrade = 0
}

func (rm *riskManager) coolingDown() bool {
	return rm.ticksSinceTrade < cooldownTicks
}

// minConfidence is the base threshold, raised after a losing streak.
func (rm *riskManager) minConfidence() float64 {
	if rm.consecutiveLosses >= lossStreakThreshold {
		return math.Min(rm.baseMinConfidence+lossStreakConfidenceUp, maxMinConfidence)
	}
	return rm.baseMinConfidence
}

// recordClose updates the loss streak and today's P&L% with a closed trade.
func (rm *riskManager) recordClose(pnl, pnlPct float64, at time.Time) {
	if pnl < 0 {
		rm.consecutiveLosses++
	} else {
		rm.consecutiveLosses = 0
	}
	rm.rollDay(at)
	rm.dailyPnLPct += pnlPct
}

// dailyPnL returns the P&L% accumulated on now's calendar day.
func (rm *riskManager) dailyPnL(now time.Time) float64 {
	if !tradelog.StartOfDay(now).Equal(rm.day) {
		return 0
	}
	return rm.dailyPnLPct
}

func (rm *riskManager) dailyLossHit(now time.Time) bool {
	return rm.dailyPnL(now) <= dailyLossLimitPct
}

func (rm *riskManager) rollDay(now time.Time) {
	d := tradelog.StartOfDay(now)
	if !d.Equal(rm.day) {
		rm.day = d
		rm.dailyPnLPct = 0
	}
}

// seedLosses sets the streak from stored trades, newest first.
func (rm *riskManager) seedLosses(trades []types.TradeRecord) {
	n := 0
	for _, t := range trades {
		if t.PnL >= 0 {
			break
		}
		n++
	}
	rm.consecutiveLosses = n
}

// gate decides whether a decision may execute.
//
// Returns:
//   - ok: true if the decision passes cooldown and confidence checks
//   - reason: why it was blocked, empty when ok
func (rm *riskManager) gate(ctx context.Context, coin string, d types.Decision) (ok bool, reason string) {
	if rm.coolingDown() {
		logger.Risk(ctx, coin, "COOLDOWN",
			"ticks_since_trade", rm.ticksSinceTrade,
			"required", cooldownTicks,
		)
		return false, "cooldown"
	}
	if minConf := rm.minConfidence(); d.Confidence < minConf {
		logger.Risk(ctx, coin, "LOW_CONFIDENCE",
			"confidence", d.Confidence,
			"min_confidence", minConf,
			"consecutive_losses", rm.consecutiveLosses,
		)
		return false, "confidence below threshold"
	}
	return true, ""
}
