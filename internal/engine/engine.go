package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/strategy"
	"llm-crypto-trader/internal/ta"
	"llm-crypto-trader/internal/tradelog"
	"llm-crypto-trader/internal/types"
)

const (
	primaryCandles     = 150
	htfCandles         = 100
	minCandles         = 30
	recentTradesLimit  = 10
	recentCandlesLimit = 20
	newsLimit          = 5
	lossSeedLimit      = 50

	dataRetryDelay = 60 * time.Second
	htfCacheTTL    = 5 * time.Minute
)

var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
)

// Deps are the engine's collaborators. Events, Journal and News are optional.
type Deps struct {
	Exchange interfaces.Exchange
	Strategy interfaces.Strategy
	Store    interfaces.TradeStore
	Events   interfaces.EventSink
	Journal  *tradelog.Journal
	News     interfaces.NewsSource
}

type actionHandler func(ctx context.Context, e *Engine, d types.Decision) error

// Engine runs the trading loop for one coin.
type Engine struct {
	cfg         types.EngineConfig
	deps        Deps
	interval    time.Duration
	htfInterval string
	exec        *orderExecutor
	stops       *stopManager
	handlers    map[types.Action]actionHandler

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	pos          *positionManager
	risk         *riskManager
	ticks        int64
	currentPrice float64
	htfTrend     types.Trend
	htfInd       *types.Indicators
	htfFetchedAt time.Time
	lastDecision *types.Decision
	lastUpdate   time.Time
}

var _ interfaces.Engine = (*Engine)(nil)

func newEngine(cfg types.EngineConfig, deps Deps) (*Engine, error) {
	if deps.Exchange == nil || deps.Strategy == nil || deps.Store == nil {
		return nil, errors.New("engine needs an exchange, a strategy and a trade store")
	}
	if cfg.Coin == "" || cfg.Quote == "" {
		return nil, errors.New("engine needs a coin and a quote currency")
	}
	if cfg.Amount <= 0 {
		return nil, fmt.Errorf("trade amount must be positive, got %v", cfg.Amount)
	}
	interval, err := ParseInterval(cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("timeframe: %w", err)
	}
	if _, err := ParseInterval(cfg.CandleInterval); err != nil {
		return nil, fmt.Errorf("candle interval: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		deps:        deps,
		interval:    interval,
		htfInterval: HigherTimeframe(cfg.CandleInterval),
		exec:        newOrderExecutor(deps.Exchange, cfg),
		stops:       newStopManager(cfg.FeeRate),
		now:         time.Now,
		sleep:       sleepCtx,
		pos:         newPositionManager(),
		risk:        newRiskManager(strategy.MinConfidence(deps.Strategy.Name())),
	}
	e.handlers = map[types.Action]actionHandler{
		types.ActionBuy:  handleBuy,
		types.ActionSell: handleSell,
		types.ActionHold: handleHold,
	}
	return e, nil
}

func handleBuy(ctx context.Context, e *Engine, d types.Decision) error {
	return e.buy(ctx, d.Reasoning)
}

func handleSell(ctx context.Context, e *Engine, d types.Decision) error {
	return e.sell(ctx, d.Reasoning)
}

func handleHold(ctx context.Context, e *Engine, d types.Decision) error {
	logger.Debug(ctx, "HOLD decision - no action taken", "coin", e.cfg.Coin, "reason", d.Reasoning)
	return nil
}

// Config returns the immutable configuration.
func (e *Engine) Config() types.EngineConfig {
	return e.cfg
}

// Start resets the per-run state, seeds the loss streak from stored trades
// and starts the loop goroutine. The loop outlives ctx; use Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if running {
		return ErrAlreadyRunning
	}

	risk := newRiskManager(strategy.MinConfidence(e.deps.Strategy.Name()))
	e.seedLossStreak(ctx, risk)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	e.pos = newPositionManager()
	e.risk = risk
	e.ticks = 0
	e.currentPrice = 0
	e.htfTrend = ""
	e.htfInd = nil
	e.htfFetchedAt = time.Time{}
	e.lastDecision = nil
	e.lastUpdate = time.Time{}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(loopCtx, e.done)

	logger.Info(ctx, "Trading engine started",
		"coin", e.cfg.Coin,
		"strategy", e.deps.Strategy.Name(),
		"timeframe", e.cfg.Timeframe,
		"candle_interval", e.cfg.CandleInterval,
		"htf_interval", e.htfInterval,
	)
	e.emit(types.EventProgress, fmt.Sprintf("Engine started: %s %s strategy, polling every %s on %s candles",
		e.cfg.Symbol(), e.deps.Strategy.Name(), e.cfg.Timeframe, e.cfg.CandleInterval))
	return nil
}

// Stop cancels the loop and waits for it to exit or for ctx to end.
// An in-flight exchange call is allowed to finish.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.cancel()
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Info(ctx, "Trading engine stopped", "coin", e.cfg.Coin)
	e.emit(types.EventProgress, "Engine stopped")
	return nil
}

func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// seedLossStreak restores rm's consecutive-loss counter from stored trades.
// rm must not be shared with a running loop yet.
func (e *Engine) seedLossStreak(ctx context.Context, rm *riskManager) {
	trades, err := e.deps.Store.GetTrades(ctx, lossSeedLimit, e.cfg.Coin)
	if err != nil {
		logger.Warn(ctx, "Could not load trade history, loss streak starts at 0", "coin", e.cfg.Coin, "error", err)
		return
	}
	rm.seedLosses(trades)
	if n := rm.consecutiveLosses; n > 0 {
		logger.Info(ctx, "Loss streak restored from trade history", "coin", e.cfg.Coin, "consecutive_losses", n)
	}
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(done)
	}()

	for ctx.Err() == nil {
		wait := e.safeCycle(ctx)
		if !e.sleep(ctx, wait) {
			return
		}
	}
}

// safeCycle runs one tick and turns a panic into an error event.
func (e *Engine) safeCycle(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Trading cycle panicked", "panic", r, "stack", string(debug.Stack()))
			e.emit(types.EventError, fmt.Sprintf("Loop error: %v", r))
			wait = e.interval
		}
	}()
	return e.runCycle(ctx)
}

// runCycle is one tick of the loop. It returns how long to sleep before the next.
func (e *Engine) runCycle(ctx context.Context) time.Duration {
	symbol := e.cfg.Symbol()

	e.mu.Lock()
	e.risk.tick()
	e.mu.Unlock()

	candles, err := e.deps.Exchange.FetchOHLCV(ctx, symbol, e.cfg.CandleInterval, primaryCandles)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		logger.ErrorWithErr(ctx, "Failed to fetch candles", err, "symbol", symbol)
		e.emit(types.EventError, fmt.Sprintf("Failed to fetch candles: %v", err))
		return e.interval
	}
	if len(candles) < minCandles {
		logger.Warn(ctx, "Insufficient candle data", "symbol", symbol, "received", len(candles), "required", minCandles)
		e.emit(types.EventError, fmt.Sprintf("Not enough candle data (got %d, need %d)", len(candles), minCandles))
		return dataRetryDelay
	}

	ind := ta.CalculateAll(candles)
	price := ind.CurrentPrice

	e.mu.Lock()
	e.ticks++
	e.currentPrice = price
	e.lastUpdate = e.now()
	tick := e.ticks
	e.mu.Unlock()

	logger.Debug(ctx, "Indicators calculated",
		"symbol", symbol,
		"price", price,
		"rsi", ind.RSI,
		"macd_hist", ind.MACDHistogram,
		"bb_position", ind.BBPosition,
		"atr", ind.ATR,
	)
	e.emit(types.EventProgress, fmt.Sprintf("Tick %d: %s %.8g (RSI %.1f)", tick, symbol, price, ind.RSI))

	htfTrend, htfInd := e.higherTimeframe(ctx)
	if ctx.Err() != nil {
		return 0
	}

	// stop-loss gate runs before the breaker and the strategy
	e.mu.RLock()
	pos := e.pos.get()
	e.mu.RUnlock()
	if hit, reason := e.stops.check(ctx, e.cfg.Coin, pos, price, ind.ATR); hit {
		e.emit(types.EventWarning, fmt.Sprintf("%s triggered at %.8g (entry %.8g)", reason, price, pos.EntryPrice))
		_ = e.sell(ctx, reason)
		e.emitStatus(ctx)
		return e.interval
	}

	e.mu.RLock()
	breached := e.risk.dailyLossHit(e.now())
	daily := e.risk.dailyPnL(e.now())
	e.mu.RUnlock()
	if breached {
		logger.Risk(ctx, e.cfg.Coin, "DAILY_LOSS_LIMIT", "daily_pnl_pct", daily, "limit_pct", dailyLossLimitPct)
		e.emit(types.EventWarning, fmt.Sprintf("Daily loss limit reached (%.2f%%), trading paused", daily))
		e.emitStatus(ctx)
		return 3 * e.interval
	}

	in := e.strategyInput(ctx, ind, candles, htfTrend, htfInd)
	decision := e.deps.Strategy.Decide(ctx, in)
	if !decision.Action.Valid() {
		decision = types.Hold(fmt.Sprintf("invalid action %q", decision.Action))
	}

	e.mu.Lock()
	d := decision
	e.lastDecision = &d
	e.mu.Unlock()

	logger.Decision(ctx, symbol, string(decision.Action), decision.Confidence, decision.Reasoning,
		"strategy", e.deps.Strategy.Name(),
		"htf_trend", htfTrend,
	)
	e.emit(types.EventSignal, decision)

	executed, note := e.execute(ctx, decision)
	e.journal(ctx, decision, ind, htfTrend, executed, note)

	e.emitStatus(ctx)
	return e.interval
}

// execute applies the execution gate and dispatches the decision.
func (e *Engine) execute(ctx context.Context, d types.Decision) (executed bool, note string) {
	if d.Action == types.ActionHold {
		_ = e.handlers[types.ActionHold](ctx, e, d)
		return false, ""
	}

	e.mu.RLock()
	ok, reason := e.risk.gate(ctx, e.cfg.Coin, d)
	inPos := e.pos.inPosition()
	e.mu.RUnlock()
	if !ok {
		return false, reason
	}
	if d.Action == types.ActionBuy && inPos {
		logger.Debug(ctx, "BUY ignored, already in position", "coin", e.cfg.Coin)
		return false, "already in position"
	}
	if d.Action == types.ActionSell && !inPos {
		logger.Debug(ctx, "SELL ignored, no open position", "coin", e.cfg.Coin)
		return false, "no open position"
	}

	handler, found := e.handlers[d.Action]
	if !found {
		return false, "no handler"
	}
	if err := handler(ctx, e, d); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (e *Engine) strategyInput(ctx context.Context, ind types.Indicators, candles []types.Candle, htfTrend types.Trend, htfInd *types.Indicators) types.StrategyInput {
	recent, err := e.deps.Store.GetTrades(ctx, recentTradesLimit, e.cfg.Coin)
	if err != nil {
		logger.Warn(ctx, "Could not load recent trades for strategy context", "error", err)
		recent = nil
	}

	var news []string
	if e.deps.News != nil {
		if news, err = e.deps.News.Headlines(ctx, e.cfg.Coin, newsLimit); err != nil {
			logger.Debug(ctx, "Headlines unavailable", "coin", e.cfg.Coin, "error", err)
			news = nil
		}
	}

	tail := candles
	if len(tail) > recentCandlesLimit {
		tail = tail[len(tail)-recentCandlesLimit:]
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return types.StrategyInput{
		Config:            e.cfg,
		Indicators:        ind,
		Position:          e.pos.get(),
		HTFTrend:          htfTrend,
		HTFInterval:       e.htfInterval,
		HTFIndicators:     htfInd,
		RecentCandles:     tail,
		RecentTrades:      recent,
		ConsecutiveLosses: e.risk.consecutiveLosses,
		News:              news,
	}
}

// higherTimeframe returns the cached trend filter and its indicators,
// refreshing them every htfCacheTTL. Fetch failures keep the last known
// values, or NEUTRAL with no indicators.
func (e *Engine) higherTimeframe(ctx context.Context) (types.Trend, *types.Indicators) {
	now := e.now()
	e.mu.RLock()
	trend, ind := e.htfTrend, e.htfInd
	fresh := !e.htfFetchedAt.IsZero() && now.Sub(e.htfFetchedAt) < htfCacheTTL
	e.mu.RUnlock()
	if trend == "" {
		trend = types.TrendNeutral
	}
	if fresh {
		return trend, copyIndicators(ind)
	}

	candles, err := e.deps.Exchange.FetchOHLCV(ctx, e.cfg.Symbol(), e.htfInterval, htfCandles)
	if err != nil {
		logger.Warn(ctx, "Higher timeframe fetch failed, keeping last trend", "interval", e.htfInterval, "trend", trend, "error", err)
		e.emit(types.EventWarning, fmt.Sprintf("Higher timeframe (%s) unavailable: %v", e.htfInterval, err))
		return trend, copyIndicators(ind)
	}

	trend, fetched := ta.TrendFromCandles(candles)
	e.mu.Lock()
	e.htfTrend = trend
	e.htfInd = &fetched
	e.htfFetchedAt = now
	e.mu.Unlock()
	logger.Debug(ctx, "Higher timeframe trend updated", "interval", e.htfInterval, "trend", trend, "candles", len(candles))
	return trend, copyIndicators(&fetched)
}

func copyIndicators(ind *types.Indicators) *types.Indicators {
	if ind == nil {
		return nil
	}
	c := *ind
	return &c
}

func (e *Engine) journal(ctx context.Context, d types.Decision, ind types.Indicators, htf types.Trend, executed bool, note string) {
	if e.deps.Journal == nil {
		return
	}
	err := e.deps.Journal.AppendDecision(tradelog.DecisionEntry{
		Coin:       e.cfg.Coin,
		Strategy:   string(e.deps.Strategy.Name()),
		Action:     d.Action,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
		Price:      ind.CurrentPrice,
		HTFTrend:   htf,
		Executed:   executed,
		Note:       note,
		Indicators: ind,
	})
	if err != nil {
		logger.Warn(ctx, "Failed to append decision journal", "error", err)
	}
}

func (e *Engine) emit(t types.EventType, content any) {
	if e.deps.Events == nil {
		return
	}
	e.deps.Events.Publish(types.Event{Type: t, Content: content, Timestamp: e.now()})
}

func (e *Engine) emitStatus(ctx context.Context) {
	if e.deps.Events == nil {
		return
	}
	e.emit(types.EventStatus, e.Status(ctx))
}
