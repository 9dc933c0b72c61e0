package types

import (
	"math"
	"time"
)

// Candle is one OHLCV bar. Ts is the bar open time in unix milliseconds.
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Indicators is the snapshot produced by ta.CalculateAll for the latest bar.
type Indicators struct {
	CurrentPrice   float64 `json:"current_price"`
	RSI            float64 `json:"rsi"`
	MACD           float64 `json:"macd"`
	MACDSignal     float64 `json:"macd_signal"`
	MACDHistogram  float64 `json:"macd_histogram"`
	BBUpper        float64 `json:"bb_upper"`
	BBMiddle       float64 `json:"bb_middle"`
	BBLower        float64 `json:"bb_lower"`
	BBPosition     float64 `json:"bb_position"`
	SMA20          float64 `json:"sma_20"`
	SMA50          float64 `json:"sma_50"`
	EMA12          float64 `json:"ema_12"`
	EMA26          float64 `json:"ema_26"`
	Volume         float64 `json:"volume"`
	VolumeAvg20    float64 `json:"volume_avg_20"`
	ATR            float64 `json:"atr"`
	PriceChangePct float64 `json:"price_change_pct"`
}

// Normalize replaces NaN and infinite fields with 0 so the snapshot is always usable.
func (in *Indicators) Normalize() {
	for _, f := range []*float64{
		&in.CurrentPrice, &in.RSI, &in.MACD, &in.MACDSignal, &in.MACDHistogram,
		&in.BBUpper, &in.BBMiddle, &in.BBLower, &in.BBPosition,
		&in.SMA20, &in.SMA50, &in.EMA12, &in.EMA26,
		&in.Volume, &in.VolumeAvg20, &in.ATR, &in.PriceChangePct,
	} {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
		}
	}
}

type Trend string

const (
	TrendBullish Trend = "BULLISH"
	TrendBearish Trend = "BEARISH"
	TrendNeutral Trend = "NEUTRAL"
)

type Action string

const (
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Valid reports whether a is one of BUY, SELL or HOLD.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

type Decision struct {
	Action          Action  `json:"action"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
	ExpectedMovePct float64 `json:"expected_move_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
}

// Hold builds a HOLD decision with zero confidence.
func Hold(reason string) Decision {
	return Decision{Action: ActionHold, Confidence: 0, Reasoning: reason}
}

// Position is the engine's single open position. Quantity and EntryPrice are
// positive exactly when InPosition is set.
type Position struct {
	InPosition bool      `json:"in_position"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	EntryTime  time.Time `json:"entry_time"`
}

// TradeRecord is a closed round trip, written once at sell time.
type TradeRecord struct {
	ID             string    `json:"id"`
	Coin           string    `json:"coin"`
	Timeframe      string    `json:"timeframe"`
	CandleInterval string    `json:"candle_interval"`
	EntryPrice     float64   `json:"entry_price"`
	ExitPrice      float64   `json:"exit_price"`
	Amount         float64   `json:"amount"`
	Quantity       float64   `json:"quantity"`
	PnL            float64   `json:"pnl"`
	PnLPct         float64   `json:"pnl_pct"`
	Fee            float64   `json:"fee"`
	Reasoning      string    `json:"reasoning"`
	EntryTime      time.Time `json:"entry_time"`
	ExitTime       time.Time `json:"exit_time"`
}

// Ticker is the latest traded price for a symbol.
type Ticker struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
}

// Balance maps an asset code to its free amount.
type Balance map[string]float64

// Order is the exchange's view of an executed market order.
type Order struct {
	ID      string  `json:"id"`
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Status  string  `json:"status"`
	Average float64 `json:"average"`
	Filled  float64 `json:"filled"`
	Cost    float64 `json:"cost"`
}

// Message is one chat turn sent to a language model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type StrategyKind string

const (
	StrategyRule StrategyKind = "rule"
	StrategyLLM  StrategyKind = "llm"
)

// EngineConfig is fixed for the lifetime of one engine.
type EngineConfig struct {
	Coin           string       `json:"coin" yaml:"coin"`
	Quote          string       `json:"quote" yaml:"quote"`
	Timeframe      string       `json:"timeframe" yaml:"timeframe"`
	CandleInterval string       `json:"candle_interval" yaml:"candle_interval"`
	Amount         float64      `json:"amount" yaml:"amount"`
	Model          string       `json:"model" yaml:"model"`
	Strategy       StrategyKind `json:"strategy" yaml:"strategy"`
	Exchange       string       `json:"exchange" yaml:"exchange"`
	Language       string       `json:"language" yaml:"language"`
	FeeRate        float64      `json:"fee_rate" yaml:"fee_rate"`
}

// Symbol is the exchange pair, e.g. BTC/USDT.
func (c EngineConfig) Symbol() string {
	return c.Coin + "/" + c.Quote
}

// StrategyInput is everything a strategy may look at for one decision.
type StrategyInput struct {
	Config            EngineConfig
	Indicators        Indicators
	Position          Position
	HTFTrend          Trend
	HTFInterval       string
	HTFIndicators     *Indicators
	RecentCandles     []Candle
	RecentTrades      []TradeRecord
	ConsecutiveLosses int
	News              []string
}

type EventType string

const (
	EventProgress EventType = "progress"
	EventWarning  EventType = "warning"
	EventError    EventType = "error"
	EventSignal   EventType = "signal"
	EventTrade    EventType = "trade"
	EventStatus   EventType = "status"
)

type Event struct {
	Type      EventType `json:"type"`
	Content   any       `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeEvent is the content of a trade event.
type TradeEvent struct {
	Side     Action       `json:"side"`
	Coin     string       `json:"coin"`
	Price    float64      `json:"price"`
	Quantity float64      `json:"quantity"`
	Amount   float64      `json:"amount"`
	OrderID  string       `json:"order_id"`
	Reason   string       `json:"reason"`
	Record   *TradeRecord `json:"record,omitempty"`
}

// Status is the engine snapshot returned by Engine.Status and sent as status events.
type Status struct {
	Running           bool      `json:"running"`
	Coin              string    `json:"coin"`
	Timeframe         string    `json:"timeframe"`
	CandleInterval    string    `json:"candle_interval"`
	Strategy          string    `json:"strategy"`
	Model             string    `json:"model"`
	Exchange          string    `json:"exchange"`
	Ticks             int64     `json:"ticks"`
	CurrentPrice      float64   `json:"current_price"`
	InPosition        bool      `json:"in_position"`
	EntryPrice        float64   `json:"entry_price"`
	Quantity          float64   `json:"quantity"`
	EntryTime         time.Time `json:"entry_time"`
	UnrealizedPnL     float64   `json:"unrealized_pnl"`
	UnrealizedPnLPct  float64   `json:"unrealized_pnl_pct"`
	HTFTrend          Trend     `json:"htf_trend"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	DailyPnLPct       float64   `json:"daily_pnl_pct"`
	TodayTrades       int       `json:"today_trades"`
	TodayPnL          float64   `json:"today_pnl"`
	TodayFees         float64   `json:"today_fees"`
	LastDecision      *Decision `json:"last_decision,omitempty"`
	LastUpdate        time.Time `json:"last_update"`
}
