package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"llm-crypto-trader/internal/engine"
	"llm-crypto-trader/internal/types"
)

const (
	defaultTradesLimit = 50
	maxTradesLimit     = 1000
	stopTimeout        = 30 * time.Second
)

// StartRequest overrides the configured engine defaults. Zero fields keep the default.
type StartRequest struct {
	Coin           string  `json:"coin"`
	Timeframe      string  `json:"timeframe"`
	CandleInterval string  `json:"candle_interval"`
	Amount         float64 `json:"amount"`
	Strategy       string  `json:"strategy"`
	Model          string  `json:"model"`
	Language       string  `json:"language"`
}

// Apply returns base with the request's non-zero fields applied.
func (r StartRequest) Apply(base types.EngineConfig) types.EngineConfig {
	cfg := base
	if r.Coin != "" {
		cfg.Coin = strings.ToUpper(strings.TrimSpace(r.Coin))
	}
	if r.Timeframe != "" {
		cfg.Timeframe = r.Timeframe
	}
	if r.CandleInterval != "" {
		cfg.CandleInterval = r.CandleInterval
	}
	if r.Amount != 0 {
		cfg.Amount = r.Amount
	}
	if r.Strategy != "" {
		cfg.Strategy = types.StrategyKind(strings.ToLower(r.Strategy))
	}
	if r.Model != "" {
		cfg.Model = r.Model
	}
	if r.Language != "" {
		cfg.Language = r.Language
	}
	return cfg
}

func (s *Server) handleStart(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	cfg := req.Apply(s.deps.Defaults)
	if s.deps.Validate != nil {
		if err := s.deps.Validate(cfg); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	eng, err := s.deps.Engines.Start(c.Request.Context(), cfg)
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning):
		errorResponse(c, http.StatusConflict, err.Error())
		return
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, eng.Status(c.Request.Context()))
}

func (s *Server) handleStop(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), stopTimeout)
	defer cancel()

	err := s.deps.Engines.Stop(ctx)
	switch {
	case errors.Is(err, engine.ErrNotRunning):
		errorResponse(c, http.StatusConflict, err.Error())
		return
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, s.deps.Engines.Status(c.Request.Context()))
}

func (s *Server) handleStatus(c *gin.Context) {
	successResponse(c, s.deps.Engines.Status(c.Request.Context()))
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := defaultTradesLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTradesLimit)
	}
	coin := strings.ToUpper(strings.TrimSpace(c.Query("coin")))

	trades, err := s.deps.Store.GetTrades(c.Request.Context(), limit, coin)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to load trades: "+err.Error())
		return
	}
	successResponse(c, trades)
}

// TodaySummary is the response of GET /api/trades/today.
type TodaySummary struct {
	Trades []types.TradeRecord `json:"trades"`
	Count  int                 `json:"count"`
	Wins   int                 `json:"wins"`
	Losses int                 `json:"losses"`
	PnL    float64             `json:"pnl"`
	Fees   float64             `json:"fees"`
}

func (s *Server) handleTodayTrades(c *gin.Context) {
	trades, err := s.deps.Store.GetTodayTrades(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to load today's trades: "+err.Error())
		return
	}
	sum := TodaySummary{Trades: trades, Count: len(trades)}
	if sum.Trades == nil {
		sum.Trades = []types.TradeRecord{}
	}
	for _, t := range trades {
		if t.PnL >= 0 {
			sum.Wins++
		} else {
			sum.Losses++
		}
		sum.PnL += t.PnL
		sum.Fees += t.Fee
	}
	successResponse(c, sum)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"engine_running": s.deps.Engines.IsRunning(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"time":           time.Now().Format(time.RFC3339),
	})
}
