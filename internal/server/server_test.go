package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"llm-crypto-trader/internal/engine"
	"llm-crypto-trader/internal/events"
	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/tradelog"
	"llm-crypto-trader/internal/types"
)

type MockEngines struct {
	mock.Mock
}

func (m *MockEngines) Start(ctx context.Context, cfg types.EngineConfig) (interfaces.Engine, error) {
	args := m.Called(ctx, cfg)
	eng, _ := args.Get(0).(interfaces.Engine)
	return eng, args.Error(1)
}

func (m *MockEngines) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockEngines) IsRunning() bool {
	return m.Called().Bool(0)
}

func (m *MockEngines) Status(ctx context.Context) types.Status {
	return m.Called(ctx).Get(0).(types.Status)
}

type stubEngine struct {
	status types.Status
}

func (s stubEngine) Start(context.Context) error         { return nil }
func (s stubEngine) Stop(context.Context) error          { return nil }
func (s stubEngine) IsRunning() bool                     { return true }
func (s stubEngine) Status(context.Context) types.Status { return s.status }

var defaults = types.EngineConfig{
	Coin: "BTC", Quote: "USDT", Timeframe: "5m", CandleInterval: "5m",
	Amount: 100, Strategy: types.StrategyRule, Exchange: "binance", FeeRate: 0.001,
}

type envelope struct {
	Success bool            `json:"success"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*Server, *MockEngines, *tradelog.MemoryStore, *events.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engines := &MockEngines{}
	store := tradelog.NewMemoryStore()
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)
	s, err := NewServer(Config{}, Deps{
		Engines:  engines,
		Store:    store,
		Bus:      bus,
		Defaults: defaults,
		Validate: func(cfg types.EngineConfig) error {
			if cfg.Amount <= 0 {
				return errors.New("engine.amount must be positive")
			}
			return nil
		},
	})
	require.NoError(t, err)
	return s, engines, store, bus
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestStartEngine(t *testing.T) {
	s, engines, _, _ := setup(t)

	want := defaults
	want.Coin = "ETH"
	want.Strategy = types.StrategyLLM
	want.Amount = 25
	engines.On("Start", mock.Anything, want).Return(stubEngine{status: types.Status{Running: true, Coin: "ETH"}}, nil).Once()

	w, env := do(t, s, http.MethodPost, "/api/engine/start", `{"coin":"eth","strategy":"LLM","amount":25}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	var st types.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Running)
	assert.Equal(t, "ETH", st.Coin)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	engines.AssertExpectations(t)
}

func TestStartEngineWithoutBodyUsesDefaults(t *testing.T) {
	s, engines, _, _ := setup(t)
	engines.On("Start", mock.Anything, defaults).Return(stubEngine{}, nil).Once()

	w, _ := do(t, s, http.MethodPost, "/api/engine/start", "")
	assert.Equal(t, http.StatusOK, w.Code)
	engines.AssertExpectations(t)
}

func TestStartEngineErrors(t *testing.T) {
	t.Run("already running", func(t *testing.T) {
		s, engines, _, _ := setup(t)
		engines.On("Start", mock.Anything, mock.Anything).Return(nil, engine.ErrAlreadyRunning)
		w, env := do(t, s, http.MethodPost, "/api/engine/start", "{}")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.True(t, env.Error)
		assert.Equal(t, engine.ErrAlreadyRunning.Error(), env.Message)
	})
	t.Run("invalid override", func(t *testing.T) {
		s, engines, _, _ := setup(t)
		w, _ := do(t, s, http.MethodPost, "/api/engine/start", `{"amount":-1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		engines.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	})
	t.Run("malformed json", func(t *testing.T) {
		s, _, _, _ := setup(t)
		w, _ := do(t, s, http.MethodPost, "/api/engine/start", `{"coin":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("build failure", func(t *testing.T) {
		s, engines, _, _ := setup(t)
		engines.On("Start", mock.Anything, mock.Anything).Return(nil, errors.New("no api key"))
		w, _ := do(t, s, http.MethodPost, "/api/engine/start", "{}")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestStopEngine(t *testing.T) {
	s, engines, _, _ := setup(t)
	engines.On("Stop", mock.Anything).Return(nil).Once()
	engines.On("Status", mock.Anything).Return(types.Status{Coin: "BTC"})

	w, env := do(t, s, http.MethodPost, "/api/engine/stop", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	engines.On("Stop", mock.Anything).Return(engine.ErrNotRunning)
	w, _ = do(t, s, http.MethodPost, "/api/engine/stop", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStatusBeforeStart(t *testing.T) {
	s, engines, _, _ := setup(t)
	engines.On("Status", mock.Anything).Return(types.Status{})

	w, env := do(t, s, http.MethodGet, "/api/engine/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st types.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, types.Status{}, st)
}

func TestTrades(t *testing.T) {
	s, _, store, _ := setup(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.SaveTrade(ctx, types.TradeRecord{ID: "1", Coin: "BTC", PnL: 2, Fee: 0.1, ExitTime: now}))
	require.NoError(t, store.SaveTrade(ctx, types.TradeRecord{ID: "2", Coin: "ETH", PnL: -1, Fee: 0.05, ExitTime: now}))
	require.NoError(t, store.SaveTrade(ctx, types.TradeRecord{ID: "3", Coin: "BTC", PnL: 1, ExitTime: now.AddDate(0, 0, -2)}))

	_, env := do(t, s, http.MethodGet, "/api/trades?coin=btc", "")
	var trades []types.TradeRecord
	require.NoError(t, json.Unmarshal(env.Data, &trades))
	require.Len(t, trades, 2)
	assert.Equal(t, "3", trades[0].ID)

	_, env = do(t, s, http.MethodGet, "/api/trades?limit=1", "")
	require.NoError(t, json.Unmarshal(env.Data, &trades))
	assert.Len(t, trades, 1)

	w, _ := do(t, s, http.MethodGet, "/api/trades?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, env = do(t, s, http.MethodGet, "/api/trades/today", "")
	var today TodaySummary
	require.NoError(t, json.Unmarshal(env.Data, &today))
	assert.Equal(t, 2, today.Count)
	assert.Equal(t, 1, today.Wins)
	assert.Equal(t, 1, today.Losses)
	assert.InDelta(t, 1, today.PnL, 1e-12)
	assert.InDelta(t, 0.15, today.Fees, 1e-12)
}

func TestHealth(t *testing.T) {
	s, engines, _, _ := setup(t)
	engines.On("IsRunning").Return(false)

	w, _ := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"engine_running":false`)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s, engines, _, _ := setup(t)
	engines.On("IsRunning").Return(true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestServerSentEvents(t *testing.T) {
	s, engines, _, bus := setup(t)
	engines.On("Status", mock.Anything).Return(types.Status{Coin: "BTC"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?types=trade", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var name string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "event:") {
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
			if strings.HasPrefix(line, "data:") {
				return name
			}
		}
	}
	assert.Equal(t, "status", readEvent())

	bus.Emit(types.EventProgress, "ignored")
	bus.Emit(types.EventTrade, types.TradeEvent{Side: types.ActionBuy, Coin: "BTC"})
	assert.Equal(t, "trade", readEvent())
}

func TestWebSocket(t *testing.T) {
	s, engines, _, bus := setup(t)
	engines.On("Status", mock.Anything).Return(types.Status{Coin: "BTC"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first struct {
		Type    types.EventType `json:"type"`
		Content types.Status    `json:"content"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, types.EventStatus, first.Type)
	assert.Equal(t, "BTC", first.Content.Coin)

	bus.Emit(types.EventWarning, "Daily loss limit reached")
	var next struct {
		Type    types.EventType `json:"type"`
		Content string          `json:"content"`
	}
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, types.EventWarning, next.Type)
	assert.Equal(t, "Daily loss limit reached", next.Content)
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Config{}, Deps{})
	assert.Error(t, err)
}
