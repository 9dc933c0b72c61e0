package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"llm-crypto-trader/internal/api"
	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/types"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	TestnetBaseURL = "https://testnet.binance.vision"

	recvWindow = "5000"
)

type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	// RequestsPerSecond caps outgoing REST calls. Zero means 10.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client is a Binance spot REST client.
type Client struct {
	apiKey    string
	secretKey string
	http      *api.Client
	now       func() time.Time
}

var _ interfaces.Exchange = (*Client)(nil)

func NewClient(cfg Config, opts ...api.ClientOption) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	base := []api.ClientOption{
		api.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		api.WithTimeout(cfg.Timeout),
		api.WithRateLimit(cfg.RequestsPerSecond, int(cfg.RequestsPerSecond)),
		api.WithLogging(true),
	}
	return &Client{
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		http:      api.NewClient(append(base, opts...)...),
		now:       time.Now,
	}
}

// MarketSymbol converts BTC/USDT into BTCUSDT.
func MarketSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// FetchOHLCV returns up to limit closed and forming candles, oldest first.
func (c *Client) FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	req := api.NewRequest(http.MethodGet, "/api/v3/klines").WithContext(ctx).WithQuery(params)
	resp, err := c.http.DoWithRetry(req, nil)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	var rawKlines [][]json.RawMessage
	if err := resp.ParseJSON(&rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]types.Candle, 0, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(raw))
		}
		var k types.Candle
		if err := json.Unmarshal(raw[0], &k.Ts); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		for j, dst := range []*float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Vol} {
			v, err := parseNumber(raw[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			*dst = v
		}
		candles = append(candles, k)
	}
	return candles, nil
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))

	req := api.NewRequest(http.MethodGet, "/api/v3/ticker/price").WithContext(ctx).WithQuery(params)
	resp, err := c.http.DoWithRetry(req, nil)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("error fetching price: %w", err)
	}

	var ticker struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price,string"`
	}
	if err := resp.ParseJSON(&ticker); err != nil {
		return types.Ticker{}, fmt.Errorf("error parsing price: %w", err)
	}
	return types.Ticker{Symbol: symbol, Last: ticker.Price}, nil
}

type assetBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// FetchBalance returns the free amount of every asset with a non-zero balance.
func (c *Client) FetchBalance(ctx context.Context) (types.Balance, error) {
	resp, err := c.signed(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("error fetching account: %w", err)
	}

	var account struct {
		Balances []assetBalance `json:"balances"`
	}
	if err := resp.ParseJSON(&account); err != nil {
		return nil, fmt.Errorf("error parsing account: %w", err)
	}

	out := make(types.Balance)
	for _, b := range account.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil || free == 0 {
			continue
		}
		out[b.Asset] = free
	}
	return out, nil
}

func (c *Client) CreateMarketBuyOrder(ctx context.Context, symbol string, cost float64) (types.Order, error) {
	if cost <= 0 {
		return types.Order{}, errors.New("buy cost must be positive")
	}
	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))
	params.Set("side", "BUY")
	params.Set("type", "MARKET")
	params.Set("quoteOrderQty", strconv.FormatFloat(cost, 'f', -1, 64))
	return c.placeOrder(ctx, symbol, params)
}

func (c *Client) CreateMarketSellOrder(ctx context.Context, symbol string, qty float64) (types.Order, error) {
	if qty <= 0 {
		return types.Order{}, errors.New("sell quantity must be positive")
	}
	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))
	params.Set("side", "SELL")
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	return c.placeOrder(ctx, symbol, params)
}

type orderResponse struct {
	Symbol              string  `json:"symbol"`
	OrderID             int64   `json:"orderId"`
	Status              string  `json:"status"`
	Side                string  `json:"side"`
	ExecutedQty         float64 `json:"executedQty,string"`
	CummulativeQuoteQty float64 `json:"cummulativeQuoteQty,string"`
}

// placeOrder is never retried: a timed out order may still have filled.
func (c *Client) placeOrder(ctx context.Context, symbol string, params url.Values) (types.Order, error) {
	params.Set("newOrderRespType", "RESULT")
	resp, err := c.signed(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return types.Order{}, fmt.Errorf("error placing order: %w", err)
	}

	var or orderResponse
	if err := resp.ParseJSON(&or); err != nil {
		return types.Order{}, fmt.Errorf("error parsing order response: %w", err)
	}

	order := types.Order{
		ID:     strconv.FormatInt(or.OrderID, 10),
		Symbol: symbol,
		Side:   strings.ToLower(or.Side),
		Status: strings.ToLower(or.Status),
		Filled: or.ExecutedQty,
		Cost:   or.CummulativeQuoteQty,
	}
	if or.ExecutedQty > 0 {
		order.Average = or.CummulativeQuoteQty / or.ExecutedQty
	}
	return order, nil
}

// signed sends an authenticated request. The signature covers the encoded
// query and is appended last.
func (c *Client) signed(ctx context.Context, method, path string, params url.Values) (*api.Response, error) {
	if c.apiKey == "" || c.secretKey == "" {
		return nil, errors.New("binance API credentials missing")
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", recvWindow)

	query := params.Encode()
	raw := path + "?" + query + "&signature=" + c.sign(query)

	req := api.NewRequest(method, raw).WithContext(ctx).WithHeader("X-MBX-APIKEY", c.apiKey)
	if method == http.MethodGet {
		return c.http.DoWithRetry(req, nil)
	}
	return c.http.Do(req)
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// parseNumber accepts both "1.23" and 1.23.
func parseNumber(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}
