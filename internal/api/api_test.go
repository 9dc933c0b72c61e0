package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		InitialWait:    time.Millisecond,
		MaxWait:        5 * time.Millisecond,
		MaxElapsedTime: time.Second,
		MaxAttempts:    3,
	}
}

func TestGETSendsHeadersAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		assert.Equal(t, "1", r.Header.Get("X-Per-Request"))
		_, _ = io.WriteString(w, `{"price":"65000.5"}`)
	}))
	defer srv.Close()

	c := NewClient(WithHTTPClient(srv.Client()), WithBaseURL(srv.URL), WithHeader("X-MBX-APIKEY", "key"))
	resp, err := c.GET(context.Background(), "/api/v3/ticker/price",
		url.Values{"symbol": {"BTCUSDT"}}, map[string]string{"X-Per-Request": "1"})
	require.NoError(t, err)

	var out struct {
		Price string `json:"price"`
	}
	require.NoError(t, resp.ParseJSON(&out))
	assert.Equal(t, "65000.5", out.Price)
}

func TestPOSTEncodesJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"model":"m"}`, string(b))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	resp, err := c.POST(context.Background(), "/chat", map[string]string{"model": "m"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHTTPErrorRetryable(t *testing.T) {
	assert.True(t, (&HTTPError{StatusCode: 429}).Retryable())
	assert.True(t, (&HTTPError{StatusCode: 503}).Retryable())
	assert.False(t, (&HTTPError{StatusCode: 400}).Retryable())
	assert.Equal(t, "HTTP 418: teapot", (&HTTPError{StatusCode: 418, Body: "teapot"}).Error())
}

func TestDoWithRetryRecoversFromServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	resp, err := c.DoWithRetry(NewRequest(http.MethodGet, "/"), fastRetry())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.String())
	assert.EqualValues(t, 3, hits.Load())
}

func TestDoWithRetryStopsOnClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"code":-2010}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.DoWithRetry(NewRequest(http.MethodGet, "/"), fastRetry())
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.EqualValues(t, 1, hits.Load())
}

func TestDoWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.DoWithRetry(NewRequest(http.MethodGet, "/"), fastRetry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempt(s)")
	assert.EqualValues(t, 3, hits.Load())
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(0.001, 1))
	_, err := c.GET(context.Background(), "/", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.GET(ctx, "/", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
