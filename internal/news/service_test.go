package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tagPage = `<html><body>
<div class="card"><h3>Bitcoin breaks 70k</h3><a href="/news/btc-70k">read</a><time>1h ago</time></div>
<div class="card"><h3>ETF inflows slow</h3><a href="https://example.org/etf">read</a></div>
<div class="card"><h3>Bitcoin breaks 70k</h3><a href="/news/dup">read</a></div>
<div class="card"><h3></h3><a href="/news/empty">read</a></div>
</body></html>`

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>feed</title>
<item><title>Miners sell reserves - The Block</title><guid>https://x/1</guid><pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate></item>
<item><title>Halving countdown - Decrypt</title><guid>https://x/2</guid></item>
<item><title>Third story</title></item>
</channel></rss>`

func testSelectors() Selectors {
	return Selectors{Article: "div.card", Title: "h3", URL: "a", PublishedAt: "time"}
}

func TestScrapeHTMLSource(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, tagPage)
	}))
	defer srv.Close()

	s := NewScraper([]Source{{Name: "Test", BaseURL: srv.URL, SearchPath: "/tags/{coin}", Selectors: testSelectors()}}, "", time.Second, 0)
	articles, err := s.Scrape(context.Background(), "BTC", 10)
	require.NoError(t, err)

	assert.Equal(t, "/tags/bitcoin", path)
	require.Len(t, articles, 3)
	assert.Equal(t, "Bitcoin breaks 70k", articles[0].Title)
	assert.Equal(t, srv.URL+"/news/btc-70k", articles[0].URL)
	assert.Equal(t, "1h ago", articles[0].PublishedAt)
	assert.Equal(t, "https://example.org/etf", articles[1].URL)
	assert.Equal(t, "Test", articles[1].Source)
}

func TestScrapeFallsBackToFeed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tags/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	})
	var query string
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feed)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewScraper([]Source{{Name: "Blocked", BaseURL: srv.URL, SearchPath: "/tags/{coin}", Selectors: testSelectors()}},
		srv.URL+"/rss?q={query}", time.Second, 0)
	articles, err := s.Scrape(context.Background(), "ETH", 2)
	require.NoError(t, err)

	assert.Equal(t, "ethereum crypto", query)
	require.Len(t, articles, 2)
	assert.Equal(t, "Miners sell reserves", articles[0].Title)
	assert.Equal(t, "The Block", articles[0].Source)
	assert.Equal(t, "Halving countdown", articles[1].Title)
}

func TestParseFeed(t *testing.T) {
	articles, err := ParseFeed(strings.NewReader(feed), 0)
	require.NoError(t, err)
	require.Len(t, articles, 3)
	assert.Equal(t, "Third story", articles[2].Title)
	assert.Empty(t, articles[2].Source)
	assert.Equal(t, "Mon, 01 Jan 2024 10:00:00 GMT", articles[0].PublishedAt)
}

func TestServiceCachesHeadlines(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, tagPage)
	}))
	defer srv.Close()

	svc := NewService(&ServiceConfig{
		MaxArticles:    10,
		CacheDuration:  time.Minute,
		ScraperTimeout: time.Second,
		Sources:        []Source{{Name: "Test", BaseURL: srv.URL, SearchPath: "/{coin}", Selectors: testSelectors()}},
	})
	ctx := context.Background()

	got, err := svc.Headlines(ctx, "btc", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bitcoin breaks 70k", "ETF inflows slow"}, got)

	got, err = svc.Headlines(ctx, "BTC", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bitcoin breaks 70k"}, got)
	assert.Equal(t, int32(1), hits.Load())

	now := time.Now()
	svc.cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = svc.Headlines(ctx, "BTC", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	svc.ClearCache()
	_, ok := svc.cache.get("BTC")
	assert.False(t, ok)
}

func TestServiceReportsTotalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewService(&ServiceConfig{
		CacheDuration:  time.Minute,
		ScraperTimeout: time.Second,
		Sources:        []Source{{Name: "Down", BaseURL: srv.URL, SearchPath: "/{coin}", Selectors: testSelectors()}},
	})
	_, err := svc.Headlines(context.Background(), "BTC", 5)
	assert.Error(t, err)
}

func TestCoinSlug(t *testing.T) {
	assert.Equal(t, "bitcoin", coinSlug("btc"))
	assert.Equal(t, "pepe", coinSlug("PEPE"))
}
