package news

import (
	"context"
	"strings"
	"sync"
	"time"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
)

// ServiceConfig configures the headline service.
type ServiceConfig struct {
	MaxArticles    int           // articles scraped per coin
	CacheDuration  time.Duration // how long headlines are reused
	ScraperTimeout time.Duration // per request
	RequestDelay   time.Duration // between requests to one domain
	Sources        []Source
	FeedURL        string
}

// DefaultServiceConfig returns the production sources with a 30 minute cache.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxArticles:    10,
		CacheDuration:  30 * time.Minute,
		ScraperTimeout: 15 * time.Second,
		RequestDelay:   time.Second,
		Sources:        DefaultSources(),
		FeedURL:        DefaultFeedURL,
	}
}

type headlineCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry struct {
	articles  []Article
	timestamp time.Time
}

func newHeadlineCache(ttl time.Duration) *headlineCache {
	return &headlineCache{data: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func (c *headlineCache) get(coin string) ([]Article, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[coin]
	if !ok || c.now().Sub(entry.timestamp) > c.ttl {
		return nil, false
	}
	return entry.articles, true
}

func (c *headlineCache) set(coin string, articles []Article) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[coin] = cacheEntry{articles: articles, timestamp: c.now()}
	for k, e := range c.data {
		if c.now().Sub(e.timestamp) > c.ttl {
			delete(c.data, k)
		}
	}
}

// Service provides recent headlines per coin. Fetches are serialized so a
// slow scrape is not repeated by concurrent callers.
type Service struct {
	scraper *Scraper
	cache   *headlineCache
	cfg     *ServiceConfig
	fetchMu sync.Mutex
}

var _ interfaces.NewsSource = (*Service)(nil)

func NewService(cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = 10
	}
	return &Service{
		scraper: NewScraper(cfg.Sources, cfg.FeedURL, cfg.ScraperTimeout, cfg.RequestDelay),
		cache:   newHeadlineCache(cfg.CacheDuration),
		cfg:     cfg,
	}
}

// Headlines returns up to limit distinct titles for coin, from cache when fresh.
func (s *Service) Headlines(ctx context.Context, coin string, limit int) ([]string, error) {
	key := strings.ToUpper(coin)
	if cached, ok := s.cache.get(key); ok {
		return titles(cached, limit), nil
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	if cached, ok := s.cache.get(key); ok {
		return titles(cached, limit), nil
	}

	articles, err := s.scraper.Scrape(ctx, key, s.cfg.MaxArticles)
	if err != nil && len(articles) == 0 {
		return nil, err
	}
	logger.Info(ctx, "Fetched news headlines", "coin", key, "articles", len(articles))
	s.cache.set(key, articles)
	return titles(articles, limit), nil
}

// ClearCache drops every cached coin.
func (s *Service) ClearCache() {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.data = make(map[string]cacheEntry)
}

func titles(articles []Article, limit int) []string {
	seen := make(map[string]bool, len(articles))
	out := make([]string, 0, len(articles))
	for _, a := range articles {
		if limit > 0 && len(out) >= limit {
			break
		}
		key := strings.ToLower(a.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a.Title)
	}
	return out
}
