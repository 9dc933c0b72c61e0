package news

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"llm-crypto-trader/internal/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Article is one scraped headline.
type Article struct {
	Title       string
	URL         string
	Source      string
	PublishedAt string
}

// Source is an HTML page listing articles for a coin.
type Source struct {
	Name       string
	BaseURL    string
	SearchPath string // {coin} is replaced by the coin's slug
	Selectors  Selectors
}

// Selectors are the CSS selectors used to pull articles out of a Source page.
type Selectors struct {
	Article     string
	Title       string
	URL         string
	PublishedAt string
}

// Scraper collects headlines from HTML sources, with an RSS search feed as fallback.
type Scraper struct {
	sources []Source
	feedURL string // {query} is replaced by the escaped search query
	timeout time.Duration
	delay   time.Duration
}

// DefaultFeedURL is the Google News RSS search endpoint.
const DefaultFeedURL = "https://news.google.com/rss/search?q={query}&hl=en-US&gl=US&ceid=US:en"

func DefaultSources() []Source {
	return []Source{
		{
			Name:       "CoinTelegraph",
			BaseURL:    "https://cointelegraph.com",
			SearchPath: "/tags/{coin}",
			Selectors: Selectors{
				Article:     "article.post-card-inline",
				Title:       ".post-card-inline__title",
				URL:         "a.post-card-inline__title-link",
				PublishedAt: "time",
			},
		},
		{
			Name:       "CoinDesk",
			BaseURL:    "https://www.coindesk.com",
			SearchPath: "/tag/{coin}",
			Selectors: Selectors{
				Article:     "div.article-cardstyles__StyledWrapper, div[class*='articleTextSection']",
				Title:       "h2, h3, h6",
				URL:         "a",
				PublishedAt: "span[class*='timing'], time",
			},
		},
	}
}

func NewScraper(sources []Source, feedURL string, timeout, delay time.Duration) *Scraper {
	return &Scraper{sources: sources, feedURL: feedURL, timeout: timeout, delay: delay}
}

// coinSlugs maps tickers to the names news sites tag them with.
var coinSlugs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"BNB":  "bnb",
	"XRP":  "xrp",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"DOT":  "polkadot",
	"AVAX": "avalanche",
	"LINK": "chainlink",
	"LTC":  "litecoin",
	"TRX":  "tron",
}

func coinSlug(coin string) string {
	if s, ok := coinSlugs[strings.ToUpper(coin)]; ok {
		return s
	}
	return strings.ToLower(coin)
}

// Scrape returns up to limit articles for coin. Source failures are logged
// and skipped. The RSS feed is only consulted when the HTML sources yield nothing.
func (s *Scraper) Scrape(ctx context.Context, coin string, limit int) ([]Article, error) {
	var articles []Article
	var lastErr error
	for _, src := range s.sources {
		if ctx.Err() != nil {
			return articles, ctx.Err()
		}
		got, err := s.scrapeSource(ctx, src, coin, limit-len(articles))
		if err != nil {
			logger.Warn(ctx, "News source failed", "source", src.Name, "coin", coin, "error", err)
			lastErr = err
			continue
		}
		articles = append(articles, got...)
		if len(articles) >= limit {
			return articles[:limit], nil
		}
	}
	if len(articles) > 0 || s.feedURL == "" {
		return articles, lastErr
	}

	logger.Debug(ctx, "No articles from HTML sources, trying RSS feed", "coin", coin)
	feed, err := s.scrapeFeed(ctx, coin, limit)
	if err != nil {
		return nil, err
	}
	return feed, nil
}

func (s *Scraper) newCollector(allowed ...string) *colly.Collector {
	c := colly.NewCollector(
		colly.AllowedDomains(allowed...),
		colly.MaxDepth(1),
		colly.UserAgent(userAgent),
	)
	c.SetRequestTimeout(s.timeout)
	if s.delay > 0 {
		_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: s.delay})
	}
	return c
}

func (s *Scraper) scrapeSource(ctx context.Context, src Source, coin string, limit int) ([]Article, error) {
	var articles []Article
	c := s.newCollector(hostname(src.BaseURL))

	c.OnHTML(src.Selectors.Article, func(e *colly.HTMLElement) {
		if len(articles) >= limit {
			return
		}
		title := strings.TrimSpace(e.ChildText(src.Selectors.Title))
		link := e.ChildAttr(src.Selectors.URL, "href")
		if title == "" || link == "" {
			return
		}
		articles = append(articles, Article{
			Title:       title,
			URL:         e.Request.AbsoluteURL(link),
			Source:      src.Name,
			PublishedAt: strings.TrimSpace(e.ChildText(src.Selectors.PublishedAt)),
		})
	})

	var visitErr error
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("%s: status %d: %w", r.Request.URL, r.StatusCode, err)
	})

	pageURL := src.BaseURL + strings.ReplaceAll(src.SearchPath, "{coin}", url.PathEscape(coinSlug(coin)))
	if err := c.Visit(pageURL); err != nil && visitErr == nil {
		visitErr = fmt.Errorf("visit %s: %w", pageURL, err)
	}
	c.Wait()

	if visitErr != nil {
		return nil, visitErr
	}
	logger.Debug(ctx, "News source scraped", "source", src.Name, "coin", coin, "articles", len(articles))
	return articles, nil
}

func (s *Scraper) scrapeFeed(ctx context.Context, coin string, limit int) ([]Article, error) {
	query := url.QueryEscape(coinSlug(coin) + " crypto")
	feedURL := strings.ReplaceAll(s.feedURL, "{query}", query)

	c := s.newCollector(hostname(feedURL))
	var (
		articles []Article
		parseErr error
	)
	c.OnResponse(func(r *colly.Response) {
		articles, parseErr = ParseFeed(bytes.NewReader(r.Body), limit)
	})
	var visitErr error
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("feed status %d: %w", r.StatusCode, err)
	})
	if err := c.Visit(feedURL); err != nil && visitErr == nil {
		visitErr = fmt.Errorf("visit feed: %w", err)
	}
	c.Wait()

	if visitErr != nil {
		return nil, visitErr
	}
	if parseErr != nil {
		return nil, parseErr
	}
	logger.Debug(ctx, "RSS feed scraped", "coin", coin, "articles", len(articles))
	return articles, nil
}

// ParseFeed reads RSS items. Google News titles carry the publisher after
// the last " - ", which becomes Source.
func ParseFeed(r io.Reader, limit int) ([]Article, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	var articles []Article
	doc.Find("item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		title := strings.TrimSpace(item.Find("title").First().Text())
		if title == "" {
			return true
		}
		a := Article{
			Title:       title,
			Source:      strings.TrimSpace(item.Find("source").First().Text()),
			PublishedAt: strings.TrimSpace(item.Find("pubdate").First().Text()),
			URL:         strings.TrimSpace(item.Find("guid").First().Text()),
		}
		if i := strings.LastIndex(title, " - "); i > 0 {
			if a.Source == "" {
				a.Source = title[i+3:]
			}
			a.Title = title[:i]
		}
		articles = append(articles, a)
		return limit <= 0 || len(articles) < limit
	})
	return articles, nil
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
