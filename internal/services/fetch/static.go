package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"golang.org/x/time/rate"
)

// StaticFetcher acquires pages over plain HTTP with colly. Suited to
// server-rendered sites; client-rendered sites need the browser
// strategy.
type StaticFetcher struct {
	collector *colly.Collector
	limiter   *rate.Limiter
	logger    arbor.ILogger
	config    *common.CrawlerConfig
}

// contextAwareTransport wraps an http.RoundTripper so in-flight requests
// observe context cancellation
type contextAwareTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-t.ctx.Done():
		return nil, t.ctx.Err()
	default:
	}
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// NewStaticFetcher creates the static HTTP fetch strategy
func NewStaticFetcher(config *common.CrawlerConfig, logger arbor.ILogger) *StaticFetcher {
	c := colly.NewCollector(
		colly.UserAgent(config.UserAgent),
		colly.IgnoreRobotsTxt(),
	)
	if config.MaxBodySize > 0 {
		c.MaxBodySize = config.MaxBodySize
	}
	if config.RequestTimeout > 0 {
		c.SetRequestTimeout(config.RequestTimeout)
	}

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       config.RequestDelay,
		RandomDelay: config.RandomDelay,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to set rate limit on collector")
	}

	interval := config.RequestDelay
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	return &StaticFetcher{
		collector: c,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		logger:    logger,
		config:    config,
	}
}

// Fetch retrieves one page. The base collector is cloned per request so
// handlers never accumulate across fetches.
func (f *StaticFetcher) Fetch(ctx context.Context, target string) (*interfaces.FetchResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	start := time.Now()
	result := &interfaces.FetchResult{URL: target}

	c := f.collector.Clone()
	c.WithTransport(&contextAwareTransport{base: http.DefaultTransport, ctx: ctx})

	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil && r.StatusCode > 0 {
			result.StatusCode = r.StatusCode
		}
	})

	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.ContentType = r.Headers.Get("Content-Type")
		result.HTML = string(r.Body)
	})

	if err := c.Visit(target); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", target, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fmt.Errorf("fetch failed for %s: %w", target, fetchErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	populateDocumentFields(result)

	f.logger.Debug().
		Str("url", target).
		Int("status", result.StatusCode).
		Dur("duration", result.Duration).
		Msg("Fetched page")

	return result, nil
}

func (f *StaticFetcher) Strategy() models.FetchStrategy {
	return models.StrategyStatic
}

func (f *StaticFetcher) Close() error {
	return nil
}

// populateDocumentFields fills title and stylesheet hrefs from the
// fetched markup
func populateDocumentFields(result *interfaces.FetchResult) {
	if result.HTML == "" {
		return
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML))
	if err != nil {
		return
	}
	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("link[rel='stylesheet']").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			result.Stylesheets = append(result.Stylesheets, href)
		}
	})
}
