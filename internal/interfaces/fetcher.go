package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/migro/internal/models"
)

// FetchResult is the captured output of one page fetch or render.
// Every strategy produces the same shape so downstream stripping and
// fingerprinting behave identically regardless of acquisition.
type FetchResult struct {
	URL         string
	StatusCode  int
	HTML        string
	Title       string
	ContentType string
	Duration    time.Duration
	// Stylesheets lists stylesheet hrefs discovered in the page head
	Stylesheets []string
}

// Fetcher acquires page markup for the crawl engine. Implementations
// hold per-job resources (one browser instance for the rendering
// strategy) and must release them deterministically via Close.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*FetchResult, error)
	Strategy() models.FetchStrategy
	Close() error
}
