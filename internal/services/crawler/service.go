package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

// Service walks a site breadth-first from its root, staging every
// in-scope page for the downstream pipeline phases. The loop is
// single-threaded per job; politeness comes from the configured delay
// and the fetcher's own limiter.
type Service struct {
	stagedStorage interfaces.StagedItemStorage
	jobStorage    interfaces.JobStorage
	registry      interfaces.JobRegistry
	events        interfaces.EventService
	logger        arbor.ILogger
	config        *common.CrawlerConfig
}

// NewService creates a new crawl engine
func NewService(stagedStorage interfaces.StagedItemStorage, jobStorage interfaces.JobStorage, registry interfaces.JobRegistry, events interfaces.EventService, logger arbor.ILogger, config *common.CrawlerConfig) *Service {
	return &Service{
		stagedStorage: stagedStorage,
		jobStorage:    jobStorage,
		registry:      registry,
		events:        events,
		logger:        logger,
		config:        config,
	}
}

// Crawl runs the crawl loop for a job until the frontier drains, the
// page budget is reached, or the job is cancelled. Returns the number of
// pages staged; a cancelled crawl returns interfaces.ErrCancelled.
func (s *Service) Crawl(ctx context.Context, job *models.ImportJob, fetcher interfaces.Fetcher) (int, error) {
	root, err := url.Parse(job.Origin)
	if err != nil {
		return 0, fmt.Errorf("invalid origin URL: %w", err)
	}

	rootURL, ok := Normalize(job.Origin, root)
	if !ok {
		return 0, fmt.Errorf("origin URL is out of crawl scope: %s", job.Origin)
	}

	budget := job.Config.PageBudget
	if budget <= 0 {
		budget = s.config.DefaultBudget
	}
	if s.config.MaxBudget > 0 && budget > s.config.MaxBudget {
		budget = s.config.MaxBudget
	}

	delay := s.config.RequestDelay
	if job.Config.RequestDelay > 0 {
		delay = job.Config.RequestDelay
	}

	strict := s.config.StrictClasses
	if job.Config.StrictClasses {
		strict = true
	}

	queue := []string{rootURL}
	visited := map[string]bool{rootURL: true}

	// Source-repository fetchers know every page up front; seed the
	// frontier so files unreachable by links still get staged
	if lister, ok := fetcher.(interface{ PageURLs() []string }); ok {
		for _, raw := range lister.PageURLs() {
			if u, inScope := Normalize(raw, root); inScope && !visited[u] {
				queue = append(queue, u)
				visited[u] = true
			}
		}
	}

	staged := 0

	for len(queue) > 0 {
		if s.registry.IsCancelled(job.ID) {
			s.logger.Info().Str("job_id", job.ID).Int("pages", staged).Msg("Crawl cancelled")
			return staged, interfaces.ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return staged, interfaces.ErrCancelled
		}
		if staged >= budget {
			s.logger.Info().Str("job_id", job.ID).Int("budget", budget).Msg("Crawl page budget reached")
			break
		}

		target := queue[0]
		queue = queue[1:]

		links, err := s.crawlPage(ctx, job, fetcher, target, root, strict)
		if err != nil {
			// A single bad page never sinks the crawl
			s.logger.Warn().Err(err).Str("job_id", job.ID).Str("url", target).Msg("Failed to crawl page, skipping")
			continue
		}
		staged++

		for _, link := range links {
			if !visited[link] {
				visited[link] = true
				queue = append(queue, link)
			}
		}

		if err := s.jobStorage.UpdatePageCount(job.ID, staged); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist page count")
		}
		s.publishProgress(job.ID, target, staged, len(queue))

		if delay > 0 && len(queue) > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return staged, interfaces.ErrCancelled
			}
		}
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("pages", staged).
		Str("strategy", string(fetcher.Strategy())).
		Msg("Crawl complete")

	return staged, nil
}

// crawlPage fetches one page, stages it, and returns the normalized
// same-origin links it discovered
func (s *Service) crawlPage(ctx context.Context, job *models.ImportJob, fetcher interfaces.Fetcher, target string, root *url.URL, strict bool) ([]string, error) {
	result, err := fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	if result.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch returned status %d", result.StatusCode)
	}

	stripResult, err := Strip(result.HTML)
	if err != nil {
		return nil, fmt.Errorf("strip failed: %w", err)
	}

	fingerprint, err := Fingerprint(stripResult.Stripped, strict)
	if err != nil {
		return nil, fmt.Errorf("fingerprint failed: %w", err)
	}

	metadata := map[string]interface{}{}
	stylesheets := append([]string{}, result.Stylesheets...)
	stylesheets = append(stylesheets, stripResult.Stylesheets...)
	if len(stylesheets) > 0 {
		metadata["stylesheets"] = stylesheets
	}

	item := &models.StagedItem{
		JobID:        job.ID,
		URL:          target,
		RawHTML:      result.HTML,
		StrippedHTML: stripResult.Stripped,
		AnalysisHTML: stripResult.Analysis,
		Fingerprint:  fingerprint,
		Status:       models.ItemStatusCrawled,
		Title:        result.Title,
		Metadata:     metadata,
	}
	if err := s.stagedStorage.SaveItem(item); err != nil {
		return nil, fmt.Errorf("failed to stage page: %w", err)
	}

	links, err := extractLinks(result.HTML, root)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", target).Msg("Failed to extract links")
		return nil, nil
	}
	return links, nil
}

// extractLinks pulls same-origin anchors out of a page and normalizes
// them for the frontier
func extractLinks(markup string, root *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup for links: %w", err)
	}

	seen := map[string]bool{}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		normalized, ok := Normalize(href, root)
		if !ok || seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})
	return links, nil
}

func (s *Service) publishProgress(jobID, pageURL string, staged, queued int) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventImportProgress,
		Payload: map[string]interface{}{
			"job_id":  jobID,
			"phase":   string(models.PhaseCrawling),
			"url":     pageURL,
			"crawled": staged,
			"queued":  queued,
		},
	})
}
