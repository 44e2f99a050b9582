package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

// BrowserFetcher renders pages in a headless browser. Exactly one
// allocator+browser pair exists per fetcher instance (one per job); both
// are released deterministically by Close regardless of how the crawl
// ends.
type BrowserFetcher struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          arbor.ILogger
	config          *common.BrowserConfig
	origin          *url.URL

	mu     sync.Mutex
	closed bool
	// navigated tracks whether the browser currently holds a page of the
	// target site, enabling in-page click navigation for later pages
	navigated bool
}

// NewBrowserFetcher starts a headless browser for one job. The origin
// scopes in-page click navigation.
func NewBrowserFetcher(config *common.BrowserConfig, userAgent, origin string, logger arbor.ILogger) (*BrowserFetcher, error) {
	originURL, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup probe so a missing Chrome binary fails the job up front
	// instead of on the first page
	probeCtx, probeCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup probe: %w", err)
	}

	logger.Debug().Str("origin", origin).Msg("Headless browser started for job")

	return &BrowserFetcher{
		allocatorCtx:    allocatorCtx,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		config:          config,
		origin:          originURL,
	}, nil
}

// Fetch renders one page and captures its settled markup. For non-root
// pages an in-page anchor click is attempted first so client-side
// routing state survives; a hard navigation is the fallback.
func (f *BrowserFetcher) Fetch(ctx context.Context, target string) (*interfaces.FetchResult, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, fmt.Errorf("browser fetcher closed")
	}
	f.mu.Unlock()

	start := time.Now()

	navTimeout := f.config.NavTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}

	runCtx, runCancel := context.WithTimeout(f.browserCtx, navTimeout)
	defer runCancel()

	// Propagate crawl-level cancellation into the browser run
	stop := propagateCancel(ctx, runCancel)
	defer stop()

	statusCode := f.captureDocumentStatus(runCtx, target)

	if err := f.navigate(runCtx, target); err != nil {
		return nil, fmt.Errorf("navigation failed for %s: %w", target, err)
	}

	if err := f.settle(runCtx); err != nil {
		return nil, fmt.Errorf("page settle failed for %s: %w", target, err)
	}

	var html, title string
	if err := chromedp.Run(runCtx,
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return nil, fmt.Errorf("capture failed for %s: %w", target, err)
	}

	status := 200
	if code := statusCode(); code > 0 {
		status = code
	}

	result := &interfaces.FetchResult{
		URL:         target,
		StatusCode:  status,
		HTML:        html,
		Title:       strings.TrimSpace(title),
		ContentType: "text/html",
		Duration:    time.Since(start),
	}
	populateDocumentFields(result)

	f.logger.Debug().
		Str("url", target).
		Int("status", result.StatusCode).
		Dur("duration", result.Duration).
		Msg("Rendered page")

	return result, nil
}

// captureDocumentStatus arms a network listener that records the HTTP
// status of the next document response; the returned func reads it
func (f *BrowserFetcher) captureDocumentStatus(ctx context.Context, target string) func() int {
	var mu sync.Mutex
	var status int

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		mu.Lock()
		if status == 0 {
			status = int(resp.Response.Status)
		}
		mu.Unlock()
	})

	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return status
	}
}

// navigate reaches the target, preferring an in-page anchor click when
// the browser already holds a same-site page
func (f *BrowserFetcher) navigate(ctx context.Context, target string) error {
	f.mu.Lock()
	alreadyOnSite := f.navigated
	f.mu.Unlock()

	if alreadyOnSite {
		if err := f.clickNavigate(ctx, target); err == nil {
			return nil
		}
		// No matching anchor or the click failed; fall through to a
		// hard navigation
	}

	if err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.Navigate(target),
	); err != nil {
		return err
	}

	f.mu.Lock()
	f.navigated = true
	f.mu.Unlock()
	return nil
}

// clickNavigate finds an anchor pointing at the target path and clicks
// it, waiting for the location to change
func (f *BrowserFetcher) clickNavigate(ctx context.Context, target string) error {
	targetURL, err := url.Parse(target)
	if err != nil {
		return err
	}
	path := targetURL.Path
	if path == "" {
		path = "/"
	}

	clickTimeout := f.config.ClickTimeout
	if clickTimeout <= 0 {
		clickTimeout = 10 * time.Second
	}
	clickCtx, cancel := context.WithTimeout(ctx, clickTimeout)
	defer cancel()

	script := fmt.Sprintf(`(() => {
		const want = %q;
		for (const a of document.querySelectorAll('a[href]')) {
			try {
				const u = new URL(a.href, location.href);
				if (u.origin === location.origin && u.pathname.replace(/\/$/, '') === want.replace(/\/$/, '')) {
					a.click();
					return true;
				}
			} catch (e) {}
		}
		return false;
	})()`, path)

	var clicked bool
	if err := chromedp.Run(clickCtx, chromedp.Evaluate(script, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no anchor matches path %s", path)
	}

	// Wait for the location to reflect the click
	waitScript := fmt.Sprintf(`location.pathname.replace(/\/$/, '') === %q.replace(/\/$/, '')`, path)
	for {
		var arrived bool
		if err := chromedp.Run(clickCtx, chromedp.Evaluate(waitScript, &arrived)); err != nil {
			return err
		}
		if arrived {
			return nil
		}
		select {
		case <-clickCtx.Done():
			return clickCtx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// settle waits for hydration, scrolls the page to the bottom in steps to
// trigger lazy content, and clicks safe reveal controls
func (f *BrowserFetcher) settle(ctx context.Context) error {
	hydrationWait := f.config.HydrationWait
	if hydrationWait <= 0 {
		hydrationWait = 2 * time.Second
	}

	if err := chromedp.Run(ctx,
		chromedp.Poll("document.readyState === 'complete'", nil, chromedp.WithPollingTimeout(hydrationWait*5)),
		chromedp.Sleep(hydrationWait),
	); err != nil {
		return err
	}

	scrollSteps := f.config.ScrollSteps
	if scrollSteps <= 0 {
		scrollSteps = 5
	}
	scrollPause := f.config.ScrollPause
	if scrollPause <= 0 {
		scrollPause = 300 * time.Millisecond
	}

	for i := 1; i <= scrollSteps; i++ {
		script := fmt.Sprintf(`window.scrollTo(0, document.body.scrollHeight * %d / %d)`, i, scrollSteps)
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(script, nil),
			chromedp.Sleep(scrollPause),
		); err != nil {
			return err
		}
	}

	// Click reveal controls that expand content without navigating
	revealScript := `(() => {
		let clicked = 0;
		const texts = ['load more', 'show more', 'view more', 'read more'];
		for (const el of document.querySelectorAll('button, [role="button"], [aria-expanded="false"], .accordion-trigger, details:not([open]) summary')) {
			const label = (el.textContent || '').trim().toLowerCase();
			const isToggle = el.hasAttribute('aria-expanded') || el.tagName === 'SUMMARY';
			const isMore = texts.some(t => label.includes(t));
			if ((isToggle || isMore) && !el.closest('a[href]') && clicked < 10) {
				try { el.click(); clicked++; } catch (e) {}
			}
		}
		return clicked;
	})()`
	var clicked int
	if err := chromedp.Run(ctx, chromedp.Evaluate(revealScript, &clicked)); err != nil {
		return err
	}
	if clicked > 0 {
		if err := chromedp.Run(ctx, chromedp.Sleep(scrollPause)); err != nil {
			return err
		}
	}

	return chromedp.Run(ctx, chromedp.Evaluate(`window.scrollTo(0, 0)`, nil))
}

func (f *BrowserFetcher) Strategy() models.FetchStrategy {
	return models.StrategyBrowser
}

// Close tears down the browser and allocator. Idempotent.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.browserCancel()
	f.allocatorCancel()
	f.logger.Debug().Msg("Headless browser released")
	return nil
}

// propagateCancel cancels the browser run when the caller's context is
// cancelled; the returned stop func ends the watch
func propagateCancel(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
