package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

type fakeFetcher struct {
	pages   map[string]string
	fetched []string
	// cancelAfter flips the registry flag after this many fetches
	cancelAfter int
	registry    *fakeRegistry
	jobID       string
}

func (f *fakeFetcher) Fetch(_ context.Context, target string) (*interfaces.FetchResult, error) {
	f.fetched = append(f.fetched, target)
	if f.cancelAfter > 0 && len(f.fetched) >= f.cancelAfter && f.registry != nil {
		f.registry.Cancel(f.jobID)
	}
	html, ok := f.pages[target]
	if !ok {
		return nil, fmt.Errorf("no route for %s", target)
	}
	return &interfaces.FetchResult{
		URL:        target,
		StatusCode: 200,
		HTML:       html,
		Title:      "Page",
		Duration:   time.Millisecond,
	}, nil
}

func (f *fakeFetcher) Strategy() models.FetchStrategy { return models.StrategyStatic }
func (f *fakeFetcher) Close() error                   { return nil }

type fakeStagedStorage struct {
	mu    sync.Mutex
	items map[string]*models.StagedItem
}

func newFakeStagedStorage() *fakeStagedStorage {
	return &fakeStagedStorage{items: make(map[string]*models.StagedItem)}
}

func (s *fakeStagedStorage) SaveItem(item *models.StagedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = models.StagedItemID(item.JobID, item.URL)
	}
	s.items[item.ID] = item
	return nil
}

func (s *fakeStagedStorage) GetItem(jobID, url string) (*models.StagedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[models.StagedItemID(jobID, url)]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return item, nil
}

func (s *fakeStagedStorage) ListByJob(jobID string) ([]*models.StagedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.StagedItem
	for _, item := range s.items {
		if item.JobID == jobID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *fakeStagedStorage) ListByFingerprint(jobID, fp string) ([]*models.StagedItem, error) {
	items, _ := s.ListByJob(jobID)
	var out []*models.StagedItem
	for _, item := range items {
		if item.Fingerprint == fp {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *fakeStagedStorage) ListByStatus(jobID string, status models.ItemStatus) ([]*models.StagedItem, error) {
	items, _ := s.ListByJob(jobID)
	var out []*models.StagedItem
	for _, item := range items {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *fakeStagedStorage) CountByJob(jobID string) (int, error) {
	items, _ := s.ListByJob(jobID)
	return len(items), nil
}

func (s *fakeStagedStorage) FingerprintGroups(jobID string) (map[string]int, error) {
	items, _ := s.ListByJob(jobID)
	groups := make(map[string]int)
	for _, item := range items {
		if item.Fingerprint != "" {
			groups[item.Fingerprint]++
		}
	}
	return groups, nil
}

func (s *fakeStagedStorage) DeleteByJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if item.JobID == jobID {
			delete(s.items, id)
		}
	}
	return nil
}

type fakeJobStorage struct {
	mu   sync.Mutex
	jobs map[string]*models.ImportJob
}

func newFakeJobStorage() *fakeJobStorage {
	return &fakeJobStorage{jobs: make(map[string]*models.ImportJob)}
}

func (s *fakeJobStorage) SaveJob(job *models.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStorage) GetJob(id string) (*models.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return job, nil
}

func (s *fakeJobStorage) ListJobs() ([]*models.ImportJob, error) { return nil, nil }
func (s *fakeJobStorage) ListJobsByStatus(models.JobStatus) ([]*models.ImportJob, error) {
	return nil, nil
}

func (s *fakeJobStorage) UpdateStatus(id string, status models.JobStatus, phase models.JobPhase, message string) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Status = status
	job.Phase = phase
	job.Message = message
	return nil
}

func (s *fakeJobStorage) UpdatePageCount(id string, count int) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job.PageCount = count
	return nil
}

func (s *fakeJobStorage) Heartbeat(id string) error { return nil }
func (s *fakeJobStorage) DeleteJob(id string) error { return nil }

type fakeRegistry struct {
	mu        sync.Mutex
	cancelled map[string]bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{cancelled: make(map[string]bool)}
}

func (r *fakeRegistry) Register(jobID string) {}
func (r *fakeRegistry) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled[jobID] = true
	return true
}

func (r *fakeRegistry) IsCancelled(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled[jobID]
}

func (r *fakeRegistry) Release(jobID string) {}
func (r *fakeRegistry) Active() []string     { return nil }

func testCrawlerConfig() *common.CrawlerConfig {
	return &common.CrawlerConfig{
		DefaultBudget: 100,
		MaxBudget:     500,
		RequestDelay:  0,
	}
}

func sitePages() map[string]string {
	return map[string]string{
		"https://shop.example": `<html><body>
			<nav><a href="/products/widget">W</a><a href="/products/gadget">G</a><a href="/about">A</a></nav>
		</body></html>`,
		"https://shop.example/products/widget": `<html><body>
			<div class="product"><h1>Widget</h1></div>
			<a href="/products/gadget">G</a>
			<a href="/cart">cart</a>
		</body></html>`,
		"https://shop.example/products/gadget": `<html><body>
			<div class="product"><h1>Gadget</h1></div>
			<a href="/products/widget">W</a>
		</body></html>`,
		"https://shop.example/about": `<html><body>
			<article><h1>About</h1></article>
		</body></html>`,
	}
}

func TestCrawlVisitsEachURLOnce(t *testing.T) {
	staged := newFakeStagedStorage()
	jobs := newFakeJobStorage()
	registry := newFakeRegistry()

	job := models.NewImportJob("job-crawl-1", models.ImportConfig{Origin: "https://shop.example"})
	require.NoError(t, jobs.SaveJob(job))

	fetcher := &fakeFetcher{pages: sitePages()}
	svc := NewService(staged, jobs, registry, nil, arbor.NewLogger(), testCrawlerConfig())

	count, err := svc.Crawl(context.Background(), job, fetcher)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// Every page fetched exactly once despite cross-links
	assert.Len(t, fetcher.fetched, 4)

	items, err := staged.ListByJob(job.ID)
	require.NoError(t, err)
	assert.Len(t, items, 4)
	for _, item := range items {
		assert.NotEmpty(t, item.Fingerprint)
		assert.Equal(t, models.ItemStatusCrawled, item.Status)
	}

	persisted, err := jobs.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, persisted.PageCount)
}

func TestCrawlRespectsPageBudget(t *testing.T) {
	staged := newFakeStagedStorage()
	jobs := newFakeJobStorage()

	job := models.NewImportJob("job-crawl-2", models.ImportConfig{
		Origin:     "https://shop.example",
		PageBudget: 2,
	})
	require.NoError(t, jobs.SaveJob(job))

	fetcher := &fakeFetcher{pages: sitePages()}
	svc := NewService(staged, jobs, newFakeRegistry(), nil, arbor.NewLogger(), testCrawlerConfig())

	count, err := svc.Crawl(context.Background(), job, fetcher)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCrawlSkipsFailedPages(t *testing.T) {
	pages := sitePages()
	delete(pages, "https://shop.example/about") // fetch will error

	staged := newFakeStagedStorage()
	jobs := newFakeJobStorage()

	job := models.NewImportJob("job-crawl-3", models.ImportConfig{Origin: "https://shop.example"})
	require.NoError(t, jobs.SaveJob(job))

	fetcher := &fakeFetcher{pages: pages}
	svc := NewService(staged, jobs, newFakeRegistry(), nil, arbor.NewLogger(), testCrawlerConfig())

	count, err := svc.Crawl(context.Background(), job, fetcher)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCrawlCancellation(t *testing.T) {
	staged := newFakeStagedStorage()
	jobs := newFakeJobStorage()
	registry := newFakeRegistry()

	job := models.NewImportJob("job-crawl-4", models.ImportConfig{Origin: "https://shop.example"})
	require.NoError(t, jobs.SaveJob(job))

	fetcher := &fakeFetcher{
		pages:       sitePages(),
		cancelAfter: 1,
		registry:    registry,
		jobID:       job.ID,
	}
	svc := NewService(staged, jobs, registry, nil, arbor.NewLogger(), testCrawlerConfig())

	count, err := svc.Crawl(context.Background(), job, fetcher)
	assert.ErrorIs(t, err, interfaces.ErrCancelled)
	// The in-flight page finishes; nothing further starts
	assert.Equal(t, 1, count)
	assert.Len(t, fetcher.fetched, 1)
}

func TestCrawlRejectsOutOfScopeOrigin(t *testing.T) {
	job := models.NewImportJob("job-crawl-5", models.ImportConfig{Origin: "https://shop.example/cart"})
	svc := NewService(newFakeStagedStorage(), newFakeJobStorage(), newFakeRegistry(), nil, arbor.NewLogger(), testCrawlerConfig())

	_, err := svc.Crawl(context.Background(), job, &fakeFetcher{pages: map[string]string{}})
	assert.Error(t, err)
}
