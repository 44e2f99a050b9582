package transform

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

type fakeLLM struct {
	values map[string]string
	err    error
	calls  int
}

func (f *fakeLLM) ClassifyStructure(context.Context, string) (*interfaces.StructureAnalysis, error) {
	return nil, nil
}

func (f *fakeLLM) CompareStructures(context.Context, string, string) (*interfaces.Comparison, error) {
	return nil, nil
}

func (f *fakeLLM) ExtractFields(_ context.Context, _ string, fields []interfaces.FieldSpec) (map[string]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for _, field := range fields {
		if value, ok := f.values[field.Name]; ok {
			out[field.Name] = value
		}
	}
	return out, nil
}

func (f *fakeLLM) GenerateTemplate(context.Context, string, map[string]string, string) (string, error) {
	return "", nil
}

func (f *fakeLLM) HealthCheck(context.Context) error { return nil }
func (f *fakeLLM) Close() error                      { return nil }

type memStagedStorage struct {
	items map[string]*models.StagedItem
}

func newMemStagedStorage() *memStagedStorage {
	return &memStagedStorage{items: make(map[string]*models.StagedItem)}
}

func (s *memStagedStorage) SaveItem(item *models.StagedItem) error {
	s.items[item.JobID+"|"+item.URL] = item
	return nil
}

func (s *memStagedStorage) GetItem(jobID, url string) (*models.StagedItem, error) {
	item, ok := s.items[jobID+"|"+url]
	if !ok {
		return nil, fmt.Errorf("not found: %s", url)
	}
	return item, nil
}

func (s *memStagedStorage) ListByJob(string) ([]*models.StagedItem, error) { return nil, nil }
func (s *memStagedStorage) ListByFingerprint(string, string) ([]*models.StagedItem, error) {
	return nil, nil
}

func (s *memStagedStorage) ListByStatus(jobID string, status models.ItemStatus) ([]*models.StagedItem, error) {
	var out []*models.StagedItem
	for _, item := range s.items {
		if item.JobID == jobID && item.Status == status {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memStagedStorage) CountByJob(string) (int, error)                   { return 0, nil }
func (s *memStagedStorage) FingerprintGroups(string) (map[string]int, error) { return nil, nil }
func (s *memStagedStorage) DeleteByJob(string) error                         { return nil }

type memRuleSetStorage struct {
	sets map[string]*models.RuleSet
}

func newMemRuleSetStorage() *memRuleSetStorage {
	return &memRuleSetStorage{sets: make(map[string]*models.RuleSet)}
}

func (s *memRuleSetStorage) SaveRuleSet(rs *models.RuleSet) error {
	s.sets[rs.JobID] = rs
	return nil
}

func (s *memRuleSetStorage) GetRuleSet(jobID string) (*models.RuleSet, error) {
	rs, ok := s.sets[jobID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return rs, nil
}

func (s *memRuleSetStorage) DeleteRuleSet(string) error { return nil }

type memContentStorage struct {
	content  map[string]*models.ContentRecord
	pages    map[string]*models.PageRecord
	products map[string]*models.ProductRecord
	saves    int
}

func newMemContentStorage() *memContentStorage {
	return &memContentStorage{
		content:  make(map[string]*models.ContentRecord),
		pages:    make(map[string]*models.PageRecord),
		products: make(map[string]*models.ProductRecord),
	}
}

func (s *memContentStorage) SaveContent(record *models.ContentRecord) error {
	s.saves++
	s.content[record.Slug] = record
	return nil
}

func (s *memContentStorage) GetContent(slug string) (*models.ContentRecord, error) {
	record, ok := s.content[slug]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return record, nil
}

func (s *memContentStorage) ListContent() ([]*models.ContentRecord, error) { return nil, nil }
func (s *memContentStorage) ListByJob(string) ([]*models.ContentRecord, error) {
	return nil, nil
}
func (s *memContentStorage) CountContent() (int, error) { return len(s.content), nil }
func (s *memContentStorage) DeleteContent(string) error { return nil }
func (s *memContentStorage) DeleteByJob(string) error   { return nil }

func (s *memContentStorage) SavePage(page *models.PageRecord) error {
	s.pages[page.Slug] = page
	return nil
}

func (s *memContentStorage) GetPage(slug string) (*models.PageRecord, error) {
	page, ok := s.pages[slug]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return page, nil
}

func (s *memContentStorage) SaveProduct(product *models.ProductRecord) error {
	s.products[product.Slug] = product
	return nil
}

func (s *memContentStorage) GetProduct(slug string) (*models.ProductRecord, error) {
	product, ok := s.products[slug]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return product, nil
}

type fakeAssets struct {
	sideloaded []string
	err        error
}

func (f *fakeAssets) Sideload(_ context.Context, sourceURL, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sideloaded = append(f.sideloaded, sourceURL)
	return "/assets/" + fmt.Sprintf("a%d.jpg", len(f.sideloaded)), nil
}

type noopRegistry struct{ cancelled bool }

func (r *noopRegistry) Register(string)         {}
func (r *noopRegistry) Cancel(string) bool      { r.cancelled = true; return true }
func (r *noopRegistry) IsCancelled(string) bool { return r.cancelled }
func (r *noopRegistry) Release(string)          {}
func (r *noopRegistry) Active() []string        { return nil }

const fpProduct = "cccc1111dddd2222eeee3333ffff4444aaaa5555bbbb6666cccc7777dddd8888"

type fixture struct {
	job      *models.ImportJob
	staged   *memStagedStorage
	rulesets *memRuleSetStorage
	content  *memContentStorage
	assets   *fakeAssets
	llm      *fakeLLM
	registry *noopRegistry
}

func newFixture(t *testing.T, jobID string) *fixture {
	t.Helper()

	staged := newMemStagedStorage()
	require.NoError(t, staged.SaveItem(&models.StagedItem{
		ID:          models.StagedItemID(jobID, "https://shop.example/products/blue-widget"),
		JobID:       jobID,
		URL:         "https://shop.example/products/blue-widget",
		Fingerprint: fpProduct,
		Status:      models.ItemStatusCrawled,
		Title:       "Blue Widget | Shop",
		StrippedHTML: `<html><body><h1>Blue Widget</h1>` +
			`<img class="hero" src="/img/widget.jpg">` +
			`<div class="desc"><a href="https://shop.example/contact">Contact</a></div>` +
			`</body></html>`,
	}))

	rulesets := newMemRuleSetStorage()
	rs := models.NewRuleSet(jobID)
	rs.Groups[fpProduct] = &models.GroupRule{
		Fingerprint: fpProduct,
		PageType:    "product",
		TemplateID:  "product-cccc1111.html",
		SampleURL:   "https://shop.example/products/blue-widget",
		Selectors: map[string]string{
			"title":       "h1",
			"description": ".desc",
			"hero_image":  "img.hero",
		},
	}
	require.NoError(t, rulesets.SaveRuleSet(rs))

	return &fixture{
		job:      &models.ImportJob{ID: jobID, Origin: "https://shop.example"},
		staged:   staged,
		rulesets: rulesets,
		content:  newMemContentStorage(),
		assets:   &fakeAssets{},
		llm: &fakeLLM{values: map[string]string{
			"title":       "Blue Widget",
			"description": `See <a href="https://shop.example/contact">contact</a>`,
			"hero_image":  "/img/widget.jpg",
		}},
		registry: &noopRegistry{},
	}
}

func (f *fixture) service() *Service {
	return NewService(f.llm, f.staged, f.rulesets, f.content, f.assets, f.registry, arbor.NewLogger())
}

func TestRunTransformsCrawledItem(t *testing.T) {
	f := newFixture(t, "job-x1")

	count, err := f.service().Run(context.Background(), f.job)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	record, err := f.content.GetContent("blue-widget")
	require.NoError(t, err)
	assert.Equal(t, "Blue Widget", record.Title)
	assert.Equal(t, models.ContentTypeProduct, record.Type)
	assert.Equal(t, "product-cccc1111.html", record.TemplateFile)
	assert.Equal(t, "https://shop.example/products/blue-widget", record.SourceURL)

	// Same-origin link rewritten to relative form
	assert.Equal(t, `See <a href="/contact">contact</a>`, record.Fields["description"])

	// Media sideloaded through the asset store
	assert.Equal(t, "/assets/a1.jpg", record.Fields["hero_image"])
	assert.Equal(t, []string{"https://shop.example/img/widget.jpg"}, f.assets.sideloaded)

	// Product row created alongside the content record
	product, err := f.content.GetProduct("blue-widget")
	require.NoError(t, err)
	assert.Equal(t, "blue-widget", product.ContentSlug)

	// Item advanced to transformed with its content slug recorded
	item, err := f.staged.GetItem("job-x1", "https://shop.example/products/blue-widget")
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusTransformed, item.Status)
	assert.Equal(t, "blue-widget", item.Metadata["content_slug"])
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, "job-x2")
	svc := f.service()

	_, err := svc.Run(context.Background(), f.job)
	require.NoError(t, err)
	_, err = svc.Run(context.Background(), f.job)
	require.NoError(t, err)

	// Slug-keyed upserts: re-running never duplicates content rows
	count, _ := f.content.CountContent()
	assert.Equal(t, 1, count)
	assert.Len(t, f.content.products, 1)
}

func TestRunSkipsItemOnExtractionFailure(t *testing.T) {
	f := newFixture(t, "job-x3")
	f.llm.err = fmt.Errorf("provider down")

	count, err := f.service().Run(context.Background(), f.job)
	require.NoError(t, err)
	assert.Zero(t, count)

	count2, _ := f.content.CountContent()
	assert.Zero(t, count2)

	// Item stays crawled so a later run can retry it
	item, _ := f.staged.GetItem("job-x3", "https://shop.example/products/blue-widget")
	assert.Equal(t, models.ItemStatusCrawled, item.Status)
}

func TestRunSideloadFailureKeepsOriginalURL(t *testing.T) {
	f := newFixture(t, "job-x4")
	f.assets.err = fmt.Errorf("download failed")

	_, err := f.service().Run(context.Background(), f.job)
	require.NoError(t, err)

	record, err := f.content.GetContent("blue-widget")
	require.NoError(t, err)
	assert.Equal(t, "/img/widget.jpg", record.Fields["hero_image"])
}

func TestRunCancellation(t *testing.T) {
	f := newFixture(t, "job-x5")
	f.registry.cancelled = true

	_, err := f.service().Run(context.Background(), f.job)
	assert.ErrorIs(t, err, interfaces.ErrCancelled)
	assert.Zero(t, f.llm.calls)
}

func TestRunSkipsItemsWithoutRulesetEntry(t *testing.T) {
	f := newFixture(t, "job-x6")
	require.NoError(t, f.staged.SaveItem(&models.StagedItem{
		ID:           models.StagedItemID("job-x6", "https://shop.example/orphan"),
		JobID:        "job-x6",
		URL:          "https://shop.example/orphan",
		Fingerprint:  "unknown-fingerprint",
		Status:       models.ItemStatusCrawled,
		StrippedHTML: "<html><body><p>orphan</p></body></html>",
	}))

	count, err := f.service().Run(context.Background(), f.job)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	item, _ := f.staged.GetItem("job-x6", "https://shop.example/orphan")
	assert.Equal(t, models.ItemStatusCrawled, item.Status)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, models.ContentTypeProduct, contentTypeFor("product"))
	assert.Equal(t, models.ContentTypeArticle, contentTypeFor("post"))
	assert.Equal(t, models.ContentTypePage, contentTypeFor("landing"))
}
