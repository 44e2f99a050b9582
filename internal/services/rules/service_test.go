package rules

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

type fakeLLM struct {
	analysis *interfaces.StructureAnalysis
	err      error
	calls    int
}

func (f *fakeLLM) ClassifyStructure(context.Context, string) (*interfaces.StructureAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func (f *fakeLLM) CompareStructures(context.Context, string, string) (*interfaces.Comparison, error) {
	return &interfaces.Comparison{}, nil
}

func (f *fakeLLM) ExtractFields(context.Context, string, []interfaces.FieldSpec) (map[string]string, error) {
	return map[string]string{}, nil
}

func (f *fakeLLM) GenerateTemplate(context.Context, string, map[string]string, string) (string, error) {
	return "", nil
}

func (f *fakeLLM) HealthCheck(context.Context) error { return nil }
func (f *fakeLLM) Close() error                      { return nil }

type memStagedStorage struct {
	items []*models.StagedItem
}

func (s *memStagedStorage) SaveItem(item *models.StagedItem) error {
	s.items = append(s.items, item)
	return nil
}

func (s *memStagedStorage) GetItem(jobID, url string) (*models.StagedItem, error) {
	for _, item := range s.items {
		if item.JobID == jobID && item.URL == url {
			return item, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (s *memStagedStorage) ListByJob(jobID string) ([]*models.StagedItem, error) {
	var out []*models.StagedItem
	for _, item := range s.items {
		if item.JobID == jobID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memStagedStorage) ListByFingerprint(jobID, fp string) ([]*models.StagedItem, error) {
	var out []*models.StagedItem
	for _, item := range s.items {
		if item.JobID == jobID && item.Fingerprint == fp {
			out = append(out, item)
		}
	}
	return out, nil
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

func (s *memStagedStorage) CountByJob(jobID string) (int, error) {
	items, _ := s.ListByJob(jobID)
	return len(items), nil
}

func (s *memStagedStorage) FingerprintGroups(jobID string) (map[string]int, error) {
	groups := map[string]int{}
	for _, item := range s.items {
		if item.JobID == jobID && item.Fingerprint != "" {
			groups[item.Fingerprint]++
		}
	}
	return groups, nil
}

func (s *memStagedStorage) DeleteByJob(jobID string) error { return nil }

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

func (s *memRuleSetStorage) DeleteRuleSet(jobID string) error {
	delete(s.sets, jobID)
	return nil
}

type noopRegistry struct{ cancelled bool }

func (r *noopRegistry) Register(string)         {}
func (r *noopRegistry) Cancel(string) bool      { r.cancelled = true; return true }
func (r *noopRegistry) IsCancelled(string) bool { return r.cancelled }
func (r *noopRegistry) Release(string)          {}
func (r *noopRegistry) Active() []string        { return nil }

const fpProduct = "fp-product-0000000000000000000000000000000000000000000000000000"

func stageProduct(storage *memStagedStorage, jobID, url string, withPrice bool) {
	price := ""
	if withPrice {
		price = `<span class="price">$9.99</span>`
	}
	html := fmt.Sprintf(`<div class="product"><h1>Title</h1>%s</div>`, price)
	storage.items = append(storage.items, &models.StagedItem{
		JobID:        jobID,
		URL:          url,
		StrippedHTML: html,
		AnalysisHTML: html,
		Fingerprint:  fpProduct,
		Status:       models.ItemStatusCrawled,
	})
}

func TestGenerateValidatesBrittleSelector(t *testing.T) {
	staged := &memStagedStorage{}
	// Two-page group: the sample page has .price, the other member lacks
	// it. The sample counts toward validation, so price must come out at
	// 1/2 brittle rather than 0/1 invalid.
	stageProduct(staged, "job-r1", "https://shop.example/products/a", true)
	stageProduct(staged, "job-r1", "https://shop.example/products/b", false)

	llm := &fakeLLM{analysis: &interfaces.StructureAnalysis{
		PageType:  "product",
		Selectors: map[string]string{"title": "h1", "price": ".price"},
		Fields: []interfaces.FieldSpec{
			{Name: "title", Type: "text"},
			{Name: "price", Type: "text"},
		},
	}}

	svc := NewService(llm, staged, newMemRuleSetStorage(), &noopRegistry{}, arbor.NewLogger(), 5)
	ruleset, err := svc.Generate(context.Background(), "job-r1")
	require.NoError(t, err)

	rule := ruleset.Groups[fpProduct]
	require.NotNil(t, rule)

	title := rule.Validation["title"]
	require.NotNil(t, title)
	assert.Equal(t, 2, title.SampleCount)
	assert.Equal(t, 1.0, title.SuccessRate)
	assert.False(t, title.IsBrittle)
	assert.False(t, title.IsInvalid)

	price := rule.Validation["price"]
	require.NotNil(t, price)
	assert.Equal(t, 2, price.SampleCount)
	assert.Equal(t, 0.5, price.SuccessRate)
	assert.True(t, price.IsBrittle)
	assert.False(t, price.IsInvalid)
	assert.Equal(t, []string{"https://shop.example/products/b"}, price.FailedURLs)
}

func TestGenerateMarksInvalidSelector(t *testing.T) {
	staged := &memStagedStorage{}
	for i := 0; i < 6; i++ {
		stageProduct(staged, "job-r2", fmt.Sprintf("https://shop.example/products/%d", i), true)
	}

	llm := &fakeLLM{analysis: &interfaces.StructureAnalysis{
		PageType:  "product",
		Selectors: map[string]string{"sku": ".sku-code"},
		Fields:    []interfaces.FieldSpec{{Name: "sku", Type: "text"}},
	}}

	svc := NewService(llm, staged, newMemRuleSetStorage(), &noopRegistry{}, arbor.NewLogger(), 5)
	ruleset, err := svc.Generate(context.Background(), "job-r2")
	require.NoError(t, err)

	// Sample plus five more members fills the validation cap
	sku := ruleset.Groups[fpProduct].Validation["sku"]
	require.NotNil(t, sku)
	assert.Equal(t, 6, sku.SampleCount)
	assert.Equal(t, 0.0, sku.SuccessRate)
	assert.True(t, sku.IsInvalid)
	assert.True(t, sku.IsBrittle)
	assert.Len(t, sku.FailedURLs, 6)
}

func TestGenerateSkipsFailedGroup(t *testing.T) {
	staged := &memStagedStorage{}
	stageProduct(staged, "job-r3", "https://shop.example/products/a", true)

	llm := &fakeLLM{err: fmt.Errorf("provider exploded")}
	svc := NewService(llm, staged, newMemRuleSetStorage(), &noopRegistry{}, arbor.NewLogger(), 5)

	_, err := svc.Generate(context.Background(), "job-r3")
	// Every group failed, so the phase fails; but the failure is the
	// "no usable groups" outcome, not the provider error itself
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "provider exploded")
}

func TestGenerateCancellationBetweenGroups(t *testing.T) {
	staged := &memStagedStorage{}
	stageProduct(staged, "job-r4", "https://shop.example/products/a", true)

	registry := &noopRegistry{cancelled: true}
	llm := &fakeLLM{analysis: &interfaces.StructureAnalysis{
		PageType:  "product",
		Selectors: map[string]string{"title": "h1"},
	}}

	svc := NewService(llm, staged, newMemRuleSetStorage(), registry, arbor.NewLogger(), 5)
	_, err := svc.Generate(context.Background(), "job-r4")
	assert.ErrorIs(t, err, interfaces.ErrCancelled)
	assert.Zero(t, llm.calls)
}

func TestDensityScoreSeparatesProseFromNav(t *testing.T) {
	prose := `<div class="content">
		<h2>Heading</h2>
		<p>` + strings.Repeat("Real sentences about the subject matter. ", 10) + `</p>
		<p>More prose here with substance and length to it.</p>
	</div>`
	nav := `<div class="content">
		<ul>
			<li><a href="/a">Link A</a></li>
			<li><a href="/b">Link B</a></li>
			<li><a href="/c">Link C</a></li>
		</ul>
	</div>`

	proseDoc, err := goquery.NewDocumentFromReader(strings.NewReader(prose))
	require.NoError(t, err)
	navDoc, err := goquery.NewDocumentFromReader(strings.NewReader(nav))
	require.NoError(t, err)

	proseScore := densityScore(proseDoc.Find(".content"))
	navScore := densityScore(navDoc.Find(".content"))

	assert.Greater(t, proseScore, lowDensityThreshold)
	assert.Less(t, navScore, lowDensityThreshold)
	assert.Greater(t, proseScore, navScore)
}
