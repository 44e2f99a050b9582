package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func setupTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tempDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Dir = tempDir
	options.ValueDir = tempDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)

	db := &BadgerDB{
		store:  store,
		logger: arbor.NewLogger(),
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestClose_SafeWithoutGCLoop(t *testing.T) {
	// Instances built without a GC loop (like this test fixture) must
	// close cleanly, and repeated Close calls must be no-ops
	db := setupTestDB(t)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}

func TestJobStorage_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	job := models.NewImportJob("job-001", models.ImportConfig{
		Origin:   "https://shop.example",
		Strategy: models.StrategyStatic,
	})

	require.NoError(t, storage.SaveJob(job))

	got, err := storage.GetJob("job-001")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example", got.Origin)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestJobStorage_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	_, err := storage.GetJob("nope")
	assert.Error(t, err)
}

func TestJobStorage_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	job := models.NewImportJob("job-002", models.ImportConfig{Origin: "https://shop.example"})
	require.NoError(t, storage.SaveJob(job))

	require.NoError(t, storage.UpdateStatus("job-002", models.JobStatusRunning, models.PhaseCrawling, "crawling pages"))

	got, err := storage.GetJob("job-002")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, models.PhaseCrawling, got.Phase)
	require.NotNil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, storage.UpdateStatus("job-002", models.JobStatusCompleted, models.PhaseDone, "done"))

	got, err = storage.GetJob("job-002")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestJobStorage_TerminalStatusIsSticky(t *testing.T) {
	db := setupTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	job := models.NewImportJob("job-003", models.ImportConfig{Origin: "https://shop.example"})
	require.NoError(t, storage.SaveJob(job))
	require.NoError(t, storage.UpdateStatus("job-003", models.JobStatusCancelled, models.PhaseCrawling, "cancelled by user"))

	// A late progress write from the pipeline must not resurrect the job
	require.NoError(t, storage.UpdateStatus("job-003", models.JobStatusRunning, models.PhaseRules, "generating rules"))

	got, err := storage.GetJob("job-003")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
}

func TestJobStorage_ListByStatus(t *testing.T) {
	db := setupTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	for i, status := range []models.JobStatus{models.JobStatusQueued, models.JobStatusRunning, models.JobStatusRunning} {
		job := models.NewImportJob("job-list-"+string(rune('a'+i)), models.ImportConfig{Origin: "https://shop.example"})
		job.Status = status
		require.NoError(t, storage.SaveJob(job))
	}

	running, err := storage.ListJobsByStatus(models.JobStatusRunning)
	require.NoError(t, err)
	assert.Len(t, running, 2)
}

func TestStagedItemStorage_UpsertByURL(t *testing.T) {
	db := setupTestDB(t)
	storage := NewStagedItemStorage(db, arbor.NewLogger())

	item := &models.StagedItem{
		JobID:       "job-010",
		URL:         "https://shop.example/products/widget",
		RawHTML:     "<html><body>v1</body></html>",
		Fingerprint: "fp-aaa",
		Status:      models.ItemStatusCrawled,
	}
	require.NoError(t, storage.SaveItem(item))

	// Re-crawling the same URL within the same job overwrites, not duplicates
	item2 := &models.StagedItem{
		JobID:       "job-010",
		URL:         "https://shop.example/products/widget",
		RawHTML:     "<html><body>v2</body></html>",
		Fingerprint: "fp-aaa",
		Status:      models.ItemStatusCrawled,
	}
	require.NoError(t, storage.SaveItem(item2))

	count, err := storage.CountByJob("job-010")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := storage.GetItem("job-010", "https://shop.example/products/widget")
	require.NoError(t, err)
	assert.Contains(t, got.RawHTML, "v2")
}

func TestStagedItemStorage_FingerprintGroups(t *testing.T) {
	db := setupTestDB(t)
	storage := NewStagedItemStorage(db, arbor.NewLogger())

	pages := map[string]string{
		"https://shop.example/products/a": "fp-product",
		"https://shop.example/products/b": "fp-product",
		"https://shop.example/products/c": "fp-product",
		"https://shop.example/about":      "fp-page",
	}
	for url, fp := range pages {
		require.NoError(t, storage.SaveItem(&models.StagedItem{
			JobID:       "job-011",
			URL:         url,
			Fingerprint: fp,
			Status:      models.ItemStatusCrawled,
		}))
	}

	groups, err := storage.FingerprintGroups("job-011")
	require.NoError(t, err)
	assert.Equal(t, 3, groups["fp-product"])
	assert.Equal(t, 1, groups["fp-page"])

	members, err := storage.ListByFingerprint("job-011", "fp-product")
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestStagedItemStorage_DeleteByJob(t *testing.T) {
	db := setupTestDB(t)
	storage := NewStagedItemStorage(db, arbor.NewLogger())

	require.NoError(t, storage.SaveItem(&models.StagedItem{
		JobID: "job-012", URL: "https://shop.example/", Status: models.ItemStatusCrawled,
	}))
	require.NoError(t, storage.SaveItem(&models.StagedItem{
		JobID: "job-other", URL: "https://shop.example/", Status: models.ItemStatusCrawled,
	}))

	require.NoError(t, storage.DeleteByJob("job-012"))

	count, err := storage.CountByJob("job-012")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = storage.CountByJob("job-other")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRuleSetStorage_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	storage := NewRuleSetStorage(db, arbor.NewLogger())

	rs := models.NewRuleSet("job-020")
	rs.Groups["fp-product"] = &models.GroupRule{
		Fingerprint: "fp-product",
		PageType:    "product",
		Selectors:   map[string]string{"title": "h1.product-title", "price": "span.price"},
		MemberCount: 3,
	}
	require.NoError(t, storage.SaveRuleSet(rs))

	got, err := storage.GetRuleSet("job-020")
	require.NoError(t, err)
	require.Contains(t, got.Groups, "fp-product")
	assert.Equal(t, "h1.product-title", got.Groups["fp-product"].Selectors["title"])
}

func TestTemplateStorage_UpsertByFilename(t *testing.T) {
	db := setupTestDB(t)
	storage := NewTemplateStorage(db, arbor.NewLogger())

	tmpl := &models.Template{
		Filename: "product-ab12cd34.html",
		PageType: "product",
		Code:     "<article>{{title}}</article>",
		JobID:    "job-030",
	}
	require.NoError(t, storage.SaveTemplate(tmpl))
	require.NoError(t, storage.SaveTemplate(tmpl))

	count, err := storage.CountTemplates()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	byType, err := storage.ListByPageType("product")
	require.NoError(t, err)
	assert.Len(t, byType, 1)
}

func TestContentStorage_SaveAndDeleteByJob(t *testing.T) {
	db := setupTestDB(t)
	storage := NewContentStorage(db, arbor.NewLogger())

	require.NoError(t, storage.SaveContent(&models.ContentRecord{
		Slug:  "widget",
		Title: "Widget",
		Type:  models.ContentTypeProduct,
		JobID: "job-040",
		Fields: map[string]interface{}{
			"price": "$9.99",
		},
	}))
	require.NoError(t, storage.SaveProduct(&models.ProductRecord{
		Slug: "widget", Title: "Widget", ContentSlug: "widget", JobID: "job-040", Price: "$9.99",
	}))

	got, err := storage.GetContent("widget")
	require.NoError(t, err)
	assert.Equal(t, "$9.99", got.Fields["price"])

	product, err := storage.GetProduct("widget")
	require.NoError(t, err)
	assert.Equal(t, "$9.99", product.Price)

	require.NoError(t, storage.DeleteByJob("job-040"))

	_, err = storage.GetContent("widget")
	assert.Error(t, err)
	_, err = storage.GetProduct("widget")
	assert.Error(t, err)
}

func TestAssetStorage_SaveAndList(t *testing.T) {
	db := setupTestDB(t)
	storage := NewAssetStorage(db, arbor.NewLogger())

	id := models.AssetIDFor("https://shop.example/img/hero.jpg")
	require.NoError(t, storage.SaveAsset(&models.AssetRecord{
		ID:          id,
		SourceURL:   "https://shop.example/img/hero.jpg",
		LocalPath:   "assets/" + id + ".jpg",
		ContentType: "image/jpeg",
		Size:        1024,
		JobID:       "job-050",
	}))

	got, err := storage.GetAsset(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), got.Size)

	assets, err := storage.ListByJob("job-050")
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestJobLogStorage_AppendAndFetch(t *testing.T) {
	db := setupTestDB(t)
	storage := NewJobLogStorage(db, arbor.NewLogger())

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, storage.Append(&models.JobLogEntry{
			JobID:     "job-060",
			Level:     "info",
			Message:   "step",
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	entries, err := storage.GetByJob("job-060", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	require.NoError(t, storage.DeleteByJob("job-060"))
	entries, err = storage.GetByJob("job-060", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
