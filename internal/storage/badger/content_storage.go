package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ContentStorage implements the ContentStorage interface for Badger.
// Content records upsert by slug; page/product records are thin
// type-specific rows keyed by the same slug.
type ContentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewContentStorage creates a new ContentStorage instance
func NewContentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ContentStorage {
	return &ContentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ContentStorage) SaveContent(record *models.ContentRecord) error {
	if record.Slug == "" {
		return fmt.Errorf("content slug is required")
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if err := s.db.Store().Upsert(record.Slug, record); err != nil {
		return fmt.Errorf("failed to save content record: %w", err)
	}
	return nil
}

func (s *ContentStorage) GetContent(slug string) (*models.ContentRecord, error) {
	var record models.ContentRecord
	if err := s.db.Store().Get(slug, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("content not found: %s", slug)
		}
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return &record, nil
}

func (s *ContentStorage) ListContent() ([]*models.ContentRecord, error) {
	var records []models.ContentRecord
	query := badgerhold.Where("Slug").Ne("").SortBy("Slug")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}
	return toContentPtrs(records), nil
}

func (s *ContentStorage) ListByJob(jobID string) ([]*models.ContentRecord, error) {
	var records []models.ContentRecord
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").SortBy("Slug")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list content by job: %w", err)
	}
	return toContentPtrs(records), nil
}

func (s *ContentStorage) CountContent() (int, error) {
	count, err := s.db.Store().Count(&models.ContentRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count content: %w", err)
	}
	return int(count), nil
}

func (s *ContentStorage) DeleteContent(slug string) error {
	if err := s.db.Store().Delete(slug, &models.ContentRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

func (s *ContentStorage) DeleteByJob(jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.ContentRecord{}, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return fmt.Errorf("failed to delete content by job: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.PageRecord{}, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return fmt.Errorf("failed to delete pages by job: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.ProductRecord{}, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return fmt.Errorf("failed to delete products by job: %w", err)
	}
	return nil
}

func (s *ContentStorage) SavePage(page *models.PageRecord) error {
	if page.Slug == "" {
		return fmt.Errorf("page slug is required")
	}

	now := time.Now()
	if page.CreatedAt.IsZero() {
		page.CreatedAt = now
	}
	page.UpdatedAt = now

	if err := s.db.Store().Upsert(page.Slug, page); err != nil {
		return fmt.Errorf("failed to save page record: %w", err)
	}
	return nil
}

func (s *ContentStorage) GetPage(slug string) (*models.PageRecord, error) {
	var page models.PageRecord
	if err := s.db.Store().Get(slug, &page); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("page not found: %s", slug)
		}
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return &page, nil
}

func (s *ContentStorage) SaveProduct(product *models.ProductRecord) error {
	if product.Slug == "" {
		return fmt.Errorf("product slug is required")
	}

	now := time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	if err := s.db.Store().Upsert(product.Slug, product); err != nil {
		return fmt.Errorf("failed to save product record: %w", err)
	}
	return nil
}

func (s *ContentStorage) GetProduct(slug string) (*models.ProductRecord, error) {
	var product models.ProductRecord
	if err := s.db.Store().Get(slug, &product); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("product not found: %s", slug)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

func toContentPtrs(records []models.ContentRecord) []*models.ContentRecord {
	result := make([]*models.ContentRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result
}
