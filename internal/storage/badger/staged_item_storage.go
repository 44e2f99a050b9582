package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// StagedItemStorage implements the StagedItemStorage interface for Badger
type StagedItemStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewStagedItemStorage creates a new StagedItemStorage instance
func NewStagedItemStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StagedItemStorage {
	return &StagedItemStorage{
		db:     db,
		logger: logger,
	}
}

func (s *StagedItemStorage) SaveItem(item *models.StagedItem) error {
	if item.JobID == "" || item.URL == "" {
		return fmt.Errorf("staged item requires job ID and URL")
	}
	if item.ID == "" {
		item.ID = models.StagedItemID(item.JobID, item.URL)
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to save staged item: %w", err)
	}
	return nil
}

func (s *StagedItemStorage) GetItem(jobID, url string) (*models.StagedItem, error) {
	var item models.StagedItem
	if err := s.db.Store().Get(models.StagedItemID(jobID, url), &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("staged item not found: %s", url)
		}
		return nil, fmt.Errorf("failed to get staged item: %w", err)
	}
	return &item, nil
}

func (s *StagedItemStorage) ListByJob(jobID string) ([]*models.StagedItem, error) {
	var items []models.StagedItem
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").SortBy("CreatedAt")
	if err := s.db.Store().Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to list staged items: %w", err)
	}
	return toItemPtrs(items), nil
}

func (s *StagedItemStorage) ListByFingerprint(jobID, fingerprint string) ([]*models.StagedItem, error) {
	var items []models.StagedItem
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").And("Fingerprint").Eq(fingerprint).SortBy("CreatedAt")
	if err := s.db.Store().Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to list staged items by fingerprint: %w", err)
	}
	return toItemPtrs(items), nil
}

func (s *StagedItemStorage) ListByStatus(jobID string, status models.ItemStatus) ([]*models.StagedItem, error) {
	var items []models.StagedItem
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").And("Status").Eq(status).SortBy("CreatedAt")
	if err := s.db.Store().Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to list staged items by status: %w", err)
	}
	return toItemPtrs(items), nil
}

func (s *StagedItemStorage) CountByJob(jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.StagedItem{}, badgerhold.Where("JobID").Eq(jobID).Index("JobID"))
	if err != nil {
		return 0, fmt.Errorf("failed to count staged items: %w", err)
	}
	return int(count), nil
}

// FingerprintGroups returns the distinct fingerprints for a job and how
// many staged pages share each one
func (s *StagedItemStorage) FingerprintGroups(jobID string) (map[string]int, error) {
	items, err := s.ListByJob(jobID)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]int)
	for _, item := range items {
		if item.Fingerprint != "" {
			groups[item.Fingerprint]++
		}
	}
	return groups, nil
}

func (s *StagedItemStorage) DeleteByJob(jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.StagedItem{}, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return fmt.Errorf("failed to delete staged items: %w", err)
	}
	return nil
}

func toItemPtrs(items []models.StagedItem) []*models.StagedItem {
	result := make([]*models.StagedItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result
}
