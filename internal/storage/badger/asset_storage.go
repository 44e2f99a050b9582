package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AssetStorage implements the AssetStorage interface for Badger
type AssetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAssetStorage creates a new AssetStorage instance
func NewAssetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AssetStorage {
	return &AssetStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AssetStorage) SaveAsset(asset *models.AssetRecord) error {
	if asset.ID == "" {
		return fmt.Errorf("asset ID is required")
	}

	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(asset.ID, asset); err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

func (s *AssetStorage) GetAsset(id string) (*models.AssetRecord, error) {
	var asset models.AssetRecord
	if err := s.db.Store().Get(id, &asset); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("asset not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &asset, nil
}

func (s *AssetStorage) ListByJob(jobID string) ([]*models.AssetRecord, error) {
	var assets []models.AssetRecord
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").SortBy("CreatedAt")
	if err := s.db.Store().Find(&assets, query); err != nil {
		return nil, fmt.Errorf("failed to list assets by job: %w", err)
	}

	result := make([]*models.AssetRecord, len(assets))
	for i := range assets {
		result[i] = &assets[i]
	}
	return result, nil
}
