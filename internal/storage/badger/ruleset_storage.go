package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RuleSetStorage implements the RuleSetStorage interface for Badger.
// One ruleset per job, keyed by job id.
type RuleSetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRuleSetStorage creates a new RuleSetStorage instance
func NewRuleSetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RuleSetStorage {
	return &RuleSetStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RuleSetStorage) SaveRuleSet(rs *models.RuleSet) error {
	if rs.JobID == "" {
		return fmt.Errorf("ruleset job ID is required")
	}

	now := time.Now()
	if rs.CreatedAt.IsZero() {
		rs.CreatedAt = now
	}
	rs.UpdatedAt = now

	if err := s.db.Store().Upsert(rs.JobID, rs); err != nil {
		return fmt.Errorf("failed to save ruleset: %w", err)
	}
	return nil
}

func (s *RuleSetStorage) GetRuleSet(jobID string) (*models.RuleSet, error) {
	var rs models.RuleSet
	if err := s.db.Store().Get(jobID, &rs); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("ruleset not found for job: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get ruleset: %w", err)
	}
	return &rs, nil
}

func (s *RuleSetStorage) DeleteRuleSet(jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.RuleSet{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete ruleset: %w", err)
	}
	return nil
}
