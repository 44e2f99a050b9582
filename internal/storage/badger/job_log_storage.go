package badger

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// logSequence disambiguates log keys created within the same nanosecond
var logSequence uint64

// JobLogStorage implements the JobLogStorage interface for Badger
type JobLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobLogStorage creates a new JobLogStorage instance
func NewJobLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobLogStorage) Append(entry *models.JobLogEntry) error {
	if entry.JobID == "" {
		return fmt.Errorf("job log entry requires a job ID")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.ID == 0 {
		seq := atomic.AddUint64(&logSequence, 1)
		entry.ID = uint64(entry.Timestamp.UnixNano()) + seq
	}

	if err := s.db.Store().Upsert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	return nil
}

func (s *JobLogStorage) GetByJob(jobID string, limit int) ([]*models.JobLogEntry, error) {
	var entries []models.JobLogEntry
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").SortBy("Timestamp").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to get job logs: %w", err)
	}

	result := make([]*models.JobLogEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

func (s *JobLogStorage) DeleteByJob(jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.JobLogEntry{}, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return fmt.Errorf("failed to delete job logs: %w", err)
	}
	return nil
}
