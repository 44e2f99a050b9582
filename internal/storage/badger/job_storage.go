package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(job *models.ImportJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(id string) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobs() ([]*models.ImportJob, error) {
	var jobs []models.ImportJob
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.ImportJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) ListJobsByStatus(status models.JobStatus) ([]*models.ImportJob, error) {
	var jobs []models.ImportJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status).Index("Status")); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}

	result := make([]*models.ImportJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// UpdateStatus persists a status/phase transition. Writes are idempotent:
// re-applying the current status is harmless, and a terminal status is
// never overwritten by a late non-terminal write.
func (s *JobStorage) UpdateStatus(id string, status models.JobStatus, phase models.JobPhase, message string) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}

	if job.Status.IsTerminal() && !status.IsTerminal() {
		s.logger.Debug().
			Str("job_id", id).
			Str("current", string(job.Status)).
			Str("requested", string(status)).
			Msg("Ignoring non-terminal status write after terminal status")
		return nil
	}

	job.Status = status
	job.Phase = phase
	job.Message = message
	job.Heartbeat = time.Now()

	now := time.Now()
	if status == models.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.IsTerminal() && job.CompletedAt == nil {
		job.CompletedAt = &now
	}
	if status == models.JobStatusFailed {
		job.Error = message
	}

	return s.SaveJob(job)
}

func (s *JobStorage) UpdatePageCount(id string, count int) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	job.PageCount = count
	job.Heartbeat = time.Now()
	return s.SaveJob(job)
}

func (s *JobStorage) Heartbeat(id string) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	job.Heartbeat = time.Now()
	return s.SaveJob(job)
}

func (s *JobStorage) DeleteJob(id string) error {
	if err := s.db.Store().Delete(id, &models.ImportJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}
