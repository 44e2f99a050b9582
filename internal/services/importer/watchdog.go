package importer

import (
	"fmt"
	"time"

	"github.com/ternarybob/migro/internal/models"
)

// MarkStaleJobs fails running jobs whose heartbeat is older than
// staleAfter and that have no live cancellation token. A crashed or
// killed process leaves jobs in status running; without this sweep
// they would look active forever.
func (s *Service) MarkStaleJobs(staleAfter time.Duration) (int, error) {
	running, err := s.storage.JobStorage().ListJobsByStatus(models.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list running jobs: %w", err)
	}

	active := make(map[string]bool)
	for _, id := range s.registry.Active() {
		active[id] = true
	}

	marked := 0
	cutoff := time.Now().Add(-staleAfter)
	for _, job := range running {
		if active[job.ID] || job.Heartbeat.After(cutoff) {
			continue
		}

		message := fmt.Sprintf("Import marked stale: no heartbeat since %s", job.Heartbeat.Format(time.RFC3339))
		if err := s.setStatus(job.ID, models.JobStatusFailed, job.Phase, message); err != nil {
			continue
		}

		s.logger.Warn().
			Str("job_id", job.ID).
			Str("phase", string(job.Phase)).
			Msg("Marked stale import job as failed")
		marked++
	}

	return marked, nil
}
