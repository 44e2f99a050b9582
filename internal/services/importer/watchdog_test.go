package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/migro/internal/models"
)

func TestMarkStaleJobsFailsDeadJob(t *testing.T) {
	h := newHarness(t)

	stale := models.NewImportJob("job_stale", models.ImportConfig{Origin: "https://shop.example"})
	stale.Status = models.JobStatusRunning
	stale.Phase = models.PhaseCrawling
	stale.Heartbeat = time.Now().Add(-time.Hour)
	require.NoError(t, h.storage.JobStorage().SaveJob(stale))

	marked, err := h.svc.MarkStaleJobs(10 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	job, err := h.storage.JobStorage().GetJob("job_stale")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}

func TestMarkStaleJobsSkipsRegisteredJob(t *testing.T) {
	h := newHarness(t)

	job := models.NewImportJob("job_live", models.ImportConfig{Origin: "https://shop.example"})
	job.Status = models.JobStatusRunning
	job.Heartbeat = time.Now().Add(-time.Hour)
	require.NoError(t, h.storage.JobStorage().SaveJob(job))
	h.registry.Register("job_live")
	defer h.registry.Release("job_live")

	marked, err := h.svc.MarkStaleJobs(10 * time.Minute)
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestMarkStaleJobsSkipsFreshHeartbeat(t *testing.T) {
	h := newHarness(t)

	job := models.NewImportJob("job_fresh", models.ImportConfig{Origin: "https://shop.example"})
	job.Status = models.JobStatusRunning
	job.Heartbeat = time.Now()
	require.NoError(t, h.storage.JobStorage().SaveJob(job))

	marked, err := h.svc.MarkStaleJobs(10 * time.Minute)
	require.NoError(t, err)
	assert.Zero(t, marked)
}
