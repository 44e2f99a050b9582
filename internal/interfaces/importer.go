package interfaces

import (
	"context"

	"github.com/ternarybob/migro/internal/models"
)

// ImportService is the job control surface for the site-import pipeline
type ImportService interface {
	// StartImport validates the configuration, creates a job and launches
	// its background pipeline; returns the job id
	StartImport(ctx context.Context, cfg models.ImportConfig) (string, error)

	// CancelImport requests best-effort cooperative cancellation
	CancelImport(jobID string) error

	// GetStatus returns the job's phase, message and page count
	GetStatus(jobID string) (*models.ImportJob, error)

	ListImports() ([]*models.ImportJob, error)
}
