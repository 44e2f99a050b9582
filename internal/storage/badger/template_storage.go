package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TemplateStorage implements the TemplateStorage interface for Badger
type TemplateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTemplateStorage creates a new TemplateStorage instance
func NewTemplateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TemplateStorage {
	return &TemplateStorage{
		db:     db,
		logger: logger,
	}
}

// SaveTemplate upserts a template by its logical filename, so re-running
// the pipeline on the same job never creates duplicate rows
func (s *TemplateStorage) SaveTemplate(tmpl *models.Template) error {
	if tmpl.Filename == "" {
		return fmt.Errorf("template filename is required")
	}

	now := time.Now()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	tmpl.UpdatedAt = now

	if err := s.db.Store().Upsert(tmpl.Filename, tmpl); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

func (s *TemplateStorage) GetTemplate(filename string) (*models.Template, error) {
	var tmpl models.Template
	if err := s.db.Store().Get(filename, &tmpl); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("template not found: %s", filename)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &tmpl, nil
}

func (s *TemplateStorage) ListTemplates() ([]*models.Template, error) {
	var templates []models.Template
	query := badgerhold.Where("Filename").Ne("").SortBy("Filename")
	if err := s.db.Store().Find(&templates, query); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return toTemplatePtrs(templates), nil
}

func (s *TemplateStorage) ListByPageType(pageType string) ([]*models.Template, error) {
	var templates []models.Template
	query := badgerhold.Where("PageType").Eq(pageType).Index("PageType").SortBy("Filename")
	if err := s.db.Store().Find(&templates, query); err != nil {
		return nil, fmt.Errorf("failed to list templates by page type: %w", err)
	}
	return toTemplatePtrs(templates), nil
}

func (s *TemplateStorage) CountTemplates() (int, error) {
	count, err := s.db.Store().Count(&models.Template{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return int(count), nil
}

func (s *TemplateStorage) DeleteTemplate(filename string) error {
	if err := s.db.Store().Delete(filename, &models.Template{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

func (s *TemplateStorage) DeleteByJob(jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.Template{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete templates by job: %w", err)
	}
	return nil
}

func toTemplatePtrs(templates []models.Template) []*models.Template {
	result := make([]*models.Template, len(templates))
	for i := range templates {
		result[i] = &templates[i]
	}
	return result
}
