package interfaces

import (
	"github.com/ternarybob/migro/internal/models"
)

// JobStorage - interface for import job persistence
type JobStorage interface {
	SaveJob(job *models.ImportJob) error
	GetJob(id string) (*models.ImportJob, error)
	ListJobs() ([]*models.ImportJob, error)
	ListJobsByStatus(status models.JobStatus) ([]*models.ImportJob, error)

	// UpdateStatus persists phase/status/message; writes are idempotent
	UpdateStatus(id string, status models.JobStatus, phase models.JobPhase, message string) error
	UpdatePageCount(id string, count int) error
	Heartbeat(id string) error

	DeleteJob(id string) error
}

// StagedItemStorage - interface for the crawl staging store
type StagedItemStorage interface {
	SaveItem(item *models.StagedItem) error
	GetItem(jobID, url string) (*models.StagedItem, error)
	ListByJob(jobID string) ([]*models.StagedItem, error)
	ListByFingerprint(jobID, fingerprint string) ([]*models.StagedItem, error)
	ListByStatus(jobID string, status models.ItemStatus) ([]*models.StagedItem, error)
	CountByJob(jobID string) (int, error)

	// FingerprintGroups returns fingerprint -> member count for a job
	FingerprintGroups(jobID string) (map[string]int, error)

	DeleteByJob(jobID string) error
}

// RuleSetStorage - interface for per-job extraction rulesets
type RuleSetStorage interface {
	SaveRuleSet(rs *models.RuleSet) error
	GetRuleSet(jobID string) (*models.RuleSet, error)
	DeleteRuleSet(jobID string) error
}

// TemplateStorage - interface for generated render templates
type TemplateStorage interface {
	// SaveTemplate upserts by logical filename
	SaveTemplate(tmpl *models.Template) error
	GetTemplate(filename string) (*models.Template, error)
	ListTemplates() ([]*models.Template, error)
	ListByPageType(pageType string) ([]*models.Template, error)
	CountTemplates() (int, error)
	DeleteTemplate(filename string) error
	DeleteByJob(jobID string) error
}

// ContentStorage - interface for final imported content
type ContentStorage interface {
	// SaveContent upserts by slug
	SaveContent(record *models.ContentRecord) error
	GetContent(slug string) (*models.ContentRecord, error)
	ListContent() ([]*models.ContentRecord, error)
	ListByJob(jobID string) ([]*models.ContentRecord, error)
	CountContent() (int, error)
	DeleteContent(slug string) error
	DeleteByJob(jobID string) error

	SavePage(page *models.PageRecord) error
	GetPage(slug string) (*models.PageRecord, error)
	SaveProduct(product *models.ProductRecord) error
	GetProduct(slug string) (*models.ProductRecord, error)
}

// AssetStorage - interface for sideloaded asset records
type AssetStorage interface {
	SaveAsset(asset *models.AssetRecord) error
	GetAsset(id string) (*models.AssetRecord, error)
	ListByJob(jobID string) ([]*models.AssetRecord, error)
}

// JobLogStorage - interface for per-job log entries
type JobLogStorage interface {
	Append(entry *models.JobLogEntry) error
	GetByJob(jobID string, limit int) ([]*models.JobLogEntry, error)
	DeleteByJob(jobID string) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStorage() JobStorage
	StagedItemStorage() StagedItemStorage
	RuleSetStorage() RuleSetStorage
	TemplateStorage() TemplateStorage
	ContentStorage() ContentStorage
	AssetStorage() AssetStorage
	JobLogStorage() JobLogStorage
	DB() interface{}
	Close() error
}
