package models

import (
	"time"
)

// JobStatus represents the lifecycle state of an import job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true when the status will never change again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobPhase identifies the pipeline phase a job is currently executing
type JobPhase string

const (
	PhasePending   JobPhase = "pending"
	PhaseClearing  JobPhase = "clearing"
	PhaseDiscovery JobPhase = "discovery"
	PhaseCrawling  JobPhase = "crawling"
	PhaseRules     JobPhase = "rules"
	PhaseTemplates JobPhase = "templates"
	PhaseTransform JobPhase = "transform"
	PhaseDone      JobPhase = "done"
)

// FetchStrategy selects how page markup is acquired for a job
type FetchStrategy string

const (
	// StrategyStatic fetches server-rendered HTML over plain HTTP
	StrategyStatic FetchStrategy = "static"
	// StrategyBrowser renders client-side applications in a headless browser
	StrategyBrowser FetchStrategy = "browser"
	// StrategySource scans HTML files from a source repository instead of crawling
	StrategySource FetchStrategy = "source"
)

// ImportConfig is the user-supplied configuration for one import run.
// Transform is tri-state: nil defers to the server's configured default,
// an explicit false always wins over it.
type ImportConfig struct {
	Origin        string        `json:"origin" validate:"required"`
	Strategy      FetchStrategy `json:"strategy" validate:"omitempty,oneof=static browser source"`
	SourceRepo    string        `json:"source_repo,omitempty"` // owner/repo or local path for the source strategy
	PageBudget    int           `json:"page_budget" validate:"gte=0"`
	ClearExisting bool          `json:"clear_existing"`
	Transform     *bool         `json:"transform,omitempty"`
	RequestDelay  time.Duration `json:"request_delay,omitempty"`
	StrictClasses bool          `json:"strict_classes"`
	SiteScope     string        `json:"site_scope,omitempty"`
}

// TransformEnabled resolves the tri-state transform flag against the
// server default
func (c ImportConfig) TransformEnabled(fallback bool) bool {
	if c.Transform != nil {
		return *c.Transform
	}
	return fallback
}

// ImportJob tracks one site-import run through the pipeline.
// The orchestrator is the only writer after creation; phase and status
// writes are idempotent so duplicate updates are harmless.
type ImportJob struct {
	ID        string        `json:"id" badgerhold:"key"`
	Origin    string        `json:"origin"`
	Strategy  FetchStrategy `json:"strategy"`
	Config    ImportConfig  `json:"config"`
	Phase     JobPhase      `json:"phase"`
	Status    JobStatus     `json:"status" badgerholdIndex:"Status"`
	Message   string        `json:"message"`
	PageCount int           `json:"page_count"`
	Error     string        `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Heartbeat   time.Time  `json:"heartbeat"`
}

// NewImportJob creates a queued job from an import configuration
func NewImportJob(id string, cfg ImportConfig) *ImportJob {
	now := time.Now()
	return &ImportJob{
		ID:        id,
		Origin:    cfg.Origin,
		Strategy:  cfg.Strategy,
		Config:    cfg,
		Phase:     PhasePending,
		Status:    JobStatusQueued,
		Message:   "Import queued",
		CreatedAt: now,
		UpdatedAt: now,
		Heartbeat: now,
	}
}
