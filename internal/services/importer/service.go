package importer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/ternarybob/migro/internal/services/crawler"
	"github.com/ternarybob/migro/internal/services/fetch"
)

// AssetSideloader mirrors the asset service's sideload operation for
// discovery-phase stylesheet capture
type AssetSideloader interface {
	Sideload(ctx context.Context, sourceURL, jobID string) (string, error)
}

// RuleGenerator produces the extraction ruleset for a finished crawl
type RuleGenerator interface {
	Generate(ctx context.Context, jobID string) (*models.RuleSet, error)
}

// TemplateGenerator produces deduplicated render templates from a ruleset
type TemplateGenerator interface {
	Generate(ctx context.Context, jobID string) error
}

// Transformer turns staged pages into final content records
type Transformer interface {
	Run(ctx context.Context, job *models.ImportJob) (int, error)
}

// Crawler walks the site and stages pages
type Crawler interface {
	Crawl(ctx context.Context, job *models.ImportJob, fetcher interfaces.Fetcher) (int, error)
}

// FetcherFactory builds the acquisition fetcher for one job. Injectable
// so orchestration tests never touch the network or a browser.
type FetcherFactory func(ctx context.Context, job *models.ImportJob) (interfaces.Fetcher, error)

// Service is the import orchestrator: one background goroutine per job
// drives the phase machine from clearing through transformation, with
// cancellation checked at every phase boundary.
type Service struct {
	storage    interfaces.StorageManager
	crawler    Crawler
	rules      RuleGenerator
	templates  TemplateGenerator
	transform  Transformer
	assets     AssetSideloader
	registry   interfaces.JobRegistry
	events     interfaces.EventService
	validate   *validator.Validate
	logger     arbor.ILogger
	config     *common.Config
	newFetcher FetcherFactory
}

var _ interfaces.ImportService = (*Service)(nil)

// NewService creates the import orchestrator
func NewService(storage interfaces.StorageManager, crawlSvc Crawler, rules RuleGenerator, templates TemplateGenerator, transform Transformer, assets AssetSideloader, registry interfaces.JobRegistry, events interfaces.EventService, config *common.Config, logger arbor.ILogger) *Service {
	s := &Service{
		storage:   storage,
		crawler:   crawlSvc,
		rules:     rules,
		templates: templates,
		transform: transform,
		assets:    assets,
		registry:  registry,
		events:    events,
		validate:  validator.New(),
		logger:    logger,
		config:    config,
	}
	s.newFetcher = s.defaultFetcherFactory
	return s
}

// SetFetcherFactory overrides how fetchers are built, for tests
func (s *Service) SetFetcherFactory(factory FetcherFactory) {
	s.newFetcher = factory
}

// StartImport validates the configuration, persists a queued job and
// launches its pipeline goroutine. Returns the job id immediately.
func (s *Service) StartImport(ctx context.Context, cfg models.ImportConfig) (string, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = models.StrategyStatic
	}
	if err := s.validate.Struct(cfg); err != nil {
		return "", fmt.Errorf("invalid import configuration: %w", err)
	}
	if cfg.Strategy == models.StrategySource && cfg.SourceRepo == "" {
		return "", fmt.Errorf("source strategy requires a source repository")
	}
	if _, err := url.Parse(cfg.Origin); err != nil {
		return "", fmt.Errorf("invalid origin URL: %w", err)
	}

	job := models.NewImportJob(common.NewJobID(), cfg)
	if err := s.storage.JobStorage().SaveJob(job); err != nil {
		return "", fmt.Errorf("failed to persist import job: %w", err)
	}

	s.registry.Register(job.ID)

	scope := common.SiteScopeFrom(ctx)
	if cfg.SiteScope != "" {
		scope = cfg.SiteScope
	}

	common.SafeGo(s.logger, "import-"+job.ID, func() {
		// Background goroutines do not inherit the request context;
		// re-enter the site scope explicitly
		jobCtx := common.WithSiteScope(context.Background(), scope)
		s.run(jobCtx, job)
	})

	s.logger.Info().
		Str("job_id", job.ID).
		Str("origin", cfg.Origin).
		Str("strategy", string(cfg.Strategy)).
		Msg("Import started")

	return job.ID, nil
}

// CancelImport flags a job for cooperative cancellation. The pipeline
// notices at its next checkpoint.
func (s *Service) CancelImport(jobID string) error {
	if s.registry.Cancel(jobID) {
		s.logger.Info().Str("job_id", jobID).Msg("Import cancellation requested")
		return nil
	}

	// Not in the registry: either unknown or already finished
	job, err := s.storage.JobStorage().GetJob(jobID)
	if err != nil {
		return fmt.Errorf("import job not found: %s", jobID)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("import %s already %s", jobID, job.Status)
	}

	// Queued in storage but never registered (e.g. process restart):
	// mark it cancelled directly
	return s.setStatus(jobID, models.JobStatusCancelled, job.Phase, "Import cancelled")
}

// GetStatus returns the current phase, status and page count of a job
func (s *Service) GetStatus(jobID string) (*models.ImportJob, error) {
	return s.storage.JobStorage().GetJob(jobID)
}

// ListImports returns all import jobs, newest first
func (s *Service) ListImports() ([]*models.ImportJob, error) {
	return s.storage.JobStorage().ListJobs()
}

// run executes the pipeline for one job. Phase errors mark the job
// failed; panics are caught, dumped and also mark the job failed so the
// host process survives a crashing import.
func (s *Service) run(ctx context.Context, job *models.ImportJob) {
	// Correlated logs are captured per job and surfaced by the status API
	jobLog := s.logger.WithCorrelationId(job.ID)
	jobLog.Info().Str("origin", job.Origin).Str("strategy", string(job.Strategy)).Msg("Import pipeline started")

	defer s.registry.Release(job.ID)
	defer func() {
		if r := recover(); r != nil {
			crashPath := common.WriteCrashFile(r, common.GetStackTrace())
			jobLog.Error().
				Str("crash_file", crashPath).
				Msg("Import pipeline panicked")
			s.setStatus(job.ID, models.JobStatusFailed, job.Phase, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if s.cancelledAt(job, job.Phase) {
		return
	}

	// Phase 1: optional clear of previously imported data
	if job.Config.ClearExisting {
		s.setStatus(job.ID, models.JobStatusRunning, models.PhaseClearing, "Clearing existing content")
		if err := s.clearExisting(); err != nil {
			s.fail(job, models.PhaseClearing, err)
			return
		}
	}
	if s.cancelledAt(job, models.PhaseClearing) {
		return
	}

	// Phase 2: discovery - reach the site root and capture its assets
	s.setStatus(job.ID, models.JobStatusRunning, models.PhaseDiscovery, "Analyzing site")
	fetcher, err := s.newFetcher(ctx, job)
	if err != nil {
		s.fail(job, models.PhaseDiscovery, err)
		return
	}
	defer fetcher.Close()

	if err := s.discover(ctx, job, fetcher); err != nil {
		s.fail(job, models.PhaseDiscovery, err)
		return
	}
	if s.cancelledAt(job, models.PhaseDiscovery) {
		return
	}

	// Phase 3: crawl
	s.setStatus(job.ID, models.JobStatusRunning, models.PhaseCrawling, "Crawling site")
	pages, err := s.crawler.Crawl(ctx, job, fetcher)
	if err != nil {
		s.phaseError(job, models.PhaseCrawling, err)
		return
	}
	job.PageCount = pages
	if s.cancelledAt(job, models.PhaseCrawling) {
		return
	}

	// Phase 4: rule generation
	s.setStatus(job.ID, models.JobStatusRunning, models.PhaseRules, "Generating extraction rules")
	if _, err := s.rules.Generate(ctx, job.ID); err != nil {
		s.phaseError(job, models.PhaseRules, err)
		return
	}
	if s.cancelledAt(job, models.PhaseRules) {
		return
	}

	// Phase 5: template generation
	s.setStatus(job.ID, models.JobStatusRunning, models.PhaseTemplates, "Generating templates")
	if err := s.templates.Generate(ctx, job.ID); err != nil {
		s.phaseError(job, models.PhaseTemplates, err)
		return
	}
	if s.cancelledAt(job, models.PhaseTemplates) {
		return
	}

	// Phase 6: optional transformation into final content
	if job.Config.TransformEnabled(s.config.Imports.TransformDefault) {
		s.setStatus(job.ID, models.JobStatusRunning, models.PhaseTransform, "Transforming pages into content")
		count, err := s.transform.Run(ctx, job)
		if err != nil {
			s.phaseError(job, models.PhaseTransform, err)
			return
		}
		s.logger.Info().Str("job_id", job.ID).Int("content", count).Msg("Content created")
	}
	if s.cancelledAt(job, models.PhaseTransform) {
		return
	}

	s.setStatus(job.ID, models.JobStatusCompleted, models.PhaseDone,
		fmt.Sprintf("Import completed: %d pages", job.PageCount))
}

// discover fetches the site root, verifies reachability and sideloads
// the stylesheets it references
func (s *Service) discover(ctx context.Context, job *models.ImportJob, fetcher interfaces.Fetcher) error {
	result, err := fetcher.Fetch(ctx, job.Origin)
	if err != nil {
		return fmt.Errorf("failed to reach site root: %w", err)
	}
	if result.StatusCode >= 400 {
		return fmt.Errorf("site root returned status %d", result.StatusCode)
	}

	root, err := url.Parse(job.Origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, href := range result.Stylesheets {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		absolute := root.ResolveReference(ref).String()
		if _, err := s.assets.Sideload(ctx, absolute, job.ID); err != nil {
			s.logger.Warn().Err(err).Str("url", absolute).Msg("Failed to sideload stylesheet")
		}
	}

	return nil
}

// clearExisting removes content and templates from earlier imports
func (s *Service) clearExisting() error {
	content := s.storage.ContentStorage()
	records, err := content.ListContent()
	if err != nil {
		return fmt.Errorf("failed to list existing content: %w", err)
	}
	for _, record := range records {
		if err := content.DeleteContent(record.Slug); err != nil {
			return fmt.Errorf("failed to delete content %s: %w", record.Slug, err)
		}
	}

	templateStore := s.storage.TemplateStorage()
	existing, err := templateStore.ListTemplates()
	if err != nil {
		return fmt.Errorf("failed to list existing templates: %w", err)
	}
	for _, tmpl := range existing {
		if err := templateStore.DeleteTemplate(tmpl.Filename); err != nil {
			return fmt.Errorf("failed to delete template %s: %w", tmpl.Filename, err)
		}
	}

	return nil
}

// cancelledAt checks the cancel flag at a phase boundary and finalizes
// the job when set
func (s *Service) cancelledAt(job *models.ImportJob, phase models.JobPhase) bool {
	if !s.registry.IsCancelled(job.ID) {
		return false
	}
	s.setStatus(job.ID, models.JobStatusCancelled, phase, "Import cancelled")
	return true
}

// phaseError finalizes a phase failure, treating a cancellation
// sentinel as cancelled rather than failed
func (s *Service) phaseError(job *models.ImportJob, phase models.JobPhase, err error) {
	if err == interfaces.ErrCancelled {
		s.setStatus(job.ID, models.JobStatusCancelled, phase, "Import cancelled")
		return
	}
	s.fail(job, phase, err)
}

func (s *Service) fail(job *models.ImportJob, phase models.JobPhase, err error) {
	s.logger.Error().
		Err(err).
		Str("job_id", job.ID).
		Str("phase", string(phase)).
		Msg("Import phase failed")
	s.setStatus(job.ID, models.JobStatusFailed, phase, err.Error())
}

// setStatus persists a status transition and broadcasts it
func (s *Service) setStatus(jobID string, status models.JobStatus, phase models.JobPhase, message string) error {
	if err := s.storage.JobStorage().UpdateStatus(jobID, status, phase, message); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist job status")
		return err
	}

	s.appendJobLog(jobID, message)
	s.events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventImportStatus,
		Payload: map[string]interface{}{
			"job_id":  jobID,
			"status":  string(status),
			"phase":   string(phase),
			"message": message,
		},
	})
	return nil
}

func (s *Service) appendJobLog(jobID, message string) {
	entry := &models.JobLogEntry{
		JobID:     jobID,
		Level:     "info",
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := s.storage.JobLogStorage().Append(entry); err != nil {
		s.logger.Debug().Err(err).Str("job_id", jobID).Msg("Failed to append job log")
	}
}

// defaultFetcherFactory builds the production fetcher for a job's
// acquisition strategy
func (s *Service) defaultFetcherFactory(ctx context.Context, job *models.ImportJob) (interfaces.Fetcher, error) {
	switch job.Strategy {
	case models.StrategyBrowser:
		return fetch.NewBrowserFetcher(&s.config.Browser, s.config.Crawler.UserAgent, job.Origin, s.logger)
	case models.StrategySource:
		return fetch.NewSourceFetcher(ctx, job.Config.SourceRepo, job.Origin, s.config.Source.GithubToken, s.logger)
	default:
		return fetch.NewStaticFetcher(&s.config.Crawler, s.logger), nil
	}
}

// Ensure the crawler package's concrete service satisfies the Crawler
// contract used here
var _ Crawler = (*crawler.Service)(nil)
