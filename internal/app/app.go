package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/handlers"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/logs"
	"github.com/ternarybob/migro/internal/models"
	"github.com/ternarybob/migro/internal/services/assets"
	"github.com/ternarybob/migro/internal/services/crawler"
	"github.com/ternarybob/migro/internal/services/events"
	"github.com/ternarybob/migro/internal/services/importer"
	"github.com/ternarybob/migro/internal/services/llm"
	"github.com/ternarybob/migro/internal/services/mailer"
	"github.com/ternarybob/migro/internal/services/registry"
	"github.com/ternarybob/migro/internal/services/report"
	"github.com/ternarybob/migro/internal/services/rules"
	"github.com/ternarybob/migro/internal/services/scheduler"
	"github.com/ternarybob/migro/internal/services/templates"
	"github.com/ternarybob/migro/internal/services/transform"
	"github.com/ternarybob/migro/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Event bus and job-scoped log plumbing
	EventService interfaces.EventService
	LogConsumer  *logs.Consumer
	Registry     interfaces.JobRegistry

	// Pipeline services
	LLMService       interfaces.LLMService
	CrawlerService   *crawler.Service
	RulesService     *rules.Service
	TemplateService  *templates.Service
	TransformService *transform.Service
	AssetService     *assets.Service
	ImportService    *importer.Service

	// Supporting services
	ReportService    *report.Service
	MailerService    *mailer.Service
	SchedulerService *scheduler.Service
	Presets          *importer.PresetFile

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	ImportHandler   *handlers.ImportHandler
	ContentHandler  *handlers.ContentHandler
	TemplateHandler *handlers.TemplateHandler
	StatusHandler   *handlers.StatusHandler
	WSHandler       *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Event bus and WebSocket broadcaster come first so everything
	// initialized after them can publish
	app.EventService = events.NewService(app.Logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, app.Logger, &app.Config.WebSocket)

	// The log consumer drains arbor's context channel: loggers derived
	// with WithCorrelationId(jobID) feed per-job history and the live
	// log stream without services touching storage
	app.LogConsumer = logs.NewConsumer(
		app.StorageManager.JobLogStorage(),
		app.EventService,
		app.Logger,
		app.Config.WebSocket.MinLevel,
	)
	if err := app.LogConsumer.Start(); err != nil {
		return nil, fmt.Errorf("failed to start log consumer: %w", err)
	}
	app.Logger.SetChannel("context", app.LogConsumer.GetChannel())

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	app.subscribeToJobCompletion()
	app.startStaleJobSweeper()

	logger.Info().
		Str("llm_provider", string(cfg.LLM.DefaultProvider)).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Bool("mailer_enabled", app.MailerService.Enabled()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	manager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = manager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes the pipeline services in dependency order
func (a *App) initServices() error {
	var err error

	a.Registry = registry.NewRegistry()

	a.LLMService, err = llm.NewLLMService(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	a.Logger.Debug().Str("provider", string(a.Config.LLM.DefaultProvider)).Msg("LLM service initialized")

	a.CrawlerService = crawler.NewService(
		a.StorageManager.StagedItemStorage(),
		a.StorageManager.JobStorage(),
		a.Registry,
		a.EventService,
		a.Logger,
		&a.Config.Crawler,
	)

	a.RulesService = rules.NewService(
		a.LLMService,
		a.StorageManager.StagedItemStorage(),
		a.StorageManager.RuleSetStorage(),
		a.Registry,
		a.Logger,
		a.Config.Imports.ValidationSample,
	)

	a.TemplateService = templates.NewService(
		a.LLMService,
		a.StorageManager.StagedItemStorage(),
		a.StorageManager.TemplateStorage(),
		a.StorageManager.RuleSetStorage(),
		a.Registry,
		a.Logger,
	)

	a.AssetService = assets.NewService(
		a.StorageManager.AssetStorage(),
		&a.Config.Assets,
		a.Config.Crawler.UserAgent,
		a.Logger,
	)

	a.TransformService = transform.NewService(
		a.LLMService,
		a.StorageManager.StagedItemStorage(),
		a.StorageManager.RuleSetStorage(),
		a.StorageManager.ContentStorage(),
		a.AssetService,
		a.Registry,
		a.Logger,
	)

	a.ImportService = importer.NewService(
		a.StorageManager,
		a.CrawlerService,
		a.RulesService,
		a.TemplateService,
		a.TransformService,
		a.AssetService,
		a.Registry,
		a.EventService,
		a.Config,
		a.Logger,
	)
	a.Logger.Debug().Msg("Import orchestrator initialized")

	a.ReportService = report.NewService(a.StorageManager, a.Logger)
	a.MailerService = mailer.NewService(&a.Config.Mailer, a.Logger)

	a.Presets, err = importer.LoadPresets(a.Config.Imports.PresetsPath)
	if err != nil {
		return fmt.Errorf("failed to load import presets: %w", err)
	}
	a.Logger.Debug().
		Int("presets", len(a.Presets.Presets)).
		Str("path", a.Config.Imports.PresetsPath).
		Msg("Import presets loaded")

	a.SchedulerService = scheduler.NewService(a.ImportService, a.Logger)
	if a.Config.Scheduler.Enabled {
		if err := a.SchedulerService.Register(a.Presets); err != nil {
			return fmt.Errorf("failed to register scheduled imports: %w", err)
		}
		a.SchedulerService.Start()
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()

	a.ImportHandler = handlers.NewImportHandler(
		a.ImportService,
		a.StorageManager.JobLogStorage(),
		a.ReportService,
		a.Presets,
		a.Logger,
	)

	a.ContentHandler = handlers.NewContentHandler(
		a.StorageManager.ContentStorage(),
		a.StorageManager.TemplateStorage(),
		a.Logger,
	)

	a.TemplateHandler = handlers.NewTemplateHandler(
		a.StorageManager.TemplateStorage(),
		a.StorageManager.RuleSetStorage(),
		a.Logger,
	)

	a.StatusHandler = handlers.NewStatusHandler(a.StorageManager, a.Registry, a.Logger)

	return nil
}

// subscribeToJobCompletion wires terminal job status events to the
// completion report and email notification
func (a *App) subscribeToJobCompletion() {
	err := a.EventService.Subscribe(interfaces.EventImportStatus, func(_ context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			return nil
		}
		jobID, _ := payload["job_id"].(string)
		status, _ := payload["status"].(string)
		if jobID == "" || !models.JobStatus(status).IsTerminal() {
			return nil
		}

		common.SafeGo(a.Logger, "job-completion", func() {
			a.onJobFinished(jobID)
		})
		return nil
	})
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to subscribe to import status events")
	}
}

// onJobFinished generates the completion report and sends the optional
// email notification. Both are best-effort: a report failure never
// affects the job's recorded outcome.
func (a *App) onJobFinished(jobID string) {
	job, err := a.ImportService.GetStatus(jobID)
	if err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to load finished job")
		return
	}

	var reportPDF []byte
	reportPDF, err = a.ReportService.Generate(jobID)
	if err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to generate completion report")
		reportPDF = nil
	}

	if a.MailerService.Enabled() {
		if err := a.MailerService.NotifyJobFinished(job, reportPDF); err != nil {
			a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to send completion notification")
		}
	}
}

// startStaleJobSweeper periodically fails running jobs whose heartbeat
// has gone quiet, recovering from a crashed or killed process
func (a *App) startStaleJobSweeper() {
	staleAfter, err := time.ParseDuration(a.Config.Imports.StaleAfter)
	if err != nil || staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}

	common.SafeGo(a.Logger, "stale-job-sweeper", func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				marked, err := a.ImportService.MarkStaleJobs(staleAfter)
				if err != nil {
					a.Logger.Warn().Err(err).Msg("Stale job sweep failed")
					continue
				}
				if marked > 0 {
					a.Logger.Warn().Int("count", marked).Msg("Marked stale import jobs as failed")
				}
			case <-a.ctx.Done():
				a.Logger.Info().Msg("Stale job sweeper shutting down")
				return
			}
		}
	})
	a.Logger.Debug().Dur("stale_after", staleAfter).Msg("Stale job sweeper started")
}

// Close closes all application resources
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Cancelling background goroutines")
		a.cancelCtx()
	}

	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	if a.LogConsumer != nil {
		if err := a.LogConsumer.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop log consumer")
		}
	}

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
