package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/ternarybob/migro/internal/services/importer"
)

// entry tracks one scheduled recurring import
type entry struct {
	name     string
	schedule string
	cronID   cron.EntryID
	lastRun  *time.Time
	lastErr  string
}

// Service runs recurring imports on cron schedules taken from the
// preset file. A preset without a schedule is ignored here; it remains
// available for manual starts.
type Service struct {
	imports interfaces.ImportService
	cron    *cron.Cron
	logger  arbor.ILogger

	mu      sync.Mutex
	entries map[string]*entry
	running bool
}

// NewService creates the recurring-import scheduler
func NewService(imports interfaces.ImportService, logger arbor.ILogger) *Service {
	return &Service{
		imports: imports,
		cron:    cron.New(),
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Register adds every scheduled preset to the cron table
func (s *Service) Register(presets *importer.PresetFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range presets.Names() {
		preset := presets.Presets[name]
		if preset.Schedule == "" {
			continue
		}

		presetName := name
		cfg := preset.ImportConfig()
		id, err := s.cron.AddFunc(preset.Schedule, func() {
			s.runScheduled(presetName, cfg)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule for preset %q: %w", name, err)
		}

		s.entries[name] = &entry{name: name, schedule: preset.Schedule, cronID: id}
		s.logger.Info().
			Str("preset", name).
			Str("schedule", preset.Schedule).
			Str("origin", cfg.Origin).
			Msg("Scheduled recurring import")
	}

	return nil
}

// Start begins executing registered schedules
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("schedules", len(s.entries)).Msg("Scheduler started")
}

// Stop halts the cron table and waits for in-flight triggers
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// Entries returns a snapshot of the scheduled imports
func (s *Service) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

func (s *Service) runScheduled(name string, cfg models.ImportConfig) {
	now := time.Now()
	jobID, err := s.imports.StartImport(context.Background(), cfg)

	s.mu.Lock()
	if e, ok := s.entries[name]; ok {
		e.lastRun = &now
		if err != nil {
			e.lastErr = err.Error()
		} else {
			e.lastErr = ""
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("preset", name).Msg("Scheduled import failed to start")
		return
	}
	s.logger.Info().Str("preset", name).Str("job_id", jobID).Msg("Scheduled import started")
}
