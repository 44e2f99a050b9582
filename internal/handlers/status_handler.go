package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
)

// StatusHandler reports application-level status: store counts and the
// imports currently running.
type StatusHandler struct {
	storage   interfaces.StorageManager
	registry  interfaces.JobRegistry
	logger    arbor.ILogger
	startedAt time.Time
}

func NewStatusHandler(storage interfaces.StorageManager, registry interfaces.JobRegistry, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		storage:   storage,
		registry:  registry,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// StatusHandler handles GET /api/status
func (h *StatusHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	contentCount, err := h.storage.ContentStorage().CountContent()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count content records")
	}
	templateCount, err := h.storage.TemplateStorage().CountTemplates()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count templates")
	}

	jobs, err := h.storage.JobStorage().ListJobs()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to list jobs")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        common.GetVersion(),
		"uptime":         time.Since(h.startedAt).Round(time.Second).String(),
		"active_imports": h.registry.Active(),
		"total_imports":  len(jobs),
		"content_count":  contentCount,
		"template_count": templateCount,
	})
}
