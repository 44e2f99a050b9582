package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/ternarybob/migro/internal/services/importer"
)

// ReportGenerator renders the PDF summary for a finished job
type ReportGenerator interface {
	Generate(jobID string) ([]byte, error)
}

// ImportHandler exposes the import job lifecycle over HTTP: start,
// cancel, status, job logs and the PDF report download.
type ImportHandler struct {
	imports interfaces.ImportService
	logs    interfaces.JobLogStorage
	report  ReportGenerator
	presets *importer.PresetFile
	logger  arbor.ILogger
}

func NewImportHandler(imports interfaces.ImportService, logs interfaces.JobLogStorage, report ReportGenerator, presets *importer.PresetFile, logger arbor.ILogger) *ImportHandler {
	return &ImportHandler{
		imports: imports,
		logs:    logs,
		report:  report,
		presets: presets,
		logger:  logger,
	}
}

// startRequest is the POST body for starting an import: either a named
// preset or an inline configuration.
type startRequest struct {
	Preset string `json:"preset,omitempty"`
	models.ImportConfig
}

// StartHandler handles POST /api/imports
func (h *ImportHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	cfg := req.ImportConfig
	if req.Preset != "" {
		preset, ok := h.presets.Presets[req.Preset]
		if !ok {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Unknown preset: %s", req.Preset))
			return
		}
		cfg = preset.ImportConfig()
	}

	jobID, err := h.imports.StartImport(r.Context(), cfg)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().Str("job_id", jobID).Str("origin", cfg.Origin).Msg("Import started via API")
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"job_id": jobID,
	})
}

// CancelHandler handles POST /api/imports/{id}/cancel
func (h *ImportHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID := PathSuffix(r, "/api/imports/", "cancel")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Missing job id")
		return
	}

	if err := h.imports.CancelImport(jobID); err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	WriteSuccess(w, "Cancellation requested")
}

// StatusHandler handles GET /api/imports/{id}
func (h *ImportHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := PathSuffix(r, "/api/imports/", "")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Missing job id")
		return
	}

	job, err := h.imports.GetStatus(jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("Job not found: %s", jobID))
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// ListHandler handles GET /api/imports
func (h *ImportHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobs, err := h.imports.ListImports()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list imports: "+err.Error())
		return
	}

	page, pageSize := GetPaginationParams(r)
	rows := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, map[string]interface{}{
			"id":         job.ID,
			"origin":     job.Origin,
			"strategy":   job.Strategy,
			"status":     job.Status,
			"phase":      job.Phase,
			"message":    job.Message,
			"page_count": job.PageCount,
			"created_at": job.CreatedAt,
			"updated_at": job.UpdatedAt,
		})
	}

	paged, pagination := Paginate(rows, page, pageSize)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"imports":    paged,
		"pagination": pagination,
	})
}

// LogsHandler handles GET /api/imports/{id}/logs
func (h *ImportHandler) LogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := PathSuffix(r, "/api/imports/", "logs")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Missing job id")
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	entries, err := h.logs.GetByJob(jobID, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load job logs: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"logs":   entries,
		"count":  len(entries),
	})
}

// ReportHandler handles GET /api/imports/{id}/report and streams the
// PDF summary for the job
func (h *ImportHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := PathSuffix(r, "/api/imports/", "report")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Missing job id")
		return
	}

	data, err := h.report.Generate(jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Failed to generate report: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "import-"+jobID+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
