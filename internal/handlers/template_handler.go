package handlers

import (
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
)

// TemplateHandler serves generated render templates and the extraction
// ruleset behind them.
type TemplateHandler struct {
	templates interfaces.TemplateStorage
	rulesets  interfaces.RuleSetStorage
	logger    arbor.ILogger
}

func NewTemplateHandler(templates interfaces.TemplateStorage, rulesets interfaces.RuleSetStorage, logger arbor.ILogger) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		rulesets:  rulesets,
		logger:    logger,
	}
}

// ListHandler handles GET /api/templates
func (h *TemplateHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	var err error
	templates, err := h.templates.ListTemplates()
	if pageType := r.URL.Query().Get("page_type"); pageType != "" {
		templates, err = h.templates.ListByPageType(pageType)
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list templates: "+err.Error())
		return
	}

	rows := make([]map[string]interface{}, 0, len(templates))
	for _, tmpl := range templates {
		rows = append(rows, map[string]interface{}{
			"filename":   tmpl.Filename,
			"page_type":  tmpl.PageType,
			"regions":    len(tmpl.Regions),
			"job_id":     tmpl.JobID,
			"updated_at": tmpl.UpdatedAt,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"templates": rows,
		"count":     len(rows),
	})
}

// GetHandler handles GET /api/templates/{filename}; ?raw=true returns
// the template code as HTML instead of the JSON record
func (h *TemplateHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	filename := PathSuffix(r, "/api/templates/", "")
	if filename == "" {
		WriteError(w, http.StatusBadRequest, "Missing template filename")
		return
	}

	tmpl, err := h.templates.GetTemplate(filename)
	if err != nil {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("Template not found: %s", filename))
		return
	}

	if r.URL.Query().Get("raw") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(tmpl.Code))
		return
	}

	WriteJSON(w, http.StatusOK, tmpl)
}

// RuleSetHandler handles GET /api/rulesets/{jobID}
func (h *TemplateHandler) RuleSetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := PathSuffix(r, "/api/rulesets/", "")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Missing job id")
		return
	}

	ruleset, err := h.rulesets.GetRuleSet(jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("Ruleset not found for job: %s", jobID))
		return
	}

	WriteJSON(w, http.StatusOK, ruleset)
}
