package handlers

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// ContentHandler serves imported content records and an HTML preview
// that renders each editable region through its template's region types.
type ContentHandler struct {
	content   interfaces.ContentStorage
	templates interfaces.TemplateStorage
	markdown  goldmark.Markdown
	logger    arbor.ILogger
}

func NewContentHandler(content interfaces.ContentStorage, templates interfaces.TemplateStorage, logger arbor.ILogger) *ContentHandler {
	return &ContentHandler{
		content:   content,
		templates: templates,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(htmlrenderer.WithHardWraps()),
		),
		logger: logger,
	}
}

// ListHandler handles GET /api/content
func (h *ContentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	records, err := h.content.ListContent()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list content: "+err.Error())
		return
	}

	if contentType := r.URL.Query().Get("type"); contentType != "" {
		filtered := records[:0]
		for _, rec := range records {
			if string(rec.Type) == contentType {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	page, pageSize := GetPaginationParams(r)
	rows := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		rows = append(rows, map[string]interface{}{
			"slug":          rec.Slug,
			"title":         rec.Title,
			"type":          rec.Type,
			"source_url":    rec.SourceURL,
			"template_file": rec.TemplateFile,
			"job_id":        rec.JobID,
			"updated_at":    rec.UpdatedAt,
		})
	}

	paged, pagination := Paginate(rows, page, pageSize)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"content":    paged,
		"pagination": pagination,
	})
}

// GetHandler handles GET /api/content/{slug}
func (h *ContentHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	slug := PathSuffix(r, "/api/content/", "")
	if slug == "" {
		WriteError(w, http.StatusBadRequest, "Missing content slug")
		return
	}

	record, err := h.content.GetContent(slug)
	if err != nil {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("Content not found: %s", slug))
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// PreviewHandler handles GET /api/content/{slug}/preview and renders
// the record's fields as an HTML page
func (h *ContentHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	slug := PathSuffix(r, "/api/content/", "preview")
	if slug == "" {
		WriteError(w, http.StatusBadRequest, "Missing content slug")
		return
	}

	record, err := h.content.GetContent(slug)
	if err != nil {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("Content not found: %s", slug))
		return
	}

	// Region types drive rendering; without a template every field
	// falls back to markdown
	var regions []models.EditableRegion
	if record.TemplateFile != "" {
		if tmpl, err := h.templates.GetTemplate(record.TemplateFile); err == nil {
			regions = tmpl.Regions
		}
	}

	page, err := h.renderPreview(record, regions)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to render preview: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (h *ContentHandler) renderPreview(record *models.ContentRecord, regions []models.EditableRegion) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(record.Title))
	fmt.Fprintf(&buf, "<h1>%s</h1>\n", html.EscapeString(record.Title))

	regionType := make(map[string]models.RegionType, len(regions))
	for _, region := range regions {
		regionType[region.Name] = region.Type
	}

	names := make([]string, 0, len(record.Fields))
	for name := range record.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := record.Fields[name].(string)
		if !ok || value == "" || name == "title" {
			continue
		}

		fmt.Fprintf(&buf, "<section data-region=%q>\n", name)
		switch regionType[name] {
		case models.RegionTypeImage:
			for _, src := range strings.Split(value, "|") {
				if src = strings.TrimSpace(src); src != "" {
					fmt.Fprintf(&buf, "<img src=%q alt=%q>\n", src, name)
				}
			}
		case models.RegionTypeText:
			fmt.Fprintf(&buf, "<p>%s</p>\n", html.EscapeString(value))
		default:
			if err := h.markdown.Convert([]byte(value), &buf); err != nil {
				return nil, fmt.Errorf("failed to convert field %s: %w", name, err)
			}
		}
		buf.WriteString("</section>\n")
	}

	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}
