package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Sideloaded assets (images, PDFs) are served straight from disk
	mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(s.app.Config.Assets.Dir))))

	// API routes - Imports (job lifecycle)
	mux.HandleFunc("/api/imports", s.handleImportsRoute) // GET (list), POST (start)
	mux.HandleFunc("/api/imports/", s.handleImportRoutes)

	// API routes - Imported content
	mux.HandleFunc("/api/content", s.app.ContentHandler.ListHandler)
	mux.HandleFunc("/api/content/", s.handleContentRoutes)

	// API routes - Templates and extraction rules
	mux.HandleFunc("/api/templates", s.app.TemplateHandler.ListHandler)
	mux.HandleFunc("/api/templates/", s.app.TemplateHandler.GetHandler)
	mux.HandleFunc("/api/rulesets/", s.app.TemplateHandler.RuleSetHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.StatusHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleImportsRoute routes the imports collection endpoint
func (s *Server) handleImportsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.ImportHandler.ListHandler, s.app.ImportHandler.StartHandler)
}

// handleImportRoutes routes per-job import requests: cancel, logs,
// report and status
func (s *Server) handleImportRoutes(w http.ResponseWriter, r *http.Request) {
	matched := RouteByPathSuffix(w, r, "/api/imports/", []PathSuffixRouter{
		{Suffix: "/cancel", Handler: s.app.ImportHandler.CancelHandler},
		{Suffix: "/logs", Handler: s.app.ImportHandler.LogsHandler},
		{Suffix: "/report", Handler: s.app.ImportHandler.ReportHandler},
	})
	if matched {
		return
	}

	// GET /api/imports/{id}
	s.app.ImportHandler.StatusHandler(w, r)
}

// handleContentRoutes routes per-record content requests
func (s *Server) handleContentRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/preview") {
		s.app.ContentHandler.PreviewHandler(w, r)
		return
	}
	s.app.ContentHandler.GetHandler(w, r)
}

// ShutdownHandler handles POST /api/shutdown and signals the main
// process to stop
func (s *Server) ShutdownHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.app.Logger.Info().Msg("Shutdown requested via API")
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"shutting down"}`))

	select {
	case <-s.shutdown:
		// Already signalled
	default:
		close(s.shutdown)
	}
}
