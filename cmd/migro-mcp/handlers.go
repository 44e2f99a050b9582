package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/ternarybob/migro/internal/services/importer"
)

// handleStartImport implements the start_import tool
func handleStartImport(imports interfaces.ImportService, presets *importer.PresetFile, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var cfg models.ImportConfig

		if name := request.GetString("preset", ""); name != "" {
			preset, ok := presets.Presets[name]
			if !ok {
				return &mcp.CallToolResult{
					Content: []mcp.Content{
						mcp.NewTextContent(fmt.Sprintf("Error: unknown preset %q (known: %v)", name, presets.Names())),
					},
				}, nil
			}
			cfg = preset.ImportConfig()
		} else {
			origin, err := request.RequireString("origin")
			if err != nil || origin == "" {
				return &mcp.CallToolResult{
					Content: []mcp.Content{
						mcp.NewTextContent("Error: origin parameter is required when no preset is given"),
					},
				}, nil
			}
			cfg = models.ImportConfig{
				Origin:        origin,
				Strategy:      models.FetchStrategy(request.GetString("strategy", "")),
				SourceRepo:    request.GetString("source_repo", ""),
				PageBudget:    request.GetInt("page_budget", 0),
				ClearExisting: request.GetBool("clear_existing", false),
			}
			// An omitted transform argument defers to the server default
			if v, ok := request.GetArguments()["transform"].(bool); ok {
				cfg.Transform = &v
			}
		}

		jobID, err := imports.StartImport(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Str("origin", cfg.Origin).Msg("Start import failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Start error: %v", err)),
				},
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(formatStarted(jobID, cfg)),
			},
		}, nil
	}
}

// handleCancelImport implements the cancel_import tool
func handleCancelImport(imports interfaces.ImportService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: job_id parameter is required"),
				},
			}, nil
		}

		if err := imports.CancelImport(jobID); err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Cancel failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Cancel error: %v", err)),
				},
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(fmt.Sprintf("Cancellation requested for %s. Cancellation is cooperative: the job stops at its next phase or crawl-loop boundary.", jobID)),
			},
		}, nil
	}
}

// handleImportStatus implements the import_status tool
func handleImportStatus(imports interfaces.ImportService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: job_id parameter is required"),
				},
			}, nil
		}

		job, err := imports.GetStatus(jobID)
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Status lookup failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Job not found: %v", err)),
				},
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(formatJobStatus(job)),
			},
		}, nil
	}
}

// handleListImports implements the list_imports tool
func handleListImports(imports interfaces.ImportService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		status := models.JobStatus(request.GetString("status", ""))

		jobs, err := imports.ListImports()
		if err != nil {
			logger.Error().Err(err).Msg("List imports failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("List error: %v", err)),
				},
			}, nil
		}

		filtered := make([]*models.ImportJob, 0, len(jobs))
		for _, job := range jobs {
			if status != "" && job.Status != status {
				continue
			}
			filtered = append(filtered, job)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(formatImportList(filtered, limit)),
			},
		}, nil
	}
}

// handleListTemplates implements the list_templates tool
func handleListTemplates(store interfaces.TemplateStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var (
			templates []*models.Template
			err       error
		)
		if pageType := request.GetString("page_type", ""); pageType != "" {
			templates, err = store.ListByPageType(pageType)
		} else {
			templates, err = store.ListTemplates()
		}
		if err != nil {
			logger.Error().Err(err).Msg("List templates failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("List error: %v", err)),
				},
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(formatTemplates(templates)),
			},
		}, nil
	}
}

// handleGetContent implements the get_content tool
func handleGetContent(store interfaces.ContentStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slug, err := request.RequireString("slug")
		if err != nil || slug == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: slug parameter is required"),
				},
			}, nil
		}

		record, err := store.GetContent(slug)
		if err != nil {
			logger.Error().Err(err).Str("slug", slug).Msg("Content lookup failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Content not found: %v", err)),
				},
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(formatContent(record)),
			},
		}, nil
	}
}

// age renders a coarse human-readable elapsed time for listings
func age(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
