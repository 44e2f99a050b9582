package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/migro/internal/models"
)

// formatStarted formats the start_import confirmation as markdown
func formatStarted(jobID string, cfg models.ImportConfig) string {
	var sb strings.Builder
	sb.WriteString("## Import Started\n\n")
	sb.WriteString(fmt.Sprintf("**Job ID:** %s\n", jobID))
	sb.WriteString(fmt.Sprintf("**Origin:** %s\n", cfg.Origin))
	if cfg.Strategy != "" {
		sb.WriteString(fmt.Sprintf("**Strategy:** %s\n", cfg.Strategy))
	}
	if cfg.PageBudget > 0 {
		sb.WriteString(fmt.Sprintf("**Page budget:** %d\n", cfg.PageBudget))
	}
	transform := "server default"
	if cfg.Transform != nil {
		transform = fmt.Sprintf("%t", *cfg.Transform)
	}
	sb.WriteString(fmt.Sprintf("**Transform:** %s\n\n", transform))
	sb.WriteString("Use import_status with this job ID to follow progress.\n")
	return sb.String()
}

// formatJobStatus formats a single job as markdown
func formatJobStatus(job *models.ImportJob) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Import %s\n\n", job.ID))
	sb.WriteString(fmt.Sprintf("**Origin:** %s\n", job.Origin))
	sb.WriteString(fmt.Sprintf("**Strategy:** %s\n", job.Strategy))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("**Phase:** %s\n", job.Phase))
	sb.WriteString(fmt.Sprintf("**Pages:** %d\n", job.PageCount))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n", job.CreatedAt.Format(time.RFC3339)))
	if job.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("**Finished:** %s\n", job.CompletedAt.Format(time.RFC3339)))
	}
	sb.WriteString(fmt.Sprintf("\n**Progress:** %s\n", job.Message))
	if job.Error != "" {
		sb.WriteString(fmt.Sprintf("\n**Error:** %s\n", job.Error))
	}
	return sb.String()
}

// formatImportList formats a job list as markdown, newest first
func formatImportList(jobs []*models.ImportJob, limit int) string {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Import Jobs (%d)\n\n", len(jobs)))

	if len(jobs) == 0 {
		sb.WriteString("No import jobs found.\n")
		return sb.String()
	}

	for i, job := range jobs {
		sb.WriteString(fmt.Sprintf("%d. **%s** — %s\n", i+1, job.ID, job.Origin))
		sb.WriteString(fmt.Sprintf("   %s / %s, %d pages, started %s\n", job.Status, job.Phase, job.PageCount, age(job.CreatedAt)))
		if job.Message != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", job.Message))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatTemplates formats generated templates as markdown
func formatTemplates(templates []*models.Template) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Generated Templates (%d)\n\n", len(templates)))

	if len(templates) == 0 {
		sb.WriteString("No templates found.\n")
		return sb.String()
	}

	for i, tmpl := range templates {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, tmpl.Filename))
		sb.WriteString(fmt.Sprintf("**Page type:** %s\n", tmpl.PageType))
		sb.WriteString(fmt.Sprintf("**Job:** %s\n", tmpl.JobID))
		sb.WriteString(fmt.Sprintf("**Updated:** %s\n\n", tmpl.UpdatedAt.Format(time.RFC3339)))

		if len(tmpl.Regions) > 0 {
			sb.WriteString("**Editable regions:**\n")
			for _, region := range tmpl.Regions {
				multiple := ""
				if region.Multiple {
					multiple = ", multiple"
				}
				sb.WriteString(fmt.Sprintf("- %s (%s%s): %s\n", region.Name, region.Type, multiple, region.Label))
			}
		}
		sb.WriteString("\n---\n\n")
	}

	return sb.String()
}

// formatContent formats one content record as markdown
func formatContent(record *models.ContentRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", record.Title))
	sb.WriteString(fmt.Sprintf("**Slug:** %s\n", record.Slug))
	sb.WriteString(fmt.Sprintf("**Type:** %s\n", record.Type))
	sb.WriteString(fmt.Sprintf("**Source:** %s\n", record.SourceURL))
	sb.WriteString(fmt.Sprintf("**Template:** %s\n", record.TemplateFile))
	sb.WriteString(fmt.Sprintf("**Updated:** %s\n\n", record.UpdatedAt.Format(time.RFC3339)))

	if len(record.Fields) > 0 {
		sb.WriteString("## Fields\n\n```json\n")
		fieldsJSON, _ := json.MarshalIndent(record.Fields, "", "  ")
		sb.WriteString(string(fieldsJSON))
		sb.WriteString("\n```\n")
	}

	return sb.String()
}
