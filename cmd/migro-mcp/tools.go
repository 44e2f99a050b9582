package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createStartImportTool returns the start_import tool definition
func createStartImportTool() mcp.Tool {
	return mcp.NewTool("start_import",
		mcp.WithDescription("Start a site import: crawl an external site or source repository and rebuild it as CMS content and templates"),
		mcp.WithString("origin",
			mcp.Description("Root URL of the site to import (required unless preset is given)"),
		),
		mcp.WithString("strategy",
			mcp.Description("Fetch strategy: static (plain HTTP), browser (headless render for SPAs), source (repository scan)"),
		),
		mcp.WithString("source_repo",
			mcp.Description("owner/repo or local path, required for the source strategy"),
		),
		mcp.WithNumber("page_budget",
			mcp.Description("Maximum number of pages to crawl (default from config)"),
		),
		mcp.WithBoolean("transform",
			mcp.Description("Run the transformation phase and create final content records (default: false)"),
		),
		mcp.WithBoolean("clear_existing",
			mcp.Description("Delete previously imported data for this job before starting"),
		),
		mcp.WithString("preset",
			mcp.Description("Name of a preset from presets.yaml; overrides all other parameters"),
		),
	)
}

// createCancelImportTool returns the cancel_import tool definition
func createCancelImportTool() mcp.Tool {
	return mcp.NewTool("cancel_import",
		mcp.WithDescription("Request best-effort cooperative cancellation of a running import job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Import job ID (format: job_{uuid})"),
		),
	)
}

// createImportStatusTool returns the import_status tool definition
func createImportStatusTool() mcp.Tool {
	return mcp.NewTool("import_status",
		mcp.WithDescription("Get the phase, status, progress message and page count of an import job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Import job ID (format: job_{uuid})"),
		),
	)
}

// createListImportsTool returns the list_imports tool definition
func createListImportsTool() mcp.Tool {
	return mcp.NewTool("list_imports",
		mcp.WithDescription("List import jobs, newest first, optionally filtered by status"),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20)"),
		),
		mcp.WithString("status",
			mcp.Description("Filter: queued, running, completed, failed, cancelled"),
		),
	)
}

// createListTemplatesTool returns the list_templates tool definition
func createListTemplatesTool() mcp.Tool {
	return mcp.NewTool("list_templates",
		mcp.WithDescription("List generated render templates and their editable regions"),
		mcp.WithString("page_type",
			mcp.Description("Filter by detected page type: page, product, article"),
		),
	)
}

// createGetContentTool returns the get_content tool definition
func createGetContentTool() mcp.Tool {
	return mcp.NewTool("get_content",
		mcp.WithDescription("Retrieve one imported content record by its slug"),
		mcp.WithString("slug",
			mcp.Required(),
			mcp.Description("Content slug (the root page uses the reserved slug \"home\")"),
		),
	)
}
