package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/migro/internal/app"
	"github.com/ternarybob/migro/internal/common"
)

func main() {
	// Load configuration
	configPath := os.Getenv("MIGRO_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("migro.toml"); err == nil {
			configPath = "migro.toml"
		}
	}

	config, err := common.LoadFromFiles(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Console-only logger at warn level to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	// The MCP binary owns the Badger store while it runs, so it carries
	// the full application: starting an import needs the whole pipeline
	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"migro",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register import lifecycle tools
	mcpServer.AddTool(createStartImportTool(), handleStartImport(application.ImportService, application.Presets, logger))
	mcpServer.AddTool(createCancelImportTool(), handleCancelImport(application.ImportService, logger))
	mcpServer.AddTool(createImportStatusTool(), handleImportStatus(application.ImportService, logger))
	mcpServer.AddTool(createListImportsTool(), handleListImports(application.ImportService, logger))

	// Register imported artifact tools
	mcpServer.AddTool(createListTemplatesTool(), handleListTemplates(application.StorageManager.TemplateStorage(), logger))
	mcpServer.AddTool(createGetContentTool(), handleGetContent(application.StorageManager.ContentStorage(), logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
