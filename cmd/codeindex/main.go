package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/dshills/codeindex-mcp/internal/mcp"
	"github.com/dshills/codeindex-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("CodeIndex MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Native FTS5: %v\n", storage.FTS5Native)
		os.Exit(0)
	}

	// Log to stderr, stdout is reserved for the MCP protocol
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "codeindex",
	})
	logger.Info("starting", "version", version, "build_mode", storage.BuildMode, "driver", storage.DriverName)

	// Get database path from environment or use default
	dbPath := os.Getenv("CODEINDEX_DB_PATH")
	if dbPath == "" {
		dbPath = mcp.DefaultDBDir
	}

	server, err := mcp.NewServer(dbPath, logger)
	if err != nil {
		logger.Fatal("failed to create MCP server", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Fatal("server error", "error", err)
		}
	}

	logger.Info("server stopped")
}
