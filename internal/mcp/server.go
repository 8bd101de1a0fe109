package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/codeindex-mcp/internal/graph"
	"github.com/dshills/codeindex-mcp/internal/ingest"
	"github.com/dshills/codeindex-mcp/internal/search"
	"github.com/dshills/codeindex-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "codeindex-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.1.0"
	// DefaultDBDir is the default location for the database
	DefaultDBDir = "~/.codeindex"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	ingestor *ingest.Ingestor
	searcher *search.Searcher
	tracker  *graph.Tracker
	logger   *log.Logger
}

// NewServer creates a new MCP server instance
func NewServer(dbPath string, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	// Expand the default home-relative location
	if dbPath == "" || dbPath == DefaultDBDir {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".codeindex")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbFile := filepath.Join(dbPath, "codeindex.db")

	store, err := storage.NewSQLiteStore(dbFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		ingestor: ingest.New(store, logger),
		searcher: search.NewSearcher(store),
		tracker:  graph.NewTracker(store, logger),
		logger:   logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(searchSymbolsTool(), s.handleSearchSymbols)
	s.mcp.AddTool(getDependenciesTool(), s.handleGetDependencies)
	s.mcp.AddTool(getDependentsTool(), s.handleGetDependents)
	s.mcp.AddTool(findPathsTool(), s.handleFindPaths)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	return nil
}
