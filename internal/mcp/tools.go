package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codeindex-mcp/internal/ingest"
	"github.com/dshills/codeindex-mcp/internal/search"
	"github.com/dshills/codeindex-mcp/internal/storage"
	"github.com/dshills/codeindex-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeRepoNotFound   = -32001 // Specified path is not a readable directory
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
	ErrorCodeEntityRequired = -32005 // Entity id parameter missing
)

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeRepoNotFound, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	config := &ingest.Config{
		IncludeHidden: getBoolDefault(args, "include_hidden", false),
		IncludeVendor: getBoolDefault(args, "include_vendor", false),
	}

	stats, err := s.ingestor.IndexRepository(ctx, path, config)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// The index changed under any cached queries
	s.searcher.InvalidateCache()

	response := map[string]interface{}{
		"indexed":       true,
		"files_indexed": stats.FilesIndexed,
		"files_skipped": stats.FilesSkipped,
		"files_moved":   stats.FilesMoved,
		"files_deleted": stats.FilesDeleted,
		"files_failed":  stats.FilesFailed,
		"duration_ms":   stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	offset := getIntDefault(args, "offset", 0)

	resp, err := s.searcher.Search(ctx, search.Request{
		Query:    query,
		Mode:     search.ModeText,
		Limit:    limit,
		Offset:   offset,
		UseCache: true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":       query,
		"total":       resp.TotalResults,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
		"results":     formatSearchResults(resp.Results),
	})), nil
}

// handleSearchSymbols handles the search_symbols tool invocation
func (s *Server) handleSearchSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := search.ModeFuzzy
	if getStringDefault(args, "mode", "fuzzy") == "exact" {
		mode = search.ModeSymbols
	}

	resp, err := s.searcher.Search(ctx, search.Request{
		Query:    query,
		Mode:     mode,
		Limit:    limit,
		UseCache: true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "symbol search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":   query,
		"total":   resp.TotalResults,
		"results": formatSearchResults(resp.Results),
	})), nil
}

// handleGetDependencies handles the get_dependencies tool invocation
func (s *Server) handleGetDependencies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityID, depth, typeFilter, err := parseTraversalArgs(request)
	if err != nil {
		return nil, err
	}

	edges, terr := s.tracker.Dependencies(ctx, entityID, depth, typeFilter)
	if terr != nil {
		return nil, newMCPError(ErrorCodeInternalError, "traversal failed", map[string]interface{}{
			"error": terr.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"entity_id": entityID,
		"depth":     depth,
		"total":     len(edges),
		"edges":     formatEdges(edges),
	})), nil
}

// handleGetDependents handles the get_dependents tool invocation
func (s *Server) handleGetDependents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityID, depth, typeFilter, err := parseTraversalArgs(request)
	if err != nil {
		return nil, err
	}

	edges, terr := s.tracker.Dependents(ctx, entityID, depth, typeFilter)
	if terr != nil {
		return nil, newMCPError(ErrorCodeInternalError, "traversal failed", map[string]interface{}{
			"error": terr.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"entity_id": entityID,
		"depth":     depth,
		"total":     len(edges),
		"edges":     formatEdges(edges),
	})), nil
}

// handleFindPaths handles the find_paths tool invocation
func (s *Server) handleFindPaths(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sourceID, ok := getInt64(args, "source_id")
	if !ok {
		return nil, newMCPError(ErrorCodeEntityRequired, "source_id parameter is required", nil)
	}
	targetID, ok := getInt64(args, "target_id")
	if !ok {
		return nil, newMCPError(ErrorCodeEntityRequired, "target_id parameter is required", nil)
	}
	maxDepth := getIntDefault(args, "max_depth", 5)
	if maxDepth < 1 || maxDepth > 10 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_depth must be between 1 and 10", map[string]interface{}{
			"param": "max_depth",
			"value": maxDepth,
		})
	}
	typeFilter, perr := parseTypeFilter(args)
	if perr != nil {
		return nil, perr
	}

	paths, err := s.tracker.FindPaths(ctx, sourceID, targetID, maxDepth, typeFilter)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "path search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	formatted := make([]map[string]interface{}, 0, len(paths))
	for _, p := range paths {
		formatted = append(formatted, map[string]interface{}{
			"nodes": p.Nodes,
			"edges": formatEdges(p.Edges),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"source_id": sourceID,
		"target_id": targetID,
		"total":     len(paths),
		"paths":     formatted,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.storage.GetStatistics(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get statistics", map[string]interface{}{
			"error": err.Error(),
		})
	}
	health := s.storage.HealthCheck(ctx)

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"repositories":  stats.Repositories,
			"files":         stats.Files,
			"deleted_files": stats.DeletedFiles,
			"symbols":       stats.Symbols,
			"references":    stats.References,
			"imports":       stats.Imports,
			"relationships": stats.Relationships,
			"file_moves":    stats.FileMoves,
			"index_size_mb": fmt.Sprintf("%.2f", stats.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"status":         health.Status,
			"fts5_available": health.FTS5Available,
			"wal_active":     health.WALActive,
			"schema_version": health.SchemaVersion,
		},
	}
	if health.LastError != "" {
		response["health"].(map[string]interface{})["last_error"] = health.LastError
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// parseTraversalArgs extracts the shared arguments of the two
// directional traversal tools.
func parseTraversalArgs(request mcp.CallToolRequest) (int64, int, []types.RelationshipType, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return 0, 0, nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	entityID, ok := getInt64(args, "entity_id")
	if !ok {
		return 0, 0, nil, newMCPError(ErrorCodeEntityRequired, "entity_id parameter is required", nil)
	}

	depth := getIntDefault(args, "depth", 1)
	if depth < 1 || depth > 10 {
		return 0, 0, nil, newMCPError(ErrorCodeInvalidParams, "depth must be between 1 and 10", map[string]interface{}{
			"param": "depth",
			"value": depth,
		})
	}

	typeFilter, err := parseTypeFilter(args)
	if err != nil {
		return 0, 0, nil, err
	}

	return entityID, depth, typeFilter, nil
}

// parseTypeFilter extracts the optional relationship_types argument
func parseTypeFilter(args map[string]interface{}) ([]types.RelationshipType, error) {
	raw, ok := args["relationship_types"].([]interface{})
	if !ok {
		return nil, nil
	}

	var typeFilter []types.RelationshipType
	for _, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rt := types.RelationshipType(str)
		if !rt.IsValid() {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid relationship type", map[string]interface{}{
				"param": "relationship_types",
				"value": str,
			})
		}
		typeFilter = append(typeFilter, rt)
	}
	return typeFilter, nil
}

// formatSearchResults shapes results for the JSON response
func formatSearchResults(results []types.SearchResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		item := map[string]interface{}{
			"rank":  r.Rank,
			"score": r.Score,
		}
		if r.SymbolID != 0 {
			item["symbol_id"] = r.SymbolID
		}
		if r.FileID != 0 {
			item["file_id"] = r.FileID
		}
		if r.Snippet != "" {
			item["snippet"] = r.Snippet
		}
		if r.Symbol != nil {
			item["symbol"] = map[string]interface{}{
				"name":      r.Symbol.Name,
				"kind":      string(r.Symbol.Kind),
				"signature": r.Symbol.Signature,
			}
		}
		if r.File != nil {
			item["file"] = map[string]interface{}{
				"path":     r.File.Path,
				"language": r.File.Language,
				"line":     r.File.Line,
			}
		}
		out = append(out, item)
	}
	return out
}

// formatEdges shapes graph edges for the JSON response
func formatEdges(edges []*storage.Edge) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(edges))
	for _, e := range edges {
		item := map[string]interface{}{
			"id":         e.ID,
			"source_id":  e.SourceID,
			"target_id":  e.TargetID,
			"type":       string(e.Type),
			"confidence": e.Confidence,
		}
		if e.SourceName != "" {
			item["source_name"] = e.SourceName
		}
		if e.TargetName != "" {
			item["target_name"] = e.TargetName
		}
		if e.TargetFile != "" {
			item["target_file"] = e.TargetFile
			item["target_line"] = e.TargetLine
		}
		out = append(out, item)
	}
	return out
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getInt64 extracts a required integer parameter
func getInt64(args map[string]interface{}, key string) (int64, bool) {
	if val, ok := args[key].(float64); ok {
		return int64(val), true
	}
	if val, ok := args[key].(int64); ok {
		return val, true
	}
	if val, ok := args[key].(int); ok {
		return int64(val), true
	}
	return 0, false
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
