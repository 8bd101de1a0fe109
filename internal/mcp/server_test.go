package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeindex-mcp/internal/storage"
	"github.com/dshills/codeindex-mcp/pkg/types"
)

func newSymbol(fileID int64, name string) *storage.Symbol {
	return &storage.Symbol{FileID: fileID, Name: name, Kind: "function", LineStart: 1, LineEnd: 1}
}

func newRelationship(source, target int64) *types.Relationship {
	return &types.Relationship{SourceID: source, TargetID: target, Type: types.RelCalls, Confidence: 1}
}

func setupServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.storage.Close() })
	return server
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestServerInitialization(t *testing.T) {
	server := setupServer(t)

	assert.NotNil(t, server.mcp)
	assert.NotNil(t, server.storage)
	assert.NotNil(t, server.ingestor)
	assert.NotNil(t, server.searcher)
	assert.NotNil(t, server.tracker)
}

func TestHandleIndexRepository(t *testing.T) {
	server := setupServer(t)
	root := t.TempDir()
	writeSource(t, root, "main.py", "def main():\n    launch()\n")

	result, err := server.handleIndexRepository(context.Background(), callRequest(map[string]interface{}{
		"path": root,
	}))
	require.NoError(t, err)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &response))
	assert.Equal(t, true, response["indexed"])
	assert.Equal(t, float64(1), response["files_indexed"])
}

func TestHandleIndexRepositoryRejectsRelativePath(t *testing.T) {
	server := setupServer(t)

	_, err := server.handleIndexRepository(context.Background(), callRequest(map[string]interface{}{
		"path": "relative/path",
	}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeRepoNotFound, mcpErr.Code)
}

func TestHandleIndexRepositoryMissingPath(t *testing.T) {
	server := setupServer(t)

	_, err := server.handleIndexRepository(context.Background(), callRequest(map[string]interface{}{}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleSearchCode(t *testing.T) {
	server := setupServer(t)
	root := t.TempDir()
	writeSource(t, root, "engine.py", "def ignite_thrusters():\n    pass\n")

	_, err := server.handleIndexRepository(context.Background(), callRequest(map[string]interface{}{
		"path": root,
	}))
	require.NoError(t, err)

	result, err := server.handleSearchCode(context.Background(), callRequest(map[string]interface{}{
		"query": "thrusters",
	}))
	require.NoError(t, err)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &response))
	assert.Equal(t, float64(1), response["total"])
}

func TestHandleSearchCodeEmptyQuery(t *testing.T) {
	server := setupServer(t)

	_, err := server.handleSearchCode(context.Background(), callRequest(map[string]interface{}{
		"query": "",
	}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeEmptyQuery, mcpErr.Code)
}

func TestHandleSearchCodeLimitBounds(t *testing.T) {
	server := setupServer(t)

	_, err := server.handleSearchCode(context.Background(), callRequest(map[string]interface{}{
		"query": "x",
		"limit": float64(500),
	}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleSearchSymbols(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()

	repoID, err := server.storage.CreateRepository(ctx, "/tmp/symrepo", "symrepo", nil)
	require.NoError(t, err)
	fileID, err := server.storage.StoreFile(ctx, repoID, "/tmp/symrepo/api.py", []byte("# api"), nil)
	require.NoError(t, err)
	require.NoError(t, server.storage.StoreSymbol(ctx, newSymbol(fileID, "fetchRecords")))

	result, err := server.handleSearchSymbols(ctx, callRequest(map[string]interface{}{
		"query": "fetchrec",
	}))
	require.NoError(t, err)
	assert.True(t, strings.Contains(resultText(t, result), "fetchRecords"))
}

func TestHandleGraphTools(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()

	_, err := server.tracker.AddRelationship(ctx, newRelationship(1, 2))
	require.NoError(t, err)
	_, err = server.tracker.AddRelationship(ctx, newRelationship(2, 3))
	require.NoError(t, err)

	deps, err := server.handleGetDependencies(ctx, callRequest(map[string]interface{}{
		"entity_id": float64(1),
		"depth":     float64(2),
	}))
	require.NoError(t, err)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, deps)), &response))
	assert.Equal(t, float64(2), response["total"])

	rdeps, err := server.handleGetDependents(ctx, callRequest(map[string]interface{}{
		"entity_id": float64(3),
	}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(resultText(t, rdeps)), &response))
	assert.Equal(t, float64(1), response["total"])

	paths, err := server.handleFindPaths(ctx, callRequest(map[string]interface{}{
		"source_id": float64(1),
		"target_id": float64(3),
	}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(resultText(t, paths)), &response))
	assert.Equal(t, float64(1), response["total"])
}

func TestHandleGraphToolsValidation(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()

	_, err := server.handleGetDependencies(ctx, callRequest(map[string]interface{}{}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeEntityRequired, mcpErr.Code)

	_, err = server.handleGetDependencies(ctx, callRequest(map[string]interface{}{
		"entity_id":          float64(1),
		"relationship_types": []interface{}{"levitates"},
	}))
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleGetStatus(t *testing.T) {
	server := setupServer(t)

	result, err := server.handleGetStatus(context.Background(), callRequest(map[string]interface{}{}))
	require.NoError(t, err)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &response))
	health, ok := response["health"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "healthy", health["status"])
}
