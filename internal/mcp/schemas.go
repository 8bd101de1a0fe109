package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Index a source repository to make its files searchable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the repository root",
				},
				"include_hidden": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, descend into dot-directories",
					"default":     false,
				},
				"include_vendor": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index dependency directories (vendor, node_modules)",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Full-text search over indexed file content with BM25 ranking",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (FTS5 syntax supported)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of results to skip for pagination",
					"default":     0,
					"minimum":     0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// searchSymbolsTool returns the tool definition for search_symbols
func searchSymbolsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_symbols",
		Description: "Fuzzy search over symbol names; partial and misspelled queries still match",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Symbol name or fragment",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Matching strategy: fuzzy (trigram) or exact (FTS with highlights)",
					"enum":        []string{"fuzzy", "exact"},
					"default":     "fuzzy",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getDependenciesTool returns the tool definition for get_dependencies
func getDependenciesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_dependencies",
		Description: "List entities the given entity depends on, following outgoing relationships",
		InputSchema: graphTraversalSchema(),
	}
}

// getDependentsTool returns the tool definition for get_dependents
func getDependentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_dependents",
		Description: "List entities that depend on the given entity, following incoming relationships",
		InputSchema: graphTraversalSchema(),
	}
}

// graphTraversalSchema is the shared input shape for the two
// directional traversal tools.
func graphTraversalSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"entity_id": map[string]interface{}{
				"type":        "integer",
				"description": "Identifier of the entity to traverse from",
			},
			"depth": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum traversal depth in hops",
				"default":     1,
				"minimum":     1,
				"maximum":     10,
			},
			"relationship_types": map[string]interface{}{
				"type":        "array",
				"description": "Restrict traversal to these edge types",
				"items": map[string]interface{}{
					"type": "string",
					"enum": []string{"calls", "inherits", "imports", "uses", "contains"},
				},
			},
		},
		Required: []string{"entity_id"},
	}
}

// findPathsTool returns the tool definition for find_paths
func findPathsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_paths",
		Description: "Enumerate relationship paths between two entities",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source_id": map[string]interface{}{
					"type":        "integer",
					"description": "Identifier of the starting entity",
				},
				"target_id": map[string]interface{}{
					"type":        "integer",
					"description": "Identifier of the destination entity",
				},
				"max_depth": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum path length in hops",
					"default":     5,
					"minimum":     1,
					"maximum":     10,
				},
				"relationship_types": map[string]interface{}{
					"type":        "array",
					"description": "Restrict paths to these edge types",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"calls", "inherits", "imports", "uses", "contains"},
					},
				},
			},
			Required: []string{"source_id", "target_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics and health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
