// Package mcp implements the Model Context Protocol server exposing
// the code index to AI assistants.
//
// The server speaks MCP over stdio and registers seven tools:
//
//   - index_repository: walk a source tree into the index
//   - search_code: BM25 full-text search over file content
//   - search_symbols: fuzzy or exact symbol name lookup
//   - get_dependencies: outgoing relationship traversal
//   - get_dependents: incoming relationship traversal
//   - find_paths: relationship paths between two entities
//   - get_status: index statistics and health
//
// Tool inputs are validated before any work happens; failures are
// returned as MCPError values with JSON-RPC style codes. All logging
// goes to stderr since stdout carries the protocol.
//
// # Usage
//
//	server, err := mcp.NewServer(dbPath, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := server.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// The database location defaults to ~/.codeindex and can be overridden
// with the CODEINDEX_DB_PATH environment variable.
package mcp
