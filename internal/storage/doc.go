// Package storage provides SQLite-based persistence for the code index.
//
// The storage layer manages:
//   - Repository registration
//   - File rows with content-addressed identity and move tracking
//   - Symbols, references, and imports registered by external parsers
//   - Trigram and FTS5 search indexes
//   - Relationship graph edges
//
// # Database Schema
//
// Tables:
//   - repositories: Indexed source tree roots (path is the natural key)
//   - files: File paths, structural hash, and SHA-256 content hash
//   - symbols: Registered symbols (functions, types, etc.)
//   - symbol_references: Usage sites, distinct from definitions
//   - imports: Import statements per file
//   - symbol_trigrams: Trigram index for fuzzy symbol lookup
//   - fts_symbols: FTS5 index over symbol names, trigger-synced
//   - bm25_content: FTS5 index over file content with BM25 ranking
//   - relationships: Graph edges between entities
//   - file_moves: Append-only audit log of detected moves
//
// Schema changes are semver-gated migrations applied at open time and
// recorded in a migrations audit table. A database exhibiting the
// minimal search-only layout (a bm25 content table without the files
// table) is detected before any schema work and never modified.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStore("index.db", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	repoID, err := store.CreateRepository(ctx, "/path/to/repo", "repo", nil)
//	fileID, err := store.StoreFile(ctx, repoID, "/path/to/repo/main.py", content, &storage.FileOptions{
//	    Language: "python",
//	})
//
// # Content Addressing
//
// Every file carries two hashes. The structural hash (xxhash over
// content plus mtime and size) is the fast change check: ingestion
// skips files whose structural hash is unchanged. The content hash
// (SHA-256 of bytes alone) is the file's identity: when the same
// content reappears under a different path, StoreFile records a move
// in file_moves and migrates the existing row instead of creating a
// duplicate.
//
// # Deletion
//
// MarkFileDeleted soft-deletes: the row is flagged and excluded from
// reads but its history survives. RemoveFile hard-deletes with a full
// cascade (references, trigrams, full-text rows, imports, symbols,
// then the file) in a single transaction. CleanupDeletedFiles sweeps
// soft-deleted rows past a retention window through that cascade.
//
// # Transactions
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	fileID, _ := tx.StoreFile(ctx, repoID, path, content, nil)
//	_ = tx.StoreSymbol(ctx, symbol)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Search
//
// Three query families share the store:
//
//	// Trigram fuzzy lookup over symbol names
//	hits, err := store.SearchSymbolsFuzzy(ctx, "userid", 10)
//
//	// BM25-ranked full-text search over file content
//	results, err := store.SearchBM25(ctx, "parse config", "bm25_content", 10, 0)
//
//	// Symbol name search with inline match markers
//	marked, err := store.SearchSymbolsHighlight(ctx, "handler", 10)
//
// Content tables come in two on-disk generations: the modern layout
// references files by id, the legacy layout stores paths inline. Both
// are searchable; an unrecognized layout returns empty results with a
// logged warning rather than an error.
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// CGO Build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Native FTS5 support, requires a C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo,fts5"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build
package storage
