package types

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	// Identification
	SymbolID int64 // Zero when the hit came from file content, not a symbol
	FileID   int64
	Rank     int // Position in result set (1-based)

	// Scoring. Fuzzy scores are normalized to [0,1]; BM25 scores are
	// raw rank values from the engine and may be negative.
	Score float64

	// Display
	Symbol  *Symbol // Nullable - file-content hits have no symbol
	File    *FileInfo
	Snippet string // Excerpt around the match, when requested
}

// FileInfo contains file metadata for a search result
type FileInfo struct {
	Path     string // Relative to repository root
	Language string
	Line     int
}
