package storage

import (
	"context"
	"time"

	"github.com/dshills/codeindex-mcp/pkg/types"
)

// Storage defines the interface for persisting and querying indexed code data
type Storage interface {
	// Repository operations
	CreateRepository(ctx context.Context, path, name string, metadata types.Metadata) (int64, error)
	GetRepository(ctx context.Context, path string) (*Repository, error)
	ListRepositories(ctx context.Context) ([]*Repository, error)

	// File operations
	StoreFile(ctx context.Context, repositoryID int64, path string, content []byte, opts *FileOptions) (int64, error)
	GetFile(ctx context.Context, path string, repositoryID int64) (*File, error)
	GetFileByID(ctx context.Context, fileID int64) (*File, error)
	ListFiles(ctx context.Context, repositoryID int64) ([]*File, error)
	ListFileMoves(ctx context.Context, repositoryID int64) ([]*FileMove, error)
	MarkFileDeleted(ctx context.Context, repositoryID int64, relativePath string) error
	RemoveFile(ctx context.Context, repositoryID int64, relativePath string) error
	CleanupDeletedFiles(ctx context.Context, olderThan time.Duration) (int, error)

	// Symbol operations
	StoreSymbol(ctx context.Context, symbol *Symbol) error
	GetSymbol(ctx context.Context, name string, kind types.SymbolKind) ([]*SymbolWithFile, error)
	GetSymbolByID(ctx context.Context, symbolID int64) (*Symbol, error)
	ListSymbolsByFile(ctx context.Context, fileID int64) ([]*Symbol, error)

	// Reference and import operations
	StoreReference(ctx context.Context, ref *Reference) error
	StoreImport(ctx context.Context, imp *Import) error
	ListImportsByFile(ctx context.Context, fileID int64) ([]*Import, error)

	// Search operations
	SearchSymbolsFuzzy(ctx context.Context, query string, limit int) ([]FuzzyResult, error)
	SearchBM25(ctx context.Context, query, table string, limit, offset int) ([]BM25Result, error)
	SearchBM25WithSnippets(ctx context.Context, query, table string, limit int) ([]BM25Result, error)
	SearchSymbolsHighlight(ctx context.Context, query string, limit int) ([]HighlightResult, error)
	TermStatistics(ctx context.Context, term, table string) (*TermStats, error)

	// Full-text index maintenance
	OptimizeFTS(ctx context.Context) ([]MaintenanceResult, error)
	RebuildFTS(ctx context.Context) ([]MaintenanceResult, error)

	// Relationship operations (the graph tracker builds on these)
	InsertRelationship(ctx context.Context, rel *types.Relationship) (int64, error)
	InsertRelationships(ctx context.Context, rels []*types.Relationship) (int, error)
	EdgesFrom(ctx context.Context, sourceIDs []int64, typeFilter []types.RelationshipType) ([]*Edge, error)
	EdgesTo(ctx context.Context, targetIDs []int64, typeFilter []types.RelationshipType) ([]*Edge, error)
	RelationshipCount(ctx context.Context, typeFilter types.RelationshipType) (int, error)
	ClearRelationships(ctx context.Context, entityID int64) (int64, error)

	// Status operations
	GetStatistics(ctx context.Context) (*Statistics, error)
	HealthCheck(ctx context.Context) *HealthReport

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Repository represents an indexed source tree root
type Repository struct {
	ID        int64
	Path      string // Natural key; re-registering updates in place
	Name      string
	Metadata  types.Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// File represents a tracked source file
type File struct {
	ID           int64
	RepositoryID int64
	Path         string // Absolute, advisory
	RelativePath string // Canonical key within the repository
	Language     string
	Size         int64
	Hash         string // Fast structural hash (xxhash, change detection)
	ContentHash  string // SHA-256 of content (identity, move matching)
	LastModified time.Time
	IndexedAt    time.Time
	IsDeleted    bool
	DeletedAt    *time.Time // Nullable
	Metadata     types.Metadata
}

// FileOptions carries optional per-file attributes for StoreFile
type FileOptions struct {
	Language     string
	LastModified time.Time
	Metadata     types.Metadata
}

// FileMove is one row of the append-only move audit log
type FileMove struct {
	ID              int64
	RepositoryID    int64
	OldRelativePath string
	NewRelativePath string
	ContentHash     string
	MovedAt         time.Time
	MoveType        string
}

// Symbol represents a code symbol registered by an external parser
type Symbol struct {
	ID            int64
	FileID        int64
	Name          string
	Kind          types.SymbolKind
	LineStart     int
	LineEnd       int
	ColumnStart   int
	ColumnEnd     int
	Signature     string
	Documentation string
	Metadata      types.Metadata
}

// SymbolWithFile is a symbol joined with its file's display fields
type SymbolWithFile struct {
	Symbol
	FilePath     string
	Language     string
	RepositoryID int64
}

// Reference represents a usage site of a symbol, distinct from its definition
type Reference struct {
	ID            int64
	SymbolID      int64
	FileID        int64
	LineNumber    int
	ColumnNumber  int
	ReferenceKind string
	Metadata      types.Metadata
}

// Import represents an import statement in a source file
type Import struct {
	ID           int64
	FileID       int64
	ImportedPath string
	ImportedName string
	Alias        string
	LineNumber   int
	IsRelative   bool
	Metadata     types.Metadata
}

// FuzzyResult is a trigram-ranked symbol match.
// Score is (distinct matching trigrams) / (query trigrams), in [0,1].
type FuzzyResult struct {
	SymbolID  int64
	Name      string
	Kind      types.SymbolKind
	FilePath  string
	LineStart int
	Score     float64
}

// BM25Result is a ranked full-text hit over file content.
// Score is the engine's bm25() value; lower (more negative) is better.
type BM25Result struct {
	FileID   int64 // Zero for legacy-layout rows that carry no file id
	Path     string
	Filename string
	Language string
	Score    float64
	Snippet  string
}

// HighlightResult is a ranked symbol hit with match markers inline
type HighlightResult struct {
	SymbolID    int64
	Name        string
	Highlighted string
	Score       float64
}

// TermStats reports corpus statistics for a single term
type TermStats struct {
	Term         string
	DocFreq      int
	TotalDocs    int
	IDF          float64 // log((N - df + 0.5) / (df + 0.5))
	AvgDocLength float64
}

// MaintenanceResult reports the per-table outcome of an optimize or
// rebuild pass. A failed table does not abort the batch.
type MaintenanceResult struct {
	Table string
	Err   error
}

// Edge is a relationship row, optionally enriched with display fields
// from an informational join against the symbols table. Enrichment
// fields stay zero-valued when the entity has no symbol row; that is
// never an error.
type Edge struct {
	ID         int64
	SourceID   int64
	TargetID   int64
	Type       types.RelationshipType
	Confidence float64
	Metadata   types.Metadata
	CreatedAt  time.Time

	SourceName string
	SourceKind string
	TargetName string
	TargetKind string
	TargetFile string
	TargetLine int
}

// Statistics contains row counts per core table plus the on-disk size
type Statistics struct {
	Repositories  int
	Files         int
	DeletedFiles  int
	Symbols       int
	References    int
	Imports       int
	Relationships int
	FileMoves     int
	IndexSizeMB   float64
}

// HealthReport describes the observable state of the index
type HealthReport struct {
	Status        string // "healthy", "degraded", or "error"
	Tables        map[string]bool
	FTS5Available bool
	WALActive     bool
	SchemaVersion string
	LastError     string
}

// ToTypesSymbol converts a storage Symbol to the shared types.Symbol
func (s *Symbol) ToTypesSymbol() types.Symbol {
	return types.Symbol{
		Name:          s.Name,
		Kind:          s.Kind,
		Signature:     s.Signature,
		Documentation: s.Documentation,
		Start: types.Position{
			Line:   s.LineStart,
			Column: s.ColumnStart,
		},
		End: types.Position{
			Line:   s.LineEnd,
			Column: s.ColumnEnd,
		},
	}
}
