package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/codeindex-mcp/internal/storage"
)

// Ingestor walks a source tree and feeds its files into the store.
// Parsing is out of scope: symbols arrive through the registration
// API, the ingestor tracks file content and lifecycle.
type Ingestor struct {
	storage storage.Storage
	logger  *log.Logger
	workers int
}

// Config contains configuration for an ingestion run
type Config struct {
	Workers       int  // Number of concurrent workers (default: runtime.NumCPU())
	IncludeHidden bool // Whether to descend into dot-directories (default: false)
	IncludeVendor bool // Whether to descend into dependency directories (default: false)
	MaxFileSize   int64
}

// Statistics contains statistics about one ingestion run
type Statistics struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesMoved    int
	FilesDeleted  int
	FilesFailed   int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Ingestor instance
func New(st storage.Storage, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Ingestor{
		storage: st,
		logger:  logger,
		workers: runtime.NumCPU(),
	}
}

// defaultMaxFileSize keeps generated bundles and binaries out of the
// content index.
const defaultMaxFileSize = 2 << 20

// vendorDirs are dependency trees that never belong in the index
var vendorDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
	"target":       true,
	"dist":         true,
	"build":        true,
}

// languageByExtension maps file extensions to language tags stored
// alongside content.
var languageByExtension = map[string]string{
	".py":   "python",
	".go":   "go",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".sh":   "shell",
	".sql":  "sql",
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".toml": "toml",
}

// IndexRepository ingests every recognized file under rootPath.
// Unchanged files are skipped by structural hash, relocated files are
// detected as moves by the store, and files gone from disk are
// soft-deleted.
func (ing *Ingestor) IndexRepository(ctx context.Context, rootPath string, config *Config) (*Statistics, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = defaultMaxFileSize
	}
	ing.workers = config.Workers

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}

	repoID, err := ing.storage.CreateRepository(ctx, absRoot, filepath.Base(absRoot), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register repository: %w", err)
	}

	known, err := ing.knownFiles(ctx, repoID)
	if err != nil {
		return nil, err
	}
	movesBefore, err := ing.storage.ListFileMoves(ctx, repoID)
	if err != nil {
		return nil, err
	}

	files, err := ing.discoverFiles(absRoot, config)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	if err := ing.ingestFiles(ctx, repoID, absRoot, files, known, stats); err != nil {
		return nil, err
	}

	deleted, err := ing.reconcileDeletions(ctx, repoID, absRoot, files)
	if err != nil {
		return nil, err
	}
	stats.FilesDeleted = deleted

	movesAfter, err := ing.storage.ListFileMoves(ctx, repoID)
	if err != nil {
		return nil, err
	}
	stats.FilesMoved = len(movesAfter) - len(movesBefore)
	stats.Duration = time.Since(startTime)

	ing.logger.Info("ingestion complete",
		"repository", absRoot,
		"indexed", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"moved", stats.FilesMoved,
		"deleted", stats.FilesDeleted,
		"failed", stats.FilesFailed,
		"duration", stats.Duration)

	return stats, nil
}

// knownFiles snapshots the current non-deleted rows keyed by relative
// path, for skip-unchanged checks and deletion reconciliation.
func (ing *Ingestor) knownFiles(ctx context.Context, repoID int64) (map[string]*storage.File, error) {
	files, err := ing.storage.ListFiles(ctx, repoID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]*storage.File, len(files))
	for _, f := range files {
		known[f.RelativePath] = f
	}
	return known, nil
}

// discoverFiles walks the tree collecting recognized source files
func (ing *Ingestor) discoverFiles(rootPath string, config *Config) ([]string, error) {
	var files []string

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if !config.IncludeVendor && vendorDirs[info.Name()] {
				return filepath.SkipDir
			}
			if !config.IncludeHidden && strings.HasPrefix(info.Name(), ".") && path != rootPath {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		if info.Size() > config.MaxFileSize {
			return nil
		}
		if _, ok := languageByExtension[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// ingestFiles stores discovered files through a bounded worker pool
func (ing *Ingestor) ingestFiles(ctx context.Context, repoID int64, rootPath string, files []string, known map[string]*storage.File, stats *Statistics) error {
	var (
		indexed int32
		skipped int32
		failed  int32
	)
	var mu sync.Mutex // Protects stats.ErrorMessages

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.workers)

	for _, filePath := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			err := ing.ingestFile(gctx, repoID, rootPath, filePath, known, &indexed, &skipped)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", filePath, err))
				mu.Unlock()
				ing.logger.Warn("failed to ingest file", "path", filePath, "error", err)
			}
			// Per-file failures never abort the run
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats.FilesIndexed = int(indexed)
	stats.FilesSkipped = int(skipped)
	stats.FilesFailed = int(failed)
	return nil
}

// ingestFile stores one file, skipping it when the structural hash is
// unchanged.
func (ing *Ingestor) ingestFile(ctx context.Context, repoID int64, rootPath, filePath string, known map[string]*storage.File, indexed, skipped *int32) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	relPath, _ := storage.NormalizeRelativePath(rootPath, filePath)
	if existing, ok := known[relPath]; ok {
		hash := storage.StructuralHash(content, info.ModTime(), info.Size())
		if hash == existing.Hash {
			atomic.AddInt32(skipped, 1)
			return nil
		}
	}

	_, err = ing.storage.StoreFile(ctx, repoID, filePath, content, &storage.FileOptions{
		Language:     languageByExtension[strings.ToLower(filepath.Ext(filePath))],
		LastModified: info.ModTime(),
	})
	if err != nil {
		return err
	}

	atomic.AddInt32(indexed, 1)
	return nil
}

// reconcileDeletions soft-deletes rows whose files are gone from disk
func (ing *Ingestor) reconcileDeletions(ctx context.Context, repoID int64, rootPath string, onDisk []string) (int, error) {
	seen := make(map[string]bool, len(onDisk))
	for _, p := range onDisk {
		rel, _ := storage.NormalizeRelativePath(rootPath, p)
		seen[rel] = true
	}

	// A moved file's row now lives under its new path; re-list so the
	// old paths recorded in the snapshot are not misread as deletions
	current, err := ing.storage.ListFiles(ctx, repoID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, f := range current {
		if seen[f.RelativePath] {
			continue
		}
		if err := ing.storage.MarkFileDeleted(ctx, repoID, f.RelativePath); err != nil {
			ing.logger.Warn("failed to mark file deleted", "path", f.RelativePath, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}
