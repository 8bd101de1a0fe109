package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/codeindex-mcp/pkg/types"
)

// SQLiteStore implements the Storage interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	caps   SchemaCapability
	logger *log.Logger
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Wait out short lock contention instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (or bootstraps) a store at dbPath. A database
// exhibiting the minimal search-only layout is detected before any
// schema work and left untouched: migrations are skipped entirely for
// foreign layouts.
func NewSQLiteStore(dbPath string, logger *log.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	caps, err := detectSchema(context.Background(), db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to detect schema: %w", err)
	}

	if caps == SchemaSearchOnly {
		logger.Warn("search-only schema detected, skipping migrations", "path", dbPath)
	} else {
		if err := ApplyMigrations(context.Background(), db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		caps = SchemaFull
	}

	return &SQLiteStore{db: db, caps: caps, logger: logger}, nil
}

// Capability reports the schema class detected at open time
func (s *SQLiteStore) Capability() SchemaCapability {
	return s.caps
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyErr(err)
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStore
}

func (t *sqliteTx) Commit() error {
	return classifyErr(t.tx.Commit())
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStore) querier() querier {
	return s.db
}

// writeGuard rejects writes against a foreign search-only layout
func (s *SQLiteStore) writeGuard() error {
	if s.caps == SchemaSearchOnly {
		return fmt.Errorf("schema is %s: writes not supported", s.caps)
	}
	return nil
}

// inTx runs fn inside a transaction committed on success
func (s *SQLiteStore) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return classifyErr(err)
	}
	return classifyErr(tx.Commit())
}

// Repository operations

// createRepositoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) createRepositoryWithQuerier(ctx context.Context, q querier, repoPath, name string, metadata types.Metadata) (int64, error) {
	meta, err := metadata.Encode()
	if err != nil {
		return 0, fmt.Errorf("failed to encode repository metadata: %w", err)
	}

	// Path is the natural key: re-registering updates in place
	query := `
		INSERT INTO repositories (path, name, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	var id int64
	if err := q.QueryRowContext(ctx, query, repoPath, name, meta, now, now).Scan(&id); err != nil {
		return 0, classifyErr(fmt.Errorf("failed to create repository: %w", err))
	}
	return id, nil
}

func (s *SQLiteStore) CreateRepository(ctx context.Context, repoPath, name string, metadata types.Metadata) (int64, error) {
	if err := s.writeGuard(); err != nil {
		return 0, err
	}
	return s.createRepositoryWithQuerier(ctx, s.querier(), repoPath, name, metadata)
}

// getRepositoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getRepositoryWithQuerier(ctx context.Context, q querier, repoPath string) (*Repository, error) {
	query := `
		SELECT id, path, name, metadata, created_at, updated_at
		FROM repositories
		WHERE path = ?
	`
	return scanRepository(q.QueryRowContext(ctx, query, repoPath))
}

func (s *SQLiteStore) GetRepository(ctx context.Context, repoPath string) (*Repository, error) {
	return s.getRepositoryWithQuerier(ctx, s.querier(), repoPath)
}

// getRepositoryByIDWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getRepositoryByIDWithQuerier(ctx context.Context, q querier, id int64) (*Repository, error) {
	query := `
		SELECT id, path, name, metadata, created_at, updated_at
		FROM repositories
		WHERE id = ?
	`
	return scanRepository(q.QueryRowContext(ctx, query, id))
}

func scanRepository(row *sql.Row) (*Repository, error) {
	var repo Repository
	var meta string
	err := row.Scan(&repo.ID, &repo.Path, &repo.Name, &meta, &repo.CreatedAt, &repo.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyErr(err)
	}
	if repo.Metadata, err = types.DecodeMetadata(meta); err != nil {
		return nil, fmt.Errorf("failed to decode repository metadata: %w", err)
	}
	return &repo, nil
}

// listRepositoriesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listRepositoriesWithQuerier(ctx context.Context, q querier) ([]*Repository, error) {
	query := `
		SELECT id, path, name, metadata, created_at, updated_at
		FROM repositories
		ORDER BY path
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer func() { _ = rows.Close() }()

	repos := make([]*Repository, 0)
	for rows.Next() {
		var repo Repository
		var meta string
		if err := rows.Scan(&repo.ID, &repo.Path, &repo.Name, &meta, &repo.CreatedAt, &repo.UpdatedAt); err != nil {
			return nil, err
		}
		if repo.Metadata, err = types.DecodeMetadata(meta); err != nil {
			return nil, err
		}
		repos = append(repos, &repo)
	}
	return repos, rows.Err()
}

func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]*Repository, error) {
	return s.listRepositoriesWithQuerier(ctx, s.querier())
}

// File operations

// storeFileWithQuerier is the internal implementation that uses a querier.
// The same content hash under a different non-deleted relative path in
// the repository is a move, not a new file: a FileMove row is appended
// and the existing row is migrated to the new path.
func (s *SQLiteStore) storeFileWithQuerier(ctx context.Context, q querier, repositoryID int64, filePath string, content []byte, opts *FileOptions) (int64, error) {
	if opts == nil {
		opts = &FileOptions{}
	}
	lastModified := opts.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now()
	}

	repo, err := s.getRepositoryByIDWithQuerier(ctx, q, repositoryID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve repository %d: %w", repositoryID, err)
	}

	relPath, _ := NormalizeRelativePath(repo.Path, filePath)
	size := int64(len(content))
	contentHash := ContentHash(content)
	hash := StructuralHash(content, lastModified, size)

	meta, err := opts.Metadata.Encode()
	if err != nil {
		return 0, fmt.Errorf("failed to encode file metadata: %w", err)
	}

	now := time.Now()

	// Move detection. When multiple non-deleted rows share the hash
	// (legitimate duplicate files), the most recently modified match
	// is taken as the one that moved.
	var existingID int64
	var existingRel string
	err = q.QueryRowContext(ctx, `
		SELECT id, relative_path FROM files
		WHERE repository_id = ? AND content_hash = ? AND is_deleted = 0
		ORDER BY last_modified DESC, id DESC
		LIMIT 1
	`, repositoryID, contentHash).Scan(&existingID, &existingRel)
	if err != nil && err != sql.ErrNoRows {
		return 0, classifyErr(err)
	}

	if err == nil && existingRel != relPath {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO file_moves (repository_id, old_relative_path, new_relative_path, content_hash, moved_at, move_type)
			VALUES (?, ?, ?, ?, ?, 'rename')
		`, repositoryID, existingRel, relPath, contentHash, now); err != nil {
			return 0, classifyErr(fmt.Errorf("failed to record file move: %w", err))
		}

		if _, err := q.ExecContext(ctx, `
			UPDATE files
			SET path = ?, relative_path = ?, hash = ?, size = ?,
			    last_modified = ?, indexed_at = ?, metadata = ?
			WHERE id = ?
		`, filePath, relPath, hash, size, lastModified, now, meta, existingID); err != nil {
			return 0, classifyErr(fmt.Errorf("failed to migrate moved file: %w", err))
		}

		if err := s.syncBM25Row(ctx, q, existingID, relPath, content, opts.Language); err != nil {
			return 0, err
		}
		return existingID, nil
	}

	query := `
		INSERT INTO files (repository_id, path, relative_path, language, size, hash, content_hash,
		                   last_modified, indexed_at, is_deleted, deleted_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)
		ON CONFLICT(repository_id, relative_path) DO UPDATE SET
			path = excluded.path,
			language = excluded.language,
			size = excluded.size,
			hash = excluded.hash,
			content_hash = excluded.content_hash,
			last_modified = excluded.last_modified,
			indexed_at = excluded.indexed_at,
			is_deleted = 0,
			deleted_at = NULL,
			metadata = excluded.metadata
		RETURNING id
	`
	var id int64
	if err := q.QueryRowContext(ctx, query,
		repositoryID, filePath, relPath, opts.Language, size, hash, contentHash,
		lastModified, now, meta).Scan(&id); err != nil {
		return 0, classifyErr(fmt.Errorf("failed to store file: %w", err))
	}

	if err := s.syncBM25Row(ctx, q, id, relPath, content, opts.Language); err != nil {
		return 0, err
	}
	return id, nil
}

// syncBM25Row replaces the file's row in the ranked content index.
// Only the modern layout is written; foreign layouts are read-only.
func (s *SQLiteStore) syncBM25Row(ctx context.Context, q querier, fileID int64, relPath string, content []byte, language string) error {
	if s.caps != SchemaFull {
		return nil
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM bm25_content WHERE file_id = ?", fileID); err != nil {
		return classifyErr(fmt.Errorf("failed to clear bm25 row: %w", err))
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO bm25_content (file_id, filepath, filename, content, language)
		VALUES (?, ?, ?, ?, ?)
	`, fileID, relPath, path.Base(relPath), string(content), language); err != nil {
		return classifyErr(fmt.Errorf("failed to index file content: %w", err))
	}
	return nil
}

func (s *SQLiteStore) StoreFile(ctx context.Context, repositoryID int64, filePath string, content []byte, opts *FileOptions) (int64, error) {
	if err := s.writeGuard(); err != nil {
		return 0, err
	}
	var id int64
	err := s.inTx(ctx, func(q querier) error {
		var err error
		id, err = s.storeFileWithQuerier(ctx, q, repositoryID, filePath, content, opts)
		return err
	})
	return id, err
}

const fileColumns = `id, repository_id, path, relative_path, language, size, hash, content_hash,
       last_modified, indexed_at, is_deleted, deleted_at, metadata`

// getFileWithQuerier is the internal implementation that uses a querier.
// Accepts an absolute or relative path: normalization is attempted
// first, then the input is tried as already-relative. repositoryID 0
// searches across repositories, newest indexed row first.
func (s *SQLiteStore) getFileWithQuerier(ctx context.Context, q querier, filePath string, repositoryID int64, includeDeleted bool) (*File, error) {
	candidates := []string{cleanRelative(filePath)}
	if repositoryID > 0 {
		if repo, err := s.getRepositoryByIDWithQuerier(ctx, q, repositoryID); err == nil {
			if rel, ok := NormalizeRelativePath(repo.Path, filePath); ok && rel != candidates[0] {
				candidates = append([]string{rel}, candidates...)
			}
		}
	}

	for _, rel := range candidates {
		query := "SELECT " + fileColumns + " FROM files WHERE relative_path = ?"
		args := []interface{}{rel}
		if repositoryID > 0 {
			query += " AND repository_id = ?"
			args = append(args, repositoryID)
		}
		if !includeDeleted {
			query += " AND is_deleted = 0"
		}
		query += " ORDER BY indexed_at DESC LIMIT 1"

		file, err := scanFile(q.QueryRowContext(ctx, query, args...))
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (s *SQLiteStore) GetFile(ctx context.Context, filePath string, repositoryID int64) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), filePath, repositoryID, false)
}

// GetFileIncludingDeleted returns a file row even when soft-deleted
func (s *SQLiteStore) GetFileIncludingDeleted(ctx context.Context, filePath string, repositoryID int64) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), filePath, repositoryID, true)
}

// getFileByIDWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getFileByIDWithQuerier(ctx context.Context, q querier, fileID int64) (*File, error) {
	query := "SELECT " + fileColumns + " FROM files WHERE id = ?"
	return scanFile(q.QueryRowContext(ctx, query, fileID))
}

func (s *SQLiteStore) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return s.getFileByIDWithQuerier(ctx, s.querier(), fileID)
}

func scanFile(row *sql.Row) (*File, error) {
	var f File
	var lastModified, deletedAt sql.NullTime
	var language sql.NullString
	var meta string
	err := row.Scan(
		&f.ID, &f.RepositoryID, &f.Path, &f.RelativePath, &language, &f.Size,
		&f.Hash, &f.ContentHash, &lastModified, &f.IndexedAt, &f.IsDeleted,
		&deletedAt, &meta,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyErr(err)
	}
	if language.Valid {
		f.Language = language.String
	}
	if lastModified.Valid {
		f.LastModified = lastModified.Time
	}
	if deletedAt.Valid {
		f.DeletedAt = &deletedAt.Time
	}
	if f.Metadata, err = types.DecodeMetadata(meta); err != nil {
		return nil, fmt.Errorf("failed to decode file metadata: %w", err)
	}
	return &f, nil
}

// listFilesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listFilesWithQuerier(ctx context.Context, q querier, repositoryID int64) ([]*File, error) {
	query := "SELECT " + fileColumns + ` FROM files
		WHERE repository_id = ? AND is_deleted = 0
		ORDER BY relative_path`
	rows, err := q.QueryContext(ctx, query, repositoryID)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		var f File
		var lastModified, deletedAt sql.NullTime
		var language sql.NullString
		var meta string
		err := rows.Scan(
			&f.ID, &f.RepositoryID, &f.Path, &f.RelativePath, &language, &f.Size,
			&f.Hash, &f.ContentHash, &lastModified, &f.IndexedAt, &f.IsDeleted,
			&deletedAt, &meta,
		)
		if err != nil {
			return nil, err
		}
		if language.Valid {
			f.Language = language.String
		}
		if lastModified.Valid {
			f.LastModified = lastModified.Time
		}
		if deletedAt.Valid {
			f.DeletedAt = &deletedAt.Time
		}
		if f.Metadata, err = types.DecodeMetadata(meta); err != nil {
			return nil, err
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) ListFiles(ctx context.Context, repositoryID int64) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), repositoryID)
}

// listFileMovesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listFileMovesWithQuerier(ctx context.Context, q querier, repositoryID int64) ([]*FileMove, error) {
	query := `
		SELECT id, repository_id, old_relative_path, new_relative_path, content_hash, moved_at, move_type
		FROM file_moves
		WHERE repository_id = ?
		ORDER BY id
	`
	rows, err := q.QueryContext(ctx, query, repositoryID)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer func() { _ = rows.Close() }()

	moves := make([]*FileMove, 0)
	for rows.Next() {
		var m FileMove
		if err := rows.Scan(&m.ID, &m.RepositoryID, &m.OldRelativePath, &m.NewRelativePath,
			&m.ContentHash, &m.MovedAt, &m.MoveType); err != nil {
			return nil, err
		}
		moves = append(moves, &m)
	}
	return moves, rows.Err()
}

func (s *SQLiteStore) ListFileMoves(ctx context.Context, repositoryID int64) ([]*FileMove, error) {
	return s.listFileMovesWithQuerier(ctx, s.querier(), repositoryID)
}

// markFileDeletedWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) markFileDeletedWithQuerier(ctx context.Context, q querier, repositoryID int64, relativePath string) error {
	query := `
		UPDATE files SET is_deleted = 1, deleted_at = ?
		WHERE repository_id = ? AND relative_path = ? AND is_deleted = 0
	`
	result, err := q.ExecContext(ctx, query, time.Now(), repositoryID, cleanRelative(relativePath))
	if err != nil {
		return classifyErr(fmt.Errorf("failed to mark file deleted: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkFileDeleted(ctx context.Context, repositoryID int64, relativePath string) error {
	if err := s.writeGuard(); err != nil {
		return err
	}
	return s.markFileDeletedWithQuerier(ctx, s.querier(), repositoryID, relativePath)
}

// removeFileWithQuerier cascades removal of references, trigrams,
// full-text rows, imports, and symbols before the file row itself.
// Callers must run it inside a transaction: a partial cascade is a
// correctness bug.
func (s *SQLiteStore) removeFileWithQuerier(ctx context.Context, q querier, repositoryID int64, relativePath string) error {
	rel := cleanRelative(relativePath)

	var fileID int64
	err := q.QueryRowContext(ctx,
		"SELECT id FROM files WHERE repository_id = ? AND relative_path = ?",
		repositoryID, rel).Scan(&fileID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return classifyErr(err)
	}

	steps := []struct {
		desc  string
		query string
	}{
		{"references", `DELETE FROM symbol_references
			WHERE file_id = ? OR symbol_id IN (SELECT id FROM symbols WHERE file_id = ?)`},
		{"trigrams", `DELETE FROM symbol_trigrams
			WHERE symbol_id IN (SELECT id FROM symbols WHERE file_id = ?)`},
		{"bm25 rows", `DELETE FROM bm25_content WHERE file_id = ?`},
		{"imports", `DELETE FROM imports WHERE file_id = ?`},
		{"symbols", `DELETE FROM symbols WHERE file_id = ?`},
		{"file", `DELETE FROM files WHERE id = ?`},
	}
	for _, step := range steps {
		args := []interface{}{fileID}
		if strings.Count(step.query, "?") == 2 {
			args = append(args, fileID)
		}
		if _, err := q.ExecContext(ctx, step.query, args...); err != nil {
			return classifyErr(fmt.Errorf("failed to remove %s: %w", step.desc, err))
		}
	}
	return nil
}

func (s *SQLiteStore) RemoveFile(ctx context.Context, repositoryID int64, relativePath string) error {
	if err := s.writeGuard(); err != nil {
		return err
	}
	return s.inTx(ctx, func(q querier) error {
		return s.removeFileWithQuerier(ctx, q, repositoryID, relativePath)
	})
}

// CleanupDeletedFiles hard-removes soft-deleted files older than the
// threshold. Per-file failures are logged and skipped; the batch
// continues.
func (s *SQLiteStore) CleanupDeletedFiles(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := s.writeGuard(); err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx, `
		SELECT repository_id, relative_path FROM files
		WHERE is_deleted = 1 AND deleted_at <= ?
		ORDER BY id
	`, cutoff)
	if err != nil {
		return 0, classifyErr(err)
	}

	type target struct {
		repoID int64
		rel    string
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.repoID, &t.rel); err != nil {
			_ = rows.Close()
			return 0, err
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	removed := 0
	for _, t := range targets {
		if err := s.RemoveFile(ctx, t.repoID, t.rel); err != nil {
			s.logger.Warn("cleanup failed for file", "repository", t.repoID, "path", t.rel, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Symbol operations

// storeSymbolWithQuerier inserts the symbol and regenerates its
// trigram set as part of the same unit of work.
func (s *SQLiteStore) storeSymbolWithQuerier(ctx context.Context, q querier, symbol *Symbol) error {
	meta, err := symbol.Metadata.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode symbol metadata: %w", err)
	}

	query := `
		INSERT INTO symbols (file_id, name, kind, line_start, line_end,
		                     column_start, column_end, signature, documentation, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := q.QueryRowContext(ctx, query,
		symbol.FileID, symbol.Name, string(symbol.Kind),
		symbol.LineStart, symbol.LineEnd, symbol.ColumnStart, symbol.ColumnEnd,
		symbol.Signature, symbol.Documentation, meta,
	).Scan(&symbol.ID); err != nil {
		return classifyErr(fmt.Errorf("failed to store symbol: %w", err))
	}

	return s.storeTrigramsWithQuerier(ctx, q, symbol.ID, symbol.Name)
}

func (s *SQLiteStore) StoreSymbol(ctx context.Context, symbol *Symbol) error {
	if err := s.writeGuard(); err != nil {
		return err
	}
	return s.inTx(ctx, func(q querier) error {
		return s.storeSymbolWithQuerier(ctx, q, symbol)
	})
}

const symbolColumns = `id, file_id, name, kind, line_start, line_end,
       column_start, column_end, signature, documentation, metadata`

// getSymbolWithQuerier looks symbols up by name, optionally narrowed
// by kind, joined with their file for display. Kind "" matches all.
func (s *SQLiteStore) getSymbolWithQuerier(ctx context.Context, q querier, name string, kind types.SymbolKind) ([]*SymbolWithFile, error) {
	query := `
		SELECT s.id, s.file_id, s.name, s.kind, s.line_start, s.line_end,
		       s.column_start, s.column_end, s.signature, s.documentation, s.metadata,
		       f.relative_path, f.language, f.repository_id
		FROM symbols s
		JOIN files f ON s.file_id = f.id
		WHERE s.name = ? AND f.is_deleted = 0
	`
	args := []interface{}{name}
	if kind != "" {
		query += " AND s.kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY s.id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]*SymbolWithFile, 0)
	for rows.Next() {
		var sw SymbolWithFile
		var kindStr, meta string
		var signature, documentation, language sql.NullString
		err := rows.Scan(
			&sw.ID, &sw.FileID, &sw.Name, &kindStr, &sw.LineStart, &sw.LineEnd,
			&sw.ColumnStart, &sw.ColumnEnd, &signature, &documentation, &meta,
			&sw.FilePath, &language, &sw.RepositoryID,
		)
		if err != nil {
			return nil, err
		}
		sw.Kind = types.SymbolKind(kindStr)
		sw.Signature = signature.String
		sw.Documentation = documentation.String
		sw.Language = language.String
		if sw.Metadata, err = types.DecodeMetadata(meta); err != nil {
			return nil, err
		}
		results = append(results, &sw)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) GetSymbol(ctx context.Context, name string, kind types.SymbolKind) ([]*SymbolWithFile, error) {
	return s.getSymbolWithQuerier(ctx, s.querier(), name, kind)
}

// getSymbolByIDWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getSymbolByIDWithQuerier(ctx context.Context, q querier, symbolID int64) (*Symbol, error) {
	query := "SELECT " + symbolColumns + " FROM symbols WHERE id = ?"
	var sym Symbol
	var kindStr, meta string
	var signature, documentation sql.NullString
	err := q.QueryRowContext(ctx, query, symbolID).Scan(
		&sym.ID, &sym.FileID, &sym.Name, &kindStr, &sym.LineStart, &sym.LineEnd,
		&sym.ColumnStart, &sym.ColumnEnd, &signature, &documentation, &meta,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyErr(err)
	}
	sym.Kind = types.SymbolKind(kindStr)
	sym.Signature = signature.String
	sym.Documentation = documentation.String
	if sym.Metadata, err = types.DecodeMetadata(meta); err != nil {
		return nil, err
	}
	return &sym, nil
}

func (s *SQLiteStore) GetSymbolByID(ctx context.Context, symbolID int64) (*Symbol, error) {
	return s.getSymbolByIDWithQuerier(ctx, s.querier(), symbolID)
}

// listSymbolsByFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listSymbolsByFileWithQuerier(ctx context.Context, q querier, fileID int64) ([]*Symbol, error) {
	query := "SELECT " + symbolColumns + " FROM symbols WHERE file_id = ? ORDER BY line_start, id"
	rows, err := q.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer func() { _ = rows.Close() }()

	symbols := make([]*Symbol, 0)
	for rows.Next() {
		var sym Symbol
		var kindStr, meta string
		var signature, documentation sql.NullString
		err := rows.Scan(
			&sym.ID, &sym.FileID, &sym.Name, &kindStr, &sym.LineStart, &sym.LineEnd,
			&sym.ColumnStart, &sym.ColumnEnd, &signature, &documentation, &meta,
		)
		if err != nil {
			return nil, err
		}
		sym.Kind = types.SymbolKind(kindStr)
		sym.Signature = signature.String
		sym.Documentation = documentation.String
		if sym.Metadata, err = types.DecodeMetadata(meta); err != nil {
			return nil, err
		}
		symbols = append(symbols, &sym)
	}
	return symbols, rows.Err()
}

func (s *SQLiteStore) ListSymbolsByFile(ctx context.Context, fileID int64) ([]*Symbol, error) {
	return s.listSymbolsByFileWithQuerier(ctx, s.querier(), fileID)
}

// Reference and import operations

// storeReferenceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) storeReferenceWithQuerier(ctx context.Context, q querier, ref *Reference) error {
	meta, err := ref.Metadata.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode reference metadata: %w", err)
	}
	query := `
		INSERT INTO symbol_references (symbol_id, file_id, line_number, column_number, reference_kind, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := q.QueryRowContext(ctx, query,
		ref.SymbolID, ref.FileID, ref.LineNumber, ref.ColumnNumber, ref.ReferenceKind, meta,
	).Scan(&ref.ID); err != nil {
		return classifyErr(fmt.Errorf("failed to store reference: %w", err))
	}
	return nil
}

func (s *SQLiteStore) StoreReference(ctx context.Context, ref *Reference) error {
	if err := s.writeGuard(); err != nil {
		return err
	}
	return s.storeReferenceWithQuerier(ctx, s.querier(), ref)
}

// storeImportWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) storeImportWithQuerier(ctx context.Context, q querier, imp *Import) error {
	meta, err := imp.Metadata.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode import metadata: %w", err)
	}
	query := `
		INSERT INTO imports (file_id, imported_path, imported_name, alias, line_number, is_relative, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := q.QueryRowContext(ctx, query,
		imp.FileID, imp.ImportedPath, imp.ImportedName, imp.Alias,
		imp.LineNumber, imp.IsRelative, meta,
	).Scan(&imp.ID); err != nil {
		return classifyErr(fmt.Errorf("failed to store import: %w", err))
	}
	return nil
}

func (s *SQLiteStore) StoreImport(ctx context.Context, imp *Import) error {
	if err := s.writeGuard(); err != nil {
		return err
	}
	return s.storeImportWithQuerier(ctx, s.querier(), imp)
}

// listImportsByFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listImportsByFileWithQuerier(ctx context.Context, q querier, fileID int64) ([]*Import, error) {
	query := `
		SELECT id, file_id, imported_path, imported_name, alias, line_number, is_relative, metadata
		FROM imports
		WHERE file_id = ?
		ORDER BY imported_path
	`
	rows, err := q.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer func() { _ = rows.Close() }()

	imports := make([]*Import, 0)
	for rows.Next() {
		var imp Import
		var importedName, alias sql.NullString
		var lineNumber sql.NullInt64
		var meta string
		err := rows.Scan(&imp.ID, &imp.FileID, &imp.ImportedPath, &importedName,
			&alias, &lineNumber, &imp.IsRelative, &meta)
		if err != nil {
			return nil, err
		}
		imp.ImportedName = importedName.String
		imp.Alias = alias.String
		imp.LineNumber = int(lineNumber.Int64)
		if imp.Metadata, err = types.DecodeMetadata(meta); err != nil {
			return nil, err
		}
		imports = append(imports, &imp)
	}
	return imports, rows.Err()
}

func (s *SQLiteStore) ListImportsByFile(ctx context.Context, fileID int64) ([]*Import, error) {
	return s.listImportsByFileWithQuerier(ctx, s.querier(), fileID)
}

// Status operations

// GetStatistics returns row counts per core table plus the on-disk
// size. Missing tables (foreign layouts) count as zero.
func (s *SQLiteStore) GetStatistics(ctx context.Context) (*Statistics, error) {
	tables, err := tableNames(ctx, s.querier())
	if err != nil {
		return nil, err
	}

	stats := &Statistics{}
	counts := []struct {
		table string
		where string
		dest  *int
	}{
		{"repositories", "", &stats.Repositories},
		{"files", "WHERE is_deleted = 0", &stats.Files},
		{"files", "WHERE is_deleted = 1", &stats.DeletedFiles},
		{"symbols", "", &stats.Symbols},
		{"symbol_references", "", &stats.References},
		{"imports", "", &stats.Imports},
		{"relationships", "", &stats.Relationships},
		{"file_moves", "", &stats.FileMoves},
	}
	for _, c := range counts {
		if !tables[c.table] {
			continue
		}
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", c.table, c.where)
		if err := s.db.QueryRowContext(ctx, query).Scan(c.dest); err != nil {
			return nil, classifyErr(err)
		}
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return stats, nil
}

// expectedTables are the tables a full layout must carry for the
// store to be healthy.
var expectedTables = []string{
	"repositories", "files", "symbols", "symbol_references", "imports",
	"symbol_trigrams", "fts_symbols", "bm25_content", "relationships",
	"schema_version", "migrations", "file_moves",
}

// HealthCheck reports observable state. It never returns an error:
// failures are folded into the report so the read path stays
// available.
func (s *SQLiteStore) HealthCheck(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status: "healthy",
		Tables: make(map[string]bool),
	}

	if err := s.db.PingContext(ctx); err != nil {
		report.Status = "error"
		report.LastError = err.Error()
		return report
	}

	tables, err := tableNames(ctx, s.querier())
	if err != nil {
		report.Status = "error"
		report.LastError = err.Error()
		return report
	}

	if s.caps == SchemaSearchOnly {
		report.Tables["bm25_content"] = tables["bm25_content"]
	} else {
		for _, t := range expectedTables {
			report.Tables[t] = tables[t]
			if !tables[t] {
				report.Status = "degraded"
			}
		}
	}

	// FTS5 availability: the probe either parses or the build lacks
	// the extension.
	if _, err := s.db.ExecContext(ctx, "CREATE VIRTUAL TABLE temp.fts5_probe USING fts5(x)"); err == nil {
		report.FTS5Available = true
		_, _ = s.db.ExecContext(ctx, "DROP TABLE temp.fts5_probe")
	} else {
		report.Status = "degraded"
		report.LastError = err.Error()
	}

	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err == nil {
		report.WALActive = strings.EqualFold(mode, "wal")
	}

	if tables["schema_version"] {
		var version string
		if err := s.db.QueryRowContext(ctx,
			"SELECT version FROM schema_version ORDER BY applied_at DESC, version DESC LIMIT 1").Scan(&version); err == nil {
			report.SchemaVersion = version
		}
	}

	return report
}

// Transaction implementations - delegate to main storage

func (t *sqliteTx) CreateRepository(ctx context.Context, repoPath, name string, metadata types.Metadata) (int64, error) {
	return t.storage.createRepositoryWithQuerier(ctx, t.querier(), repoPath, name, metadata)
}

func (t *sqliteTx) GetRepository(ctx context.Context, repoPath string) (*Repository, error) {
	return t.storage.getRepositoryWithQuerier(ctx, t.querier(), repoPath)
}

func (t *sqliteTx) ListRepositories(ctx context.Context) ([]*Repository, error) {
	return t.storage.listRepositoriesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) StoreFile(ctx context.Context, repositoryID int64, filePath string, content []byte, opts *FileOptions) (int64, error) {
	return t.storage.storeFileWithQuerier(ctx, t.querier(), repositoryID, filePath, content, opts)
}

func (t *sqliteTx) GetFile(ctx context.Context, filePath string, repositoryID int64) (*File, error) {
	return t.storage.getFileWithQuerier(ctx, t.querier(), filePath, repositoryID, false)
}

func (t *sqliteTx) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return t.storage.getFileByIDWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) ListFiles(ctx context.Context, repositoryID int64) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.querier(), repositoryID)
}

func (t *sqliteTx) ListFileMoves(ctx context.Context, repositoryID int64) ([]*FileMove, error) {
	return t.storage.listFileMovesWithQuerier(ctx, t.querier(), repositoryID)
}

func (t *sqliteTx) MarkFileDeleted(ctx context.Context, repositoryID int64, relativePath string) error {
	return t.storage.markFileDeletedWithQuerier(ctx, t.querier(), repositoryID, relativePath)
}

func (t *sqliteTx) RemoveFile(ctx context.Context, repositoryID int64, relativePath string) error {
	return t.storage.removeFileWithQuerier(ctx, t.querier(), repositoryID, relativePath)
}

func (t *sqliteTx) CleanupDeletedFiles(ctx context.Context, olderThan time.Duration) (int, error) {
	// Cleanup manages its own per-file transactions
	return 0, errors.New("cleanup not supported inside a transaction")
}

func (t *sqliteTx) StoreSymbol(ctx context.Context, symbol *Symbol) error {
	return t.storage.storeSymbolWithQuerier(ctx, t.querier(), symbol)
}

func (t *sqliteTx) GetSymbol(ctx context.Context, name string, kind types.SymbolKind) ([]*SymbolWithFile, error) {
	return t.storage.getSymbolWithQuerier(ctx, t.querier(), name, kind)
}

func (t *sqliteTx) GetSymbolByID(ctx context.Context, symbolID int64) (*Symbol, error) {
	return t.storage.getSymbolByIDWithQuerier(ctx, t.querier(), symbolID)
}

func (t *sqliteTx) ListSymbolsByFile(ctx context.Context, fileID int64) ([]*Symbol, error) {
	return t.storage.listSymbolsByFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) StoreReference(ctx context.Context, ref *Reference) error {
	return t.storage.storeReferenceWithQuerier(ctx, t.querier(), ref)
}

func (t *sqliteTx) StoreImport(ctx context.Context, imp *Import) error {
	return t.storage.storeImportWithQuerier(ctx, t.querier(), imp)
}

func (t *sqliteTx) ListImportsByFile(ctx context.Context, fileID int64) ([]*Import, error) {
	return t.storage.listImportsByFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) SearchSymbolsFuzzy(ctx context.Context, query string, limit int) ([]FuzzyResult, error) {
	return t.storage.searchSymbolsFuzzyWithQuerier(ctx, t.querier(), query, limit)
}

func (t *sqliteTx) SearchBM25(ctx context.Context, query, table string, limit, offset int) ([]BM25Result, error) {
	return t.storage.searchBM25WithQuerier(ctx, t.querier(), query, table, limit, offset, false)
}

func (t *sqliteTx) SearchBM25WithSnippets(ctx context.Context, query, table string, limit int) ([]BM25Result, error) {
	return t.storage.searchBM25WithQuerier(ctx, t.querier(), query, table, limit, 0, true)
}

func (t *sqliteTx) SearchSymbolsHighlight(ctx context.Context, query string, limit int) ([]HighlightResult, error) {
	return t.storage.searchSymbolsHighlightWithQuerier(ctx, t.querier(), query, limit)
}

func (t *sqliteTx) TermStatistics(ctx context.Context, term, table string) (*TermStats, error) {
	return t.storage.termStatisticsWithQuerier(ctx, t.querier(), term, table)
}

func (t *sqliteTx) OptimizeFTS(ctx context.Context) ([]MaintenanceResult, error) {
	return t.storage.runFTSMaintenance(ctx, t.querier(), "optimize")
}

func (t *sqliteTx) RebuildFTS(ctx context.Context) ([]MaintenanceResult, error) {
	return t.storage.runFTSMaintenance(ctx, t.querier(), "rebuild")
}

func (t *sqliteTx) InsertRelationship(ctx context.Context, rel *types.Relationship) (int64, error) {
	return t.storage.insertRelationshipWithQuerier(ctx, t.querier(), rel)
}

func (t *sqliteTx) InsertRelationships(ctx context.Context, rels []*types.Relationship) (int, error) {
	return t.storage.insertRelationshipsWithQuerier(ctx, t.querier(), rels)
}

func (t *sqliteTx) EdgesFrom(ctx context.Context, sourceIDs []int64, typeFilter []types.RelationshipType) ([]*Edge, error) {
	return t.storage.edgesWithQuerier(ctx, t.querier(), "source_entity_id", sourceIDs, typeFilter)
}

func (t *sqliteTx) EdgesTo(ctx context.Context, targetIDs []int64, typeFilter []types.RelationshipType) ([]*Edge, error) {
	return t.storage.edgesWithQuerier(ctx, t.querier(), "target_entity_id", targetIDs, typeFilter)
}

func (t *sqliteTx) RelationshipCount(ctx context.Context, typeFilter types.RelationshipType) (int, error) {
	return t.storage.relationshipCountWithQuerier(ctx, t.querier(), typeFilter)
}

func (t *sqliteTx) ClearRelationships(ctx context.Context, entityID int64) (int64, error) {
	return t.storage.clearRelationshipsWithQuerier(ctx, t.querier(), entityID)
}

func (t *sqliteTx) GetStatistics(ctx context.Context) (*Statistics, error) {
	return t.storage.GetStatistics(ctx)
}

func (t *sqliteTx) HealthCheck(ctx context.Context) *HealthReport {
	return t.storage.HealthCheck(ctx)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
