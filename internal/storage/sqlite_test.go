package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func setupTestRepo(t *testing.T, store *SQLiteStore) int64 {
	t.Helper()
	id, err := store.CreateRepository(context.Background(), "/tmp/testrepo", "testrepo", nil)
	require.NoError(t, err)
	return id
}

func TestCreateRepositoryUpsert(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	id1, err := store.CreateRepository(ctx, "/tmp/repo", "first", nil)
	require.NoError(t, err)

	// Re-registering the same path updates in place, same id
	id2, err := store.CreateRepository(ctx, "/tmp/repo", "renamed", nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	repo, err := store.GetRepository(ctx, "/tmp/repo")
	require.NoError(t, err)
	assert.Equal(t, "renamed", repo.Name)

	repos, err := store.ListRepositories(ctx)
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}

func TestGetRepositoryNotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetRepository(context.Background(), "/nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFileIdempotent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	content := []byte("def main():\n    pass\n")
	id1, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/app/main.py", content, &FileOptions{Language: "python"})
	require.NoError(t, err)

	id2, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/app/main.py", content, &FileOptions{Language: "python"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	files, err := store.ListFiles(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "app/main.py", files[0].RelativePath)
	assert.Equal(t, ContentHash(content), files[0].ContentHash)
	assert.Equal(t, "python", files[0].Language)
}

func TestStoreFileMoveDetection(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	content := []byte("class Widget:\n    pass\n")
	id1, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/old/widget.py", content, nil)
	require.NoError(t, err)

	// Same content under a new path is a move, not a new file
	id2, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/new/widget.py", content, nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	files, err := store.ListFiles(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "new/widget.py", files[0].RelativePath)

	moves, err := store.ListFileMoves(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, "old/widget.py", moves[0].OldRelativePath)
	assert.Equal(t, "new/widget.py", moves[0].NewRelativePath)
	assert.Equal(t, ContentHash(content), moves[0].ContentHash)

	// The old path no longer resolves
	_, err = store.GetFile(ctx, "old/widget.py", repoID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetFile(ctx, "new/widget.py", repoID)
	require.NoError(t, err)
	assert.Equal(t, id1, got.ID)
}

func TestStoreFileChangedContentSamePath(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	id1, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/a.py", []byte("v1"), nil)
	require.NoError(t, err)

	id2, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/a.py", []byte("v2"), nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := store.GetFile(ctx, "a.py", repoID)
	require.NoError(t, err)
	assert.Equal(t, ContentHash([]byte("v2")), got.ContentHash)

	// Content change in place is not a move
	moves, err := store.ListFileMoves(ctx, repoID)
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestGetFileAcceptsAbsoluteAndRelative(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	_, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/pkg/util.py", []byte("x = 1"), nil)
	require.NoError(t, err)

	byAbs, err := store.GetFile(ctx, "/tmp/testrepo/pkg/util.py", repoID)
	require.NoError(t, err)

	byRel, err := store.GetFile(ctx, "pkg/util.py", repoID)
	require.NoError(t, err)
	assert.Equal(t, byAbs.ID, byRel.ID)

	// Repository id 0 searches across repositories
	anyRepo, err := store.GetFile(ctx, "pkg/util.py", 0)
	require.NoError(t, err)
	assert.Equal(t, byAbs.ID, anyRepo.ID)
}

func TestMarkFileDeletedHidesFromReads(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	_, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/gone.py", []byte("gone"), nil)
	require.NoError(t, err)

	require.NoError(t, store.MarkFileDeleted(ctx, repoID, "gone.py"))

	_, err = store.GetFile(ctx, "gone.py", repoID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Still reachable when deleted rows are requested explicitly
	f, err := store.GetFileIncludingDeleted(ctx, "gone.py", repoID)
	require.NoError(t, err)
	assert.True(t, f.IsDeleted)
	require.NotNil(t, f.DeletedAt)

	// Double delete reports not found
	err = store.MarkFileDeleted(ctx, repoID, "gone.py")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFileRevivesSoftDeleted(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	id1, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/back.py", []byte("v1"), nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkFileDeleted(ctx, repoID, "back.py"))

	id2, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/back.py", []byte("v1"), nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	f, err := store.GetFile(ctx, "back.py", repoID)
	require.NoError(t, err)
	assert.False(t, f.IsDeleted)
	assert.Nil(t, f.DeletedAt)
}

func TestRemoveFileCascades(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	fileID, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/mod.py", []byte("def f(): pass"), nil)
	require.NoError(t, err)

	sym := &Symbol{FileID: fileID, Name: "f", Kind: "function", LineStart: 1, LineEnd: 1}
	require.NoError(t, store.StoreSymbol(ctx, sym))
	require.NoError(t, store.StoreReference(ctx, &Reference{SymbolID: sym.ID, FileID: fileID, LineNumber: 3}))
	require.NoError(t, store.StoreImport(ctx, &Import{FileID: fileID, ImportedPath: "os"}))

	require.NoError(t, store.RemoveFile(ctx, repoID, "mod.py"))

	_, err = store.GetFileByID(ctx, fileID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetSymbolByID(ctx, sym.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	imports, err := store.ListImportsByFile(ctx, fileID)
	require.NoError(t, err)
	assert.Empty(t, imports)

	// The fuzzy index no longer finds the symbol
	hits, err := store.SearchSymbolsFuzzy(ctx, "f", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCleanupDeletedFiles(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	_, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/stale.py", []byte("a"), nil)
	require.NoError(t, err)
	_, err = store.StoreFile(ctx, repoID, "/tmp/testrepo/live.py", []byte("b"), nil)
	require.NoError(t, err)

	require.NoError(t, store.MarkFileDeleted(ctx, repoID, "stale.py"))

	removed, err := store.CleanupDeletedFiles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	files, err := store.ListFiles(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "live.py", files[0].RelativePath)

	// Nothing left to sweep
	removed, err = store.CleanupDeletedFiles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestCleanupRespectsRetention(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	_, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/recent.py", []byte("a"), nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkFileDeleted(ctx, repoID, "recent.py"))

	// Deleted moments ago, retention of an hour keeps it
	removed, err := store.CleanupDeletedFiles(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSymbolRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	fileID, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/svc.py", []byte("class Service: pass"), nil)
	require.NoError(t, err)

	sym := &Symbol{
		FileID:        fileID,
		Name:          "Service",
		Kind:          "class",
		LineStart:     1,
		LineEnd:       10,
		Signature:     "class Service",
		Documentation: "The main service.",
	}
	require.NoError(t, store.StoreSymbol(ctx, sym))
	require.NotZero(t, sym.ID)

	byName, err := store.GetSymbol(ctx, "Service", "")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "svc.py", byName[0].FilePath)
	assert.Equal(t, repoID, byName[0].RepositoryID)

	// Kind filter narrows
	byKind, err := store.GetSymbol(ctx, "Service", "function")
	require.NoError(t, err)
	assert.Empty(t, byKind)

	listed, err := store.ListSymbolsByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "The main service.", listed[0].Documentation)
}

func TestTransactionRollback(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.StoreFile(ctx, repoID, "/tmp/testrepo/tx.py", []byte("x"), nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = store.GetFile(ctx, "tx.py", repoID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionCommit(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.StoreFile(ctx, repoID, "/tmp/testrepo/tx.py", []byte("x"), nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = store.GetFile(ctx, "tx.py", repoID)
	require.NoError(t, err)
}

func TestGetStatistics(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	fileID, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/s.py", []byte("def g(): pass"), nil)
	require.NoError(t, err)
	require.NoError(t, store.StoreSymbol(ctx, &Symbol{FileID: fileID, Name: "g", Kind: "function", LineStart: 1, LineEnd: 1}))

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Repositories)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.Symbols)
	assert.Equal(t, 0, stats.DeletedFiles)
}

func TestHealthCheck(t *testing.T) {
	store := setupTestDB(t)

	report := store.HealthCheck(context.Background())
	assert.Equal(t, "healthy", report.Status)
	assert.True(t, report.FTS5Available)
	assert.True(t, report.Tables["files"])
	assert.True(t, report.Tables["bm25_content"])
	assert.Equal(t, CurrentSchemaVersion, report.SchemaVersion)
}
