package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedContent(t *testing.T, store *SQLiteStore) int64 {
	t.Helper()
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	docs := map[string]string{
		"auth/login.py":    "def login(user, password):\n    return authenticate(user, password)\n",
		"auth/session.py":  "class Session:\n    def refresh(self):\n        pass\n",
		"util/strings.py":  "def slugify(text):\n    return text.lower().replace(' ', '-')\n",
		"README.md":        "Authentication service with session handling and login flows.",
	}
	for path, body := range docs {
		_, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/"+path, []byte(body), &FileOptions{Language: "python"})
		require.NoError(t, err)
	}
	return repoID
}

func TestSearchBM25(t *testing.T) {
	store := setupTestDB(t)
	seedContent(t, store)

	results, err := store.SearchBM25(context.Background(), "login", "", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotZero(t, r.FileID)
		assert.NotEmpty(t, r.Path)
	}
}

func TestSearchBM25Deterministic(t *testing.T) {
	store := setupTestDB(t)
	seedContent(t, store)

	first, err := store.SearchBM25(context.Background(), "session", "", 10, 0)
	require.NoError(t, err)
	second, err := store.SearchBM25(context.Background(), "session", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearchBM25Pagination(t *testing.T) {
	store := setupTestDB(t)
	seedContent(t, store)

	all, err := store.SearchBM25(context.Background(), "authenticate OR session OR login", "", 10, 0)
	require.NoError(t, err)
	require.Greater(t, len(all), 1)

	page, err := store.SearchBM25(context.Background(), "authenticate OR session OR login", "", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[1], page[0])
}

func TestSearchBM25WithSnippets(t *testing.T) {
	store := setupTestDB(t)
	seedContent(t, store)

	results, err := store.SearchBM25WithSnippets(context.Background(), "slugify", "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Snippet, ">>")
}

func TestSearchBM25RejectsBadTable(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.SearchBM25(context.Background(), "x", "bm25; DROP TABLE files", 10, 0)
	assert.Error(t, err)
}

func TestSearchBM25LegacyLayout(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	// Hand-build an old-generation content table: path inline, no ids
	_, err := store.db.ExecContext(ctx,
		"CREATE VIRTUAL TABLE legacy_content USING fts5(filepath, content)")
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx,
		"INSERT INTO legacy_content (filepath, content) VALUES (?, ?)",
		"old/module.py", "def ancient(): pass")
	require.NoError(t, err)

	results, err := store.SearchBM25(ctx, "ancient", "legacy_content", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "old/module.py", results[0].Path)
	assert.Zero(t, results[0].FileID)
}

func TestSearchBM25UnknownLayout(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		"CREATE VIRTUAL TABLE odd_content USING fts5(alpha, beta)")
	require.NoError(t, err)

	// Unrecognized shape: empty results, no error
	results, err := store.SearchBM25(ctx, "anything", "odd_content", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSymbolsHighlight(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)
	fileID, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/h.py", []byte("# x"), nil)
	require.NoError(t, err)
	require.NoError(t, store.StoreSymbol(ctx, &Symbol{
		FileID: fileID, Name: "request_handler", Kind: "function", LineStart: 1, LineEnd: 1,
	}))

	results, err := store.SearchSymbolsHighlight(ctx, "handler", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Highlighted, ">>handler<<")
}

func TestTermStatistics(t *testing.T) {
	store := setupTestDB(t)
	seedContent(t, store)

	stats, err := store.TermStatistics(context.Background(), "session", "")
	require.NoError(t, err)
	assert.Equal(t, "session", stats.Term)
	assert.Equal(t, 4, stats.TotalDocs)
	assert.Equal(t, 2, stats.DocFreq)
	assert.Greater(t, stats.AvgDocLength, 0.0)
}

func TestTermStatisticsNegativeIDF(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	repoID := setupTestRepo(t, store)

	// A term in every document: the BM25 IDF goes negative and is
	// reported as computed
	for i := 0; i < 3; i++ {
		_, err := store.StoreFile(ctx, repoID,
			fmt.Sprintf("/tmp/testrepo/f%d.py", i),
			[]byte(fmt.Sprintf("common token number %d", i)), nil)
		require.NoError(t, err)
	}

	stats, err := store.TermStatistics(ctx, "common", "")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.DocFreq)
	assert.Less(t, stats.IDF, 0.0)
}

func TestFTSMaintenance(t *testing.T) {
	store := setupTestDB(t)
	seedContent(t, store)

	results, err := store.OptimizeFTS(context.Background())
	require.NoError(t, err)
	// Both built-in content tables are discovered
	names := make(map[string]bool)
	for _, r := range results {
		names[r.Table] = true
		assert.NoError(t, r.Err)
	}
	assert.True(t, names["bm25_content"])
	assert.True(t, names["fts_symbols"])

	rebuilt, err := store.RebuildFTS(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rebuilt)

	// Search still works after a rebuild
	hits, err := store.SearchBM25(context.Background(), "login", "", 10, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestFTSMaintenanceDiscoversForeignTables(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		"CREATE VIRTUAL TABLE extra_content USING fts5(body)")
	require.NoError(t, err)

	results, err := store.OptimizeFTS(ctx)
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, r := range results {
		names[r.Table] = true
	}
	assert.True(t, names["extra_content"])
}
