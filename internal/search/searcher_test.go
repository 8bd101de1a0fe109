package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeindex-mcp/internal/storage"
)

func setupSearcher(t *testing.T) (*Searcher, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewSearcher(store), store
}

func seedIndex(t *testing.T, store *storage.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	repoID, err := store.CreateRepository(ctx, "/tmp/searchrepo", "searchrepo", nil)
	require.NoError(t, err)

	fileID, err := store.StoreFile(ctx, repoID, "/tmp/searchrepo/users.py",
		[]byte("def get_user_by_id(user_id):\n    return db.find(user_id)\n"),
		&storage.FileOptions{Language: "python"})
	require.NoError(t, err)

	require.NoError(t, store.StoreSymbol(ctx, &storage.Symbol{
		FileID: fileID, Name: "get_user_by_id", Kind: "function", LineStart: 1, LineEnd: 2,
	}))
}

func TestSearchFuzzyMode(t *testing.T) {
	searcher, store := setupSearcher(t)
	seedIndex(t, store)

	resp, err := searcher.Search(context.Background(), Request{
		Query: "userid",
		Mode:  ModeFuzzy,
		Limit: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, ModeFuzzy, resp.Mode)
	require.NotNil(t, resp.Results[0].Symbol)
	assert.Equal(t, "get_user_by_id", resp.Results[0].Symbol.Name)
	assert.Equal(t, "users.py", resp.Results[0].File.Path)
	assert.Equal(t, 1, resp.Results[0].Rank)
}

func TestSearchTextMode(t *testing.T) {
	searcher, store := setupSearcher(t)
	seedIndex(t, store)

	resp, err := searcher.Search(context.Background(), Request{
		Query: "find",
		Mode:  ModeText,
		Limit: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "users.py", resp.Results[0].File.Path)
	assert.NotEmpty(t, resp.Results[0].Snippet)
}

func TestSearchSymbolsMode(t *testing.T) {
	searcher, store := setupSearcher(t)
	seedIndex(t, store)

	resp, err := searcher.Search(context.Background(), Request{
		Query: "user",
		Mode:  ModeSymbols,
		Limit: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Contains(t, resp.Results[0].Snippet, ">>user<<")
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	searcher, _ := setupSearcher(t)

	_, err := searcher.Search(context.Background(), Request{Mode: ModeText})
	assert.Error(t, err)
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	searcher, _ := setupSearcher(t)

	_, err := searcher.Search(context.Background(), Request{Query: "x", Mode: "psychic"})
	assert.Error(t, err)
}

func TestSearchDefaultsApplied(t *testing.T) {
	searcher, store := setupSearcher(t)
	seedIndex(t, store)

	// Empty mode falls back to text search
	resp, err := searcher.Search(context.Background(), Request{Query: "find"})
	require.NoError(t, err)
	assert.Equal(t, ModeText, resp.Mode)
}

func TestSearchCacheHit(t *testing.T) {
	searcher, store := setupSearcher(t)
	seedIndex(t, store)
	ctx := context.Background()

	req := Request{Query: "find", Mode: ModeText, Limit: 10, UseCache: true, CacheTTL: time.Minute}

	first, err := searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)
}

func TestSearchCacheIsolatedByRequest(t *testing.T) {
	searcher, store := setupSearcher(t)
	seedIndex(t, store)
	ctx := context.Background()

	_, err := searcher.Search(ctx, Request{Query: "find", Mode: ModeText, UseCache: true})
	require.NoError(t, err)

	// Different mode misses even with the same query text
	resp, err := searcher.Search(ctx, Request{Query: "find", Mode: ModeFuzzy, UseCache: true})
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestInvalidateCache(t *testing.T) {
	searcher, store := setupSearcher(t)
	seedIndex(t, store)
	ctx := context.Background()

	req := Request{Query: "find", Mode: ModeText, UseCache: true}
	_, err := searcher.Search(ctx, req)
	require.NoError(t, err)

	searcher.InvalidateCache()

	resp, err := searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestCachedResponseIsACopy(t *testing.T) {
	searcher, store := setupSearcher(t)
	seedIndex(t, store)
	ctx := context.Background()

	req := Request{Query: "find", Mode: ModeText, UseCache: true}
	first, err := searcher.Search(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, first.Results)

	// Mutating a returned response must not poison the cache
	first.Results[0].Snippet = "tampered"

	second, err := searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", second.Results[0].Snippet)
}
