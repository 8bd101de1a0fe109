package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTrigrams(t *testing.T) {
	trigrams := extractTrigrams("ab")
	// "  ab  " decomposes into boundary trigrams
	assert.Contains(t, trigrams, " ab")
	assert.Contains(t, trigrams, "ab ")

	// Case folded
	upper := extractTrigrams("AB")
	assert.Equal(t, trigrams, upper)

	// Duplicates collapse
	repeated := extractTrigrams("aaaa")
	seen := make(map[string]int)
	for _, tr := range repeated {
		seen[tr]++
	}
	for tr, n := range seen {
		assert.Equal(t, 1, n, "trigram %q appears more than once", tr)
	}
}

func TestExtractTrigramsEmpty(t *testing.T) {
	assert.NotEmpty(t, extractTrigrams("x"))
	assert.Empty(t, extractTrigrams(""))
}

func seedFuzzySymbols(t *testing.T, store *SQLiteStore, names ...string) {
	t.Helper()
	ctx := context.Background()
	repoID := setupTestRepo(t, store)
	fileID, err := store.StoreFile(ctx, repoID, "/tmp/testrepo/api.py", []byte("# symbols"), nil)
	require.NoError(t, err)
	for i, name := range names {
		sym := &Symbol{FileID: fileID, Name: name, Kind: "function", LineStart: i + 1, LineEnd: i + 1}
		require.NoError(t, store.StoreSymbol(ctx, sym))
	}
}

func TestSearchSymbolsFuzzyPartialMatch(t *testing.T) {
	store := setupTestDB(t)
	seedFuzzySymbols(t, store, "getUserById", "deleteUser", "renderTemplate")

	// A partial, case-insensitive query still finds the symbol
	hits, err := store.SearchSymbolsFuzzy(context.Background(), "userid", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "getUserById", hits[0].Name)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.LessOrEqual(t, hits[0].Score, 1.0)
	assert.Equal(t, "api.py", hits[0].FilePath)
}

func TestSearchSymbolsFuzzyExactScoresHighest(t *testing.T) {
	store := setupTestDB(t)
	seedFuzzySymbols(t, store, "parse", "parseConfig", "reparse")

	hits, err := store.SearchSymbolsFuzzy(context.Background(), "parse", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	// The exact name shares every query trigram
	assert.Equal(t, "parse", hits[0].Name)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestSearchSymbolsFuzzyOrderingDeterministic(t *testing.T) {
	store := setupTestDB(t)
	seedFuzzySymbols(t, store, "alpha", "beta", "gamma")

	first, err := store.SearchSymbolsFuzzy(context.Background(), "alph", 10)
	require.NoError(t, err)
	second, err := store.SearchSymbolsFuzzy(context.Background(), "alph", 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearchSymbolsFuzzyEmptyQuery(t *testing.T) {
	store := setupTestDB(t)
	seedFuzzySymbols(t, store, "anything")

	hits, err := store.SearchSymbolsFuzzy(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchSymbolsFuzzyRespectsLimit(t *testing.T) {
	store := setupTestDB(t)
	seedFuzzySymbols(t, store, "handlerA", "handlerB", "handlerC", "handlerD")

	hits, err := store.SearchSymbolsFuzzy(context.Background(), "handler", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}
