package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/codeindex-mcp/internal/storage"
	"github.com/dshills/codeindex-mcp/pkg/types"
)

// Mode defines which index a search runs against
type Mode string

const (
	ModeFuzzy   Mode = "fuzzy"   // Trigram match over symbol names
	ModeText    Mode = "text"    // BM25 full-text over file content
	ModeSymbols Mode = "symbols" // FTS over symbol names with highlights
)

// Request contains parameters for a search operation
type Request struct {
	Query    string
	Mode     Mode
	Table    string // Content table for text mode; empty means the default
	Limit    int
	Offset   int
	UseCache bool
	CacheTTL time.Duration
}

// Response contains search results and metadata
type Response struct {
	Results      []types.SearchResult
	TotalResults int
	Mode         Mode
	Duration     time.Duration
	CacheHit     bool
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher coordinates queries across the store's search indexes
type Searcher struct {
	storage storage.Storage
	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(st storage.Storage) *Searcher {
	// LRU with a 1000 entry limit; oldest queries evict automatically
	cache, err := lru.New[[32]byte, *cacheEntry](1000)
	if err != nil {
		// Only reachable with an invalid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{storage: st, cache: cache}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var response *Response
	var err error
	switch req.Mode {
	case ModeFuzzy:
		response, err = s.fuzzySearch(ctx, req)
	case ModeText:
		response, err = s.textSearch(ctx, req)
	case ModeSymbols:
		response, err = s.symbolSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.Mode = req.Mode

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// fuzzySearch ranks symbols by shared trigrams with the query
func (s *Searcher) fuzzySearch(ctx context.Context, req Request) (*Response, error) {
	hits, err := s.storage.SearchSymbolsFuzzy(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(hits))
	for i, hit := range hits {
		result := types.SearchResult{
			SymbolID: hit.SymbolID,
			Rank:     i + 1,
			Score:    hit.Score,
			File: &types.FileInfo{
				Path: hit.FilePath,
				Line: hit.LineStart,
			},
		}
		// Full symbol rows are best effort; the hit stands without one
		if sym, err := s.storage.GetSymbolByID(ctx, hit.SymbolID); err == nil {
			ts := sym.ToTypesSymbol()
			result.Symbol = &ts
			result.FileID = sym.FileID
		}
		results = append(results, result)
	}

	return &Response{Results: results, TotalResults: len(results)}, nil
}

// textSearch runs BM25 full-text search over file content
func (s *Searcher) textSearch(ctx context.Context, req Request) (*Response, error) {
	var hits []storage.BM25Result
	var err error
	if req.Offset > 0 {
		hits, err = s.storage.SearchBM25(ctx, req.Query, req.Table, req.Limit, req.Offset)
	} else {
		hits, err = s.storage.SearchBM25WithSnippets(ctx, req.Query, req.Table, req.Limit)
	}
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(hits))
	for i, hit := range hits {
		results = append(results, types.SearchResult{
			FileID:  hit.FileID,
			Rank:    req.Offset + i + 1,
			Score:   hit.Score,
			Snippet: hit.Snippet,
			File: &types.FileInfo{
				Path:     hit.Path,
				Language: hit.Language,
			},
		})
	}

	return &Response{Results: results, TotalResults: len(results)}, nil
}

// symbolSearch runs FTS over symbol names with inline match markers
func (s *Searcher) symbolSearch(ctx context.Context, req Request) (*Response, error) {
	hits, err := s.storage.SearchSymbolsHighlight(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(hits))
	for i, hit := range hits {
		result := types.SearchResult{
			SymbolID: hit.SymbolID,
			Rank:     i + 1,
			Score:    hit.Score,
			Snippet:  hit.Highlighted,
		}
		if sym, err := s.storage.GetSymbolByID(ctx, hit.SymbolID); err == nil {
			ts := sym.ToTypesSymbol()
			result.Symbol = &ts
			result.FileID = sym.FileID
		}
		results = append(results, result)
	}

	return &Response{Results: results, TotalResults: len(results)}, nil
}

// validateRequest ensures the search request is valid
func (s *Searcher) validateRequest(req *Request) error {
	if req.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Limit > 100 {
		req.Limit = 100
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	if req.Mode == "" {
		req.Mode = ModeText
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = 1 * time.Hour
	}
	return nil
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req Request) *Response {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	// Copy under the read lock so the entry cannot change mid-copy
	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves search results to the cache
func (s *Searcher) storeInCache(req Request, response *Response) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. Call after ingestion
// changes the index under cached queries.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// copyResponse creates a deep copy of a Response
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}

	dst := &Response{
		TotalResults: src.TotalResults,
		Mode:         src.Mode,
		Duration:     src.Duration,
		CacheHit:     src.CacheHit,
		Results:      make([]types.SearchResult, len(src.Results)),
	}
	for i, result := range src.Results {
		dst.Results[i] = types.SearchResult{
			SymbolID: result.SymbolID,
			FileID:   result.FileID,
			Rank:     result.Rank,
			Score:    result.Score,
			Snippet:  result.Snippet,
		}
		// Symbol and FileInfo hold only value fields, shallow copy is enough
		if result.Symbol != nil {
			symbolCopy := *result.Symbol
			dst.Results[i].Symbol = &symbolCopy
		}
		if result.File != nil {
			fileCopy := *result.File
			dst.Results[i].File = &fileCopy
		}
	}
	return dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req Request) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(req.Table)
	data.WriteString("|")
	fmt.Fprintf(&data, "%d|%d", req.Limit, req.Offset)
	return sha256.Sum256([]byte(data.String()))
}
