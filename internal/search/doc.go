// Package search coordinates queries across the store's search
// indexes and caches hot queries.
//
// Three modes are supported: fuzzy trigram matching over symbol names,
// BM25-ranked full-text search over file content, and FTS symbol name
// search with inline match markers. Responses are cached in a
// bounded LRU keyed by a hash of the request, with per-request TTL;
// ingestion invalidates the cache wholesale.
//
//	searcher := search.NewSearcher(store)
//	resp, err := searcher.Search(ctx, search.Request{
//	    Query:    "parse config",
//	    Mode:     search.ModeText,
//	    Limit:    10,
//	    UseCache: true,
//	})
package search
