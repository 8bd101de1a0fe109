package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
)

// Full-text search over FTS5. Content tables come in two generations
// (see ftsLayout) and the table name itself is caller-supplied, so
// every query path detects the layout first and shapes its SQL to
// match. An unrecognized layout yields empty results with a warning,
// never an error: an old database must not break the read path.

// searchBM25WithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) searchBM25WithQuerier(ctx context.Context, q querier, query, table string, limit, offset int, withSnippets bool) ([]BM25Result, error) {
	if table == "" {
		table = "bm25_content"
	}
	if !validIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	layout, err := detectFTSLayout(ctx, q, table)
	if err != nil {
		return nil, classifyErr(err)
	}

	snippetCol := "''"

	var sqlQuery string
	switch layout {
	case layoutModern:
		if withSnippets {
			// Column 3 is the content column in the modern layout
			snippetCol = fmt.Sprintf("snippet(%s, 3, '>>', '<<', '...', 16)", table)
		}
		sqlQuery = fmt.Sprintf(`
			SELECT t.file_id, t.filepath, t.filename, t.language, bm25(%s) AS score, %s
			FROM %s t
			WHERE %s MATCH ?
			ORDER BY score, t.filepath
			LIMIT ? OFFSET ?
		`, table, snippetCol, table, table)
	case layoutLegacy:
		if withSnippets {
			// Legacy tables put content in column 1
			snippetCol = fmt.Sprintf("snippet(%s, 1, '>>', '<<', '...', 16)", table)
		}
		sqlQuery = fmt.Sprintf(`
			SELECT 0, t.filepath, '', '', bm25(%s) AS score, %s
			FROM %s t
			WHERE %s MATCH ?
			ORDER BY score, t.filepath
			LIMIT ? OFFSET ?
		`, table, snippetCol, table, table)
	default:
		s.logger.Warn("unrecognized full-text table layout, returning no results", "table", table)
		return []BM25Result{}, nil
	}

	rows, err := q.QueryContext(ctx, sqlQuery, query, limit, offset)
	if err != nil {
		return nil, classifyErr(fmt.Errorf("full-text search failed: %w", err))
	}
	defer func() { _ = rows.Close() }()

	results := make([]BM25Result, 0)
	for rows.Next() {
		var r BM25Result
		var filename, language sql.NullString
		if err := rows.Scan(&r.FileID, &r.Path, &filename, &language, &r.Score, &r.Snippet); err != nil {
			return nil, err
		}
		r.Filename = filename.String
		r.Language = language.String
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) SearchBM25(ctx context.Context, query, table string, limit, offset int) ([]BM25Result, error) {
	return s.searchBM25WithQuerier(ctx, s.querier(), query, table, limit, offset, false)
}

func (s *SQLiteStore) SearchBM25WithSnippets(ctx context.Context, query, table string, limit int) ([]BM25Result, error) {
	return s.searchBM25WithQuerier(ctx, s.querier(), query, table, limit, 0, true)
}

// searchSymbolsHighlightWithQuerier ranks symbol names and wraps the
// matched terms in markers.
func (s *SQLiteStore) searchSymbolsHighlightWithQuerier(ctx context.Context, q querier, query string, limit int) ([]HighlightResult, error) {
	if limit <= 0 {
		limit = 20
	}
	sqlQuery := `
		SELECT rowid, name, highlight(fts_symbols, 0, '>>', '<<') AS highlighted, bm25(fts_symbols) AS score
		FROM fts_symbols
		WHERE fts_symbols MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, sqlQuery, query, limit)
	if err != nil {
		return nil, classifyErr(fmt.Errorf("symbol search failed: %w", err))
	}
	defer func() { _ = rows.Close() }()

	results := make([]HighlightResult, 0)
	for rows.Next() {
		var r HighlightResult
		if err := rows.Scan(&r.SymbolID, &r.Name, &r.Highlighted, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) SearchSymbolsHighlight(ctx context.Context, query string, limit int) ([]HighlightResult, error) {
	return s.searchSymbolsHighlightWithQuerier(ctx, s.querier(), query, limit)
}

// termStatisticsWithQuerier computes corpus statistics for one term.
// The IDF uses the standard BM25 form; a term present in more than
// half the corpus legitimately produces a negative value, which is
// reported as computed rather than clamped.
func (s *SQLiteStore) termStatisticsWithQuerier(ctx context.Context, q querier, term, table string) (*TermStats, error) {
	if table == "" {
		table = "bm25_content"
	}
	if !validIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	stats := &TermStats{Term: term}

	if err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&stats.TotalDocs); err != nil {
		return nil, classifyErr(err)
	}

	if err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s MATCH ?", table, table),
		term).Scan(&stats.DocFreq); err != nil {
		return nil, classifyErr(fmt.Errorf("term frequency query failed: %w", err))
	}

	n := float64(stats.TotalDocs)
	df := float64(stats.DocFreq)
	stats.IDF = math.Log((n - df + 0.5) / (df + 0.5))

	var avg sql.NullFloat64
	if err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT AVG(LENGTH(content)) FROM %s", table)).Scan(&avg); err == nil {
		stats.AvgDocLength = avg.Float64
	}

	return stats, nil
}

func (s *SQLiteStore) TermStatistics(ctx context.Context, term, table string) (*TermStats, error) {
	return s.termStatisticsWithQuerier(ctx, s.querier(), term, table)
}

// runFTSMaintenance applies one maintenance command to every FTS5
// table in the database. Tables are discovered, not hard-coded, and a
// failing table is recorded without aborting the pass.
func (s *SQLiteStore) runFTSMaintenance(ctx context.Context, q querier, command string) ([]MaintenanceResult, error) {
	tables, err := listFTSTables(ctx, q)
	if err != nil {
		return nil, classifyErr(err)
	}

	results := make([]MaintenanceResult, 0, len(tables))
	for _, table := range tables {
		if !validIdentifier(table) {
			continue
		}
		_, err := q.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s(%s) VALUES (?)", table, table), command)
		if err != nil {
			s.logger.Warn("full-text maintenance failed", "table", table, "command", command, "error", err)
			results = append(results, MaintenanceResult{Table: table, Err: classifyErr(err)})
			continue
		}
		results = append(results, MaintenanceResult{Table: table})
	}
	return results, nil
}

func (s *SQLiteStore) OptimizeFTS(ctx context.Context) ([]MaintenanceResult, error) {
	return s.runFTSMaintenance(ctx, s.querier(), "optimize")
}

func (s *SQLiteStore) RebuildFTS(ctx context.Context) ([]MaintenanceResult, error) {
	return s.runFTSMaintenance(ctx, s.querier(), "rebuild")
}
