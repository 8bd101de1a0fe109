package storage

import (
	"context"
	"strings"

	"github.com/dshills/codeindex-mcp/pkg/types"
)

// Trigram fuzzy matching. Names are case-folded and padded with two
// spaces on each side before decomposition so that prefixes and
// suffixes produce distinctive boundary trigrams. The score of a
// candidate is the fraction of the query's distinct trigrams it
// shares, giving a value in [0, 1].

// extractTrigrams decomposes a name into its distinct trigram set
func extractTrigrams(name string) []string {
	padded := "  " + strings.ToLower(name) + "  "
	runes := []rune(padded)
	if len(runes) < 3 {
		return nil
	}

	seen := make(map[string]bool)
	trigrams := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		t := string(runes[i : i+3])
		if !seen[t] {
			seen[t] = true
			trigrams = append(trigrams, t)
		}
	}
	return trigrams
}

// storeTrigramsWithQuerier replaces the symbol's trigram set. Runs in
// the caller's unit of work alongside the symbol insert.
func (s *SQLiteStore) storeTrigramsWithQuerier(ctx context.Context, q querier, symbolID int64, name string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM symbol_trigrams WHERE symbol_id = ?", symbolID); err != nil {
		return classifyErr(err)
	}
	for _, t := range extractTrigrams(name) {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO symbol_trigrams (symbol_id, trigram) VALUES (?, ?)",
			symbolID, t); err != nil {
			return classifyErr(err)
		}
	}
	return nil
}

// searchSymbolsFuzzyWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) searchSymbolsFuzzyWithQuerier(ctx context.Context, q querier, query string, limit int) ([]FuzzyResult, error) {
	trigrams := extractTrigrams(query)
	if len(trigrams) == 0 {
		return []FuzzyResult{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(trigrams)), ",")
	args := make([]interface{}, 0, len(trigrams)+2)
	args = append(args, float64(len(trigrams)))
	for _, t := range trigrams {
		args = append(args, t)
	}
	args = append(args, limit)

	sqlQuery := `
		SELECT s.id, s.name, s.kind, f.relative_path, s.line_start,
		       COUNT(DISTINCT st.trigram) / ? AS score
		FROM symbol_trigrams st
		JOIN symbols s ON s.id = st.symbol_id
		JOIN files f ON f.id = s.file_id
		WHERE st.trigram IN (` + placeholders + `) AND f.is_deleted = 0
		GROUP BY s.id, s.name, s.kind, f.relative_path, s.line_start
		ORDER BY score DESC, s.name
		LIMIT ?
	`

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]FuzzyResult, 0)
	for rows.Next() {
		var r FuzzyResult
		var kindStr string
		if err := rows.Scan(&r.SymbolID, &r.Name, &kindStr, &r.FilePath, &r.LineStart, &r.Score); err != nil {
			return nil, err
		}
		r.Kind = types.SymbolKind(kindStr)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) SearchSymbolsFuzzy(ctx context.Context, query string, limit int) ([]FuzzyResult, error) {
	return s.searchSymbolsFuzzyWithQuerier(ctx, s.querier(), query, limit)
}
