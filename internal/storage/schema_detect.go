package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaCapability classifies the on-disk layout once at open time.
// Query methods switch on the result instead of sniffing PRAGMAs
// per call.
type SchemaCapability int

const (
	// SchemaEmpty is a fresh database with no tables; bootstrap it.
	SchemaEmpty SchemaCapability = iota
	// SchemaFull is our own layout, current or migratable.
	SchemaFull
	// SchemaSearchOnly is the minimal layout written by lightweight
	// ingestion tools: a bm25 content table without the files table.
	// Creation and migrations are skipped entirely so the foreign
	// layout is never touched.
	SchemaSearchOnly
)

func (c SchemaCapability) String() string {
	switch c {
	case SchemaEmpty:
		return "empty"
	case SchemaFull:
		return "full"
	case SchemaSearchOnly:
		return "search-only"
	default:
		return "unknown"
	}
}

// ftsLayout classifies the physical shape of one full-text content
// table. Two historical generations exist on disk.
type ftsLayout int

const (
	// layoutUnknown: unrecognized shape; reads return empty results
	// with a logged warning rather than erroring.
	layoutUnknown ftsLayout = iota
	// layoutModern foreign-keys into files via a file_id column.
	layoutModern
	// layoutLegacy stores the file path directly in a filepath column.
	layoutLegacy
)

func (l ftsLayout) String() string {
	switch l {
	case layoutModern:
		return "modern"
	case layoutLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// detectSchema sniffs the database's capability class from
// sqlite_master.
func detectSchema(ctx context.Context, db *sql.DB) (SchemaCapability, error) {
	tables, err := tableNames(ctx, db)
	if err != nil {
		return SchemaEmpty, err
	}
	if len(tables) == 0 {
		return SchemaEmpty, nil
	}

	hasFiles := tables["files"]
	hasBM25 := tables["bm25_content"]

	if !hasFiles && hasBM25 {
		return SchemaSearchOnly, nil
	}
	if !hasFiles && !tables["schema_version"] {
		// Tables exist but none of ours. Treat as empty so migrations
		// can still bootstrap alongside whatever is there.
		return SchemaEmpty, nil
	}
	return SchemaFull, nil
}

// tableNames returns the set of ordinary and virtual table names.
func tableNames(ctx context.Context, q querier) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return nil, fmt.Errorf("failed to read sqlite_master: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}

// detectFTSLayout inspects one content table's columns and tags its
// generation.
func detectFTSLayout(ctx context.Context, q querier, table string) (ftsLayout, error) {
	if !validIdentifier(table) {
		return layoutUnknown, nil
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return layoutUnknown, err
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return layoutUnknown, err
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return layoutUnknown, err
	}

	switch {
	case cols["file_id"]:
		return layoutModern, nil
	case cols["filepath"] && cols["content"]:
		return layoutLegacy, nil
	default:
		return layoutUnknown, nil
	}
}

// listFTSTables discovers every FTS5 virtual table. Maintenance and
// search never hard-code table names; a database may carry content
// tables this code has never heard of.
func listFTSTables(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND sql LIKE 'CREATE VIRTUAL TABLE%USING fts5%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// validIdentifier guards dynamically discovered table names before
// they are interpolated into PRAGMA or FTS maintenance statements.
func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
