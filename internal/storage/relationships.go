package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/codeindex-mcp/pkg/types"
)

// Relationship edges are stored raw; the graph tracker layers
// traversal semantics on top. Entity ids are not foreign-keyed into
// symbols: an edge may reference entities the symbol extractor has not
// registered, so the join below is informational only.

// insertRelationshipWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) insertRelationshipWithQuerier(ctx context.Context, q querier, rel *types.Relationship) (int64, error) {
	if err := rel.Validate(); err != nil {
		return 0, err
	}
	meta, err := rel.Metadata.Encode()
	if err != nil {
		return 0, fmt.Errorf("failed to encode relationship metadata: %w", err)
	}

	query := `
		INSERT INTO relationships (source_entity_id, target_entity_id, relationship_type, confidence_score, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	var id int64
	if err := q.QueryRowContext(ctx, query,
		rel.SourceID, rel.TargetID, string(rel.Type), rel.Confidence, meta, time.Now(),
	).Scan(&id); err != nil {
		return 0, classifyErr(fmt.Errorf("failed to insert relationship: %w", err))
	}
	return id, nil
}

func (s *SQLiteStore) InsertRelationship(ctx context.Context, rel *types.Relationship) (int64, error) {
	if err := s.writeGuard(); err != nil {
		return 0, err
	}
	return s.insertRelationshipWithQuerier(ctx, s.querier(), rel)
}

// insertRelationshipsWithQuerier validates the whole batch before any
// row is written: one bad edge rejects the batch.
func (s *SQLiteStore) insertRelationshipsWithQuerier(ctx context.Context, q querier, rels []*types.Relationship) (int, error) {
	for i, rel := range rels {
		if err := rel.Validate(); err != nil {
			return 0, fmt.Errorf("relationship %d: %w", i, err)
		}
	}
	inserted := 0
	for _, rel := range rels {
		if _, err := s.insertRelationshipWithQuerier(ctx, q, rel); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (s *SQLiteStore) InsertRelationships(ctx context.Context, rels []*types.Relationship) (int, error) {
	if err := s.writeGuard(); err != nil {
		return 0, err
	}
	var n int
	err := s.inTx(ctx, func(q querier) error {
		var err error
		n, err = s.insertRelationshipsWithQuerier(ctx, q, rels)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// edgesWithQuerier fetches edges anchored on one side. anchorColumn is
// either source_entity_id or target_entity_id; it is code-supplied,
// never user input.
func (s *SQLiteStore) edgesWithQuerier(ctx context.Context, q querier, anchorColumn string, ids []int64, typeFilter []types.RelationshipType) ([]*Edge, error) {
	if len(ids) == 0 {
		return []*Edge{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+len(typeFilter))
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT r.id, r.source_entity_id, r.target_entity_id, r.relationship_type,
		       r.confidence_score, r.metadata, r.created_at,
		       src.name, src.kind,
		       tgt.name, tgt.kind, tf.relative_path, tgt.line_start
		FROM relationships r
		LEFT JOIN symbols src ON src.id = r.source_entity_id
		LEFT JOIN symbols tgt ON tgt.id = r.target_entity_id
		LEFT JOIN files tf ON tf.id = tgt.file_id
		WHERE r.%s IN (%s)
	`, anchorColumn, placeholders)

	if len(typeFilter) > 0 {
		typePlaceholders := strings.TrimSuffix(strings.Repeat("?,", len(typeFilter)), ",")
		query += fmt.Sprintf(" AND r.relationship_type IN (%s)", typePlaceholders)
		for _, t := range typeFilter {
			args = append(args, string(t))
		}
	}
	query += " ORDER BY r.id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer func() { _ = rows.Close() }()

	edges := make([]*Edge, 0)
	for rows.Next() {
		var e Edge
		var typeStr, meta string
		var srcName, srcKind, tgtName, tgtKind, tgtFile sql.NullString
		var tgtLine sql.NullInt64
		err := rows.Scan(
			&e.ID, &e.SourceID, &e.TargetID, &typeStr,
			&e.Confidence, &meta, &e.CreatedAt,
			&srcName, &srcKind,
			&tgtName, &tgtKind, &tgtFile, &tgtLine,
		)
		if err != nil {
			return nil, err
		}
		e.Type = types.RelationshipType(typeStr)
		e.SourceName = srcName.String
		e.SourceKind = srcKind.String
		e.TargetName = tgtName.String
		e.TargetKind = tgtKind.String
		e.TargetFile = tgtFile.String
		e.TargetLine = int(tgtLine.Int64)
		if e.Metadata, err = types.DecodeMetadata(meta); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

func (s *SQLiteStore) EdgesFrom(ctx context.Context, sourceIDs []int64, typeFilter []types.RelationshipType) ([]*Edge, error) {
	return s.edgesWithQuerier(ctx, s.querier(), "source_entity_id", sourceIDs, typeFilter)
}

func (s *SQLiteStore) EdgesTo(ctx context.Context, targetIDs []int64, typeFilter []types.RelationshipType) ([]*Edge, error) {
	return s.edgesWithQuerier(ctx, s.querier(), "target_entity_id", targetIDs, typeFilter)
}

// relationshipCountWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) relationshipCountWithQuerier(ctx context.Context, q querier, typeFilter types.RelationshipType) (int, error) {
	query := "SELECT COUNT(*) FROM relationships"
	args := []interface{}{}
	if typeFilter != "" {
		query += " WHERE relationship_type = ?"
		args = append(args, string(typeFilter))
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, classifyErr(err)
	}
	return n, nil
}

func (s *SQLiteStore) RelationshipCount(ctx context.Context, typeFilter types.RelationshipType) (int, error) {
	return s.relationshipCountWithQuerier(ctx, s.querier(), typeFilter)
}

// clearRelationshipsWithQuerier removes edges touching the entity on
// either side. entityID 0 clears the entire graph.
func (s *SQLiteStore) clearRelationshipsWithQuerier(ctx context.Context, q querier, entityID int64) (int64, error) {
	var result sql.Result
	var err error
	if entityID == 0 {
		result, err = q.ExecContext(ctx, "DELETE FROM relationships")
	} else {
		result, err = q.ExecContext(ctx,
			"DELETE FROM relationships WHERE source_entity_id = ? OR target_entity_id = ?",
			entityID, entityID)
	}
	if err != nil {
		return 0, classifyErr(err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) ClearRelationships(ctx context.Context, entityID int64) (int64, error) {
	if err := s.writeGuard(); err != nil {
		return 0, err
	}
	return s.clearRelationshipsWithQuerier(ctx, s.querier(), entityID)
}
