package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists relations to the entity_relationships table
// managed by internal/store migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, rel Relation) error {
	if len(rel.Evidence) == 0 {
		return fmt.Errorf("graph: relation %s->%s (%s) has no evidence", rel.FromEntity, rel.ToEntity, rel.Type)
	}
	properties, err := json.Marshal(rel.Properties)
	if err != nil {
		return fmt.Errorf("graph: marshal properties: %w", err)
	}
	evidence, err := json.Marshal(rel.Evidence)
	if err != nil {
		return fmt.Errorf("graph: marshal evidence: %w", err)
	}
	if rel.ValidFrom.IsZero() {
		rel.ValidFrom = time.Now()
	}
	if rel.FirstSeenAt.IsZero() {
		rel.FirstSeenAt = rel.ValidFrom
	}
	if rel.LastSeenAt.IsZero() {
		rel.LastSeenAt = rel.ValidFrom
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_relationships
			(id, from_entity, to_entity, rel_type, direction, properties, source_filing_id, explicit, confidence,
			 evidence, valid_from, valid_to, first_seen_at, last_seen_at, is_significant, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())`,
		rel.ID, rel.FromEntity, rel.ToEntity, string(rel.Type), string(rel.Direction), properties, rel.SourceFilingID, rel.Explicit, rel.Confidence,
		evidence, rel.ValidFrom, rel.ValidTo, rel.FirstSeenAt, rel.LastSeenAt, rel.IsSignificant)
	if err != nil {
		return fmt.Errorf("graph: insert relation: %w", err)
	}
	return nil
}

// OpenRelations returns every still-open (valid_to IS NULL) relation of
// relType pointing at toEntity — the set a fresh Exhibit-21 table is
// diffed against to decide which edges it reconfirms and which it
// implicitly closes.
func (s *PostgresStore) OpenRelations(ctx context.Context, toEntity string, relType RelationType) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx, relationSelect+`
		WHERE to_entity = $1 AND rel_type = $2 AND valid_to IS NULL`, toEntity, string(relType))
	if err != nil {
		return nil, fmt.Errorf("graph: open relations query: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

// Touch reconfirms a still-open relation, bumping last_seen_at to
// confirmedAt — called when a later filing restates the same edge
// (e.g. the same subsidiary reappears in the next 10-K's Exhibit 21).
func (s *PostgresStore) Touch(ctx context.Context, id string, confirmedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE entity_relationships SET last_seen_at = $1 WHERE id = $2`, confirmedAt, id)
	if err != nil {
		return fmt.Errorf("graph: touch relation: %w", err)
	}
	return nil
}

// Close sets valid_to on an open relation to the last moment it was
// confirmed, not the moment it was discovered absent: a 10-K filed in
// 2024 that omits a subsidiary present in the 2023 10-K means the
// relation held through the 2023 filing, not through 2024.
func (s *PostgresStore) Close(ctx context.Context, id string, validTo time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE entity_relationships SET valid_to = $1 WHERE id = $2 AND valid_to IS NULL`, validTo, id)
	if err != nil {
		return fmt.Errorf("graph: close relation: %w", err)
	}
	return nil
}

// Neighbors returns every relation touching entityID, in either
// direction, optionally filtered to a single RelationType.
func (s *PostgresStore) Neighbors(ctx context.Context, entityID string, relType RelationType) ([]Relation, error) {
	query := relationSelect + ` WHERE (from_entity = $1 OR to_entity = $1)`
	args := []any{entityID}
	if relType != "" {
		query += ` AND rel_type = $2`
		args = append(args, string(relType))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: neighbors query: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

const relationSelect = `
	SELECT id, from_entity, to_entity, rel_type, direction, properties, coalesce(source_filing_id, ''), explicit, confidence,
	       evidence, valid_from, valid_to, first_seen_at, last_seen_at, is_significant, created_at
	FROM entity_relationships`

func scanRelations(rows *sql.Rows) ([]Relation, error) {
	var relations []Relation
	for rows.Next() {
		var rel Relation
		var relType, direction string
		var properties, evidence []byte
		if err := rows.Scan(&rel.ID, &rel.FromEntity, &rel.ToEntity, &relType, &direction, &properties, &rel.SourceFilingID, &rel.Explicit, &rel.Confidence,
			&evidence, &rel.ValidFrom, &rel.ValidTo, &rel.FirstSeenAt, &rel.LastSeenAt, &rel.IsSignificant, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("graph: scan relation: %w", err)
		}
		rel.Type = RelationType(relType)
		rel.Direction = Direction(direction)
		if err := json.Unmarshal(properties, &rel.Properties); err != nil {
			return nil, fmt.Errorf("graph: unmarshal properties: %w", err)
		}
		if err := json.Unmarshal(evidence, &rel.Evidence); err != nil {
			return nil, fmt.Errorf("graph: unmarshal evidence: %w", err)
		}
		relations = append(relations, rel)
	}
	return relations, rows.Err()
}
