// Package validation records events raised when ingestion encounters
// data it refuses to silently drop: poisoned filings, overlapping
// section candidates, merge-cycle detections. It is the one surface
// operators use to see everything the pipeline chose not to fail on.
package validation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Kind enumerates the validation events this core raises.
type Kind string

const (
	KindMalformedSource     Kind = "malformed_source"
	KindOverlappingSections Kind = "overlapping_sections"
	KindMergeCycle          Kind = "merge_cycle"
	KindAmbiguousResolution Kind = "ambiguous_resolution"
	KindIntegrityViolation  Kind = "integrity_violation"
)

// Event is a single validation occurrence, tied to whatever subject
// triggered it (a record, filing, section, or entity id).
type Event struct {
	SubjectType string
	SubjectID   string
	Kind        Kind
	Detail      map[string]any
	CreatedAt   time.Time
}

// Store persists validation events for operator inspection.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing *sql.DB; schema is managed by internal/store
// migrations.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record writes one validation event, returning any marshal or insert
// error to the caller; the pipeline activities that call it abort on
// such an error.
func (s *Store) Record(ctx context.Context, ev Event) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("validation: marshal detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO validation_events (subject_type, subject_id, kind, detail)
		VALUES ($1, $2, $3, $4)`,
		ev.SubjectType, ev.SubjectID, string(ev.Kind), detail)
	if err != nil {
		return fmt.Errorf("validation: insert: %w", err)
	}
	return nil
}

// ListForSubject returns validation events raised against one subject,
// most recent first.
func (s *Store) ListForSubject(ctx context.Context, subjectType, subjectID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_type, subject_id, kind, detail, created_at
		FROM validation_events
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY created_at DESC`, subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("validation: list: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var detail []byte
		var kind string
		if err := rows.Scan(&ev.SubjectType, &ev.SubjectID, &kind, &detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("validation: scan: %w", err)
		}
		ev.Kind = Kind(kind)
		if err := json.Unmarshal(detail, &ev.Detail); err != nil {
			return nil, fmt.Errorf("validation: unmarshal detail: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
