// Package events persists 8-K item-typed Events: the router output of
// internal/graph's ParseEvents, kept separate from the relationship
// store since spec.md treats events as a distinct record type, out of
// scope for relationship closure rules.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nucleus/filingcore/internal/graph"
)

// Row is a persisted filing event: one 8-K item, anchored back to the
// filing and the byte span it was parsed from.
type Row struct {
	ID          string
	FilingID    string
	AccessionNo string
	ItemNumber  string
	Title       string
	Text        string
	CharStart   int
	CharEnd     int
	CreatedAt   time.Time
}

// Store persists Events against the filing_events table.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateBatch persists every EventItem ParseEvents found for one
// filing, always inserting new rows. It does not check for events
// already recorded for the filing, so running it again for the same
// filing (an activity retry or a reparse) adds a second set of rows, and
// ListByFiling returns both.
func (s *Store) CreateBatch(ctx context.Context, filingID, accessionNo string, items []graph.EventItem) ([]Row, error) {
	if len(items) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("events: begin: %w", err)
	}
	defer tx.Rollback()

	out := make([]Row, 0, len(items))
	for _, it := range items {
		row := Row{
			ID:          uuid.NewString(),
			FilingID:    filingID,
			AccessionNo: accessionNo,
			ItemNumber:  it.ItemNumber,
			Title:       it.Title,
			Text:        it.Text,
			CharStart:   it.CharStart,
			CharEnd:     it.CharEnd,
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO filing_events (id, filing_id, accession_no, item_number, title, event_text, char_start, char_end, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
			row.ID, row.FilingID, row.AccessionNo, row.ItemNumber, row.Title, row.Text, row.CharStart, row.CharEnd)
		if err != nil {
			return nil, fmt.Errorf("events: insert event: %w", err)
		}
		out = append(out, row)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("events: commit: %w", err)
	}
	return out, nil
}

// ListByFiling returns every event recorded for a filing, in document
// order (by char_start).
func (s *Store) ListByFiling(ctx context.Context, filingID string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filing_id, accession_no, item_number, title, event_text, char_start, char_end, created_at
		FROM filing_events WHERE filing_id = $1 ORDER BY char_start ASC`, filingID)
	if err != nil {
		return nil, fmt.Errorf("events: list by filing: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.FilingID, &r.AccessionNo, &r.ItemNumber, &r.Title, &r.Text, &r.CharStart, &r.CharEnd, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
