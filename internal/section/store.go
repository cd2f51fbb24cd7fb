package section

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParserVersion is bumped whenever Segment's rule set changes in a
// way that would reorder or resplit prior output; reparsing the same
// filing with the same version must be byte-identical.
const ParserVersion = 1

// Row is a persisted Section: Segment's offsets/text plus the
// identity and version bookkeeping the store owns.
type Row struct {
	ID            string
	FilingID      string
	Type          string
	ItemLabel     string
	StartOffset   int
	EndOffset     int
	CanonicalText string
	ParserVersion int
	IsCurrent     bool
	CreatedAt     time.Time
}

// Store persists Sections against the sections table.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ReplaceForFiling marks every existing current Section for filingID
// as stale and inserts sections as the new current set, tagged with
// ParserVersion. Readers filtering to "current" see only the new rows;
// the superseded rows remain for audit, never deleted.
func (s *Store) ReplaceForFiling(ctx context.Context, filingID string, sections []Section) ([]Row, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("section: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE sections SET is_current = false WHERE filing_id = $1 AND is_current`, filingID); err != nil {
		return nil, fmt.Errorf("section: supersede prior sections: %w", err)
	}

	out := make([]Row, 0, len(sections))
	for _, sec := range sections {
		row := Row{
			ID:            uuid.NewString(),
			FilingID:      filingID,
			Type:          sec.Key(),
			ItemLabel:     sec.ItemLabel,
			StartOffset:   sec.StartOffset,
			EndOffset:     sec.EndOffset,
			CanonicalText: sec.CanonicalText,
			ParserVersion: ParserVersion,
			IsCurrent:     true,
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sections (id, filing_id, section_type, item_label, start_offset, end_offset, canonical_text, parser_version, is_current, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
			row.ID, row.FilingID, row.Type, row.ItemLabel, row.StartOffset, row.EndOffset, row.CanonicalText, row.ParserVersion, row.IsCurrent)
		if err != nil {
			return nil, fmt.Errorf("section: insert section: %w", err)
		}
		out = append(out, row)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("section: commit: %w", err)
	}
	return out, nil
}

// Get fetches a single Section row by id.
func (s *Store) Get(ctx context.Context, id string) (Row, error) {
	return scanOne(s.db.QueryRowContext(ctx, sectionSelect+` WHERE id = $1`, id))
}

// ListCurrentByFiling returns every current Section for a filing, in
// document order.
func (s *Store) ListCurrentByFiling(ctx context.Context, filingID string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, sectionSelect+` WHERE filing_id = $1 AND is_current ORDER BY start_offset`, filingID)
	if err != nil {
		return nil, fmt.Errorf("section: list by filing: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetCurrentByKey fetches the current Section of a given type for a
// filing, used by the context-window endpoint.
func (s *Store) GetCurrentByKey(ctx context.Context, filingID, sectionType string) (Row, error) {
	return scanOne(s.db.QueryRowContext(ctx, sectionSelect+` WHERE filing_id = $1 AND section_type = $2 AND is_current ORDER BY start_offset LIMIT 1`, filingID, sectionType))
}

const sectionSelect = `
	SELECT id, filing_id, section_type, coalesce(item_label, ''), start_offset, end_offset, canonical_text, parser_version, is_current, created_at
	FROM sections`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(rs rowScanner) (Row, error) {
	var row Row
	err := rs.Scan(&row.ID, &row.FilingID, &row.Type, &row.ItemLabel, &row.StartOffset, &row.EndOffset,
		&row.CanonicalText, &row.ParserVersion, &row.IsCurrent, &row.CreatedAt)
	return row, err
}

func scanOne(r *sql.Row) (Row, error) {
	row, err := scanRow(r)
	if err != nil && err != sql.ErrNoRows {
		return Row{}, fmt.Errorf("section: scan: %w", err)
	}
	return row, err
}
