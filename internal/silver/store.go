package silver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists Filing rows against the filings table. Promotion is
// idempotent on accession_no: re-promoting an already-known accession
// returns the existing row rather than erroring, so a crash between
// fetch and checkpoint commit can safely replay.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Promote inserts a new Silver Filing for an admitted Bronze record,
// or returns the existing row if this accession was already promoted.
func (s *Store) Promote(ctx context.Context, f Filing) (Filing, error) {
	existing, err := s.GetByAccession(ctx, f.AccessionNo)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Filing{}, err
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO filings (id, record_id, cik, accession_no, form_type, filing_date, report_date, acceptance_datetime, primary_doc_url, archive_path, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (accession_no) DO NOTHING`,
		f.ID, f.RecordID, f.CIK, f.AccessionNo, f.FormType, nullableDate(f.FilingDate), nullableDate(f.ReportDate),
		nullableTime(f.AcceptanceDatetime), f.PrimaryDocURL, f.ArchivePath, "pending", f.CreatedAt)
	if err != nil {
		return Filing{}, fmt.Errorf("silver: promote filing %s: %w", f.AccessionNo, err)
	}
	return s.GetByAccession(ctx, f.AccessionNo)
}

// GetByAccession fetches a Filing by its accession number, accepting
// either the dashed or dashless form.
func (s *Store) GetByAccession(ctx context.Context, accessionNo string) (Filing, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, filingSelect+` WHERE replace(accession_no, '-', '') = $1`, dashless(accessionNo)))
}

// Get fetches a Filing by its surrogate id.
func (s *Store) Get(ctx context.Context, id string) (Filing, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, filingSelect+` WHERE id = $1`, id))
}

// List returns Filings matching filter, most recently filed first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Filing, error) {
	query := filingSelect + ` WHERE true`
	var args []any
	if filter.CIK != "" {
		args = append(args, filter.CIK)
		query += fmt.Sprintf(" AND cik = $%d", len(args))
	}
	if filter.FormType != "" {
		args = append(args, filter.FormType)
		query += fmt.Sprintf(" AND form_type = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND filing_date >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND filing_date <= $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " ORDER BY filing_date DESC, accession_no DESC LIMIT " + fmt.Sprint(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("silver: list filings: %w", err)
	}
	defer rows.Close()

	var out []Filing
	for rows.Next() {
		f, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SetArchivePath records where the fetched document bundle landed on
// the content-addressable filesystem layout.
func (s *Store) SetArchivePath(ctx context.Context, id, path string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE filings SET archive_path = $1 WHERE id = $2`, path, id)
	if err != nil {
		return fmt.Errorf("silver: set archive path: %w", err)
	}
	return nil
}

// MarkSectionsExtracted flips the sections_extracted processing flag.
func (s *Store) MarkSectionsExtracted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE filings SET sections_extracted = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("silver: mark sections extracted: %w", err)
	}
	return nil
}

// MarkMentionsExtracted flips the mentions_extracted processing flag.
func (s *Store) MarkMentionsExtracted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE filings SET mentions_extracted = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("silver: mark mentions extracted: %w", err)
	}
	return nil
}

// SetEntity links the Filing to its resolved filer entity, set only
// once EntitySpine resolution succeeds.
func (s *Store) SetEntity(ctx context.Context, id, entityID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE filings SET entity_id = $1 WHERE id = $2`, entityID, id)
	if err != nil {
		return fmt.Errorf("silver: set entity: %w", err)
	}
	return nil
}

const filingSelect = `
	SELECT id, record_id, cik, accession_no, form_type, filing_date,
	       coalesce(report_date, filing_date), coalesce(acceptance_datetime, created_at),
	       primary_doc_url, coalesce(archive_path, ''), coalesce(entity_id, ''),
	       sections_extracted, mentions_extracted, status, created_at
	FROM filings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(rs rowScanner) (Filing, error) {
	var f Filing
	err := rs.Scan(&f.ID, &f.RecordID, &f.CIK, &f.AccessionNo, &f.FormType, &f.FilingDate,
		&f.ReportDate, &f.AcceptanceDatetime, &f.PrimaryDocURL, &f.ArchivePath, &f.EntityID,
		&f.SectionsExtracted, &f.MentionsExtracted, &f.Status, &f.CreatedAt)
	if err != nil {
		return Filing{}, err
	}
	return f, nil
}

func (s *Store) scanOne(row *sql.Row) (Filing, error) {
	f, err := scanRow(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Filing{}, fmt.Errorf("silver: scan filing: %w", err)
	}
	return f, err
}

func dashless(accession string) string {
	return strings.ReplaceAll(accession, "-", "")
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
