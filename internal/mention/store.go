package mention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResolutionMethod classifies how (or whether) a persisted mention
// was linked to a canonical entity.
const (
	ResolutionUnresolved = "UNRESOLVED"
	ResolutionExact      = "EXACT"
	ResolutionFuzzy      = "FUZZY"
	ResolutionAlias      = "ALIAS"
	ResolutionManual     = "MANUAL"
)

// Row is a persisted entity mention: the extractor's candidate span
// plus resolution state and the sentence it was found in, evidence
// queries join back to Section/Filing for the rest of the location.
// The lifecycle fields track the same surface text recurring across a
// registrant's filings over time, independent of entity resolution.
type Row struct {
	ID               string
	SectionID        string
	EntityID         string
	Text             string
	StartOffset      int
	EndOffset        int
	Stage            string
	Confidence       float64
	SentenceText     string
	ResolutionMethod string
	FirstSeenAt      time.Time
	FirstSeenFiling  string
	LastSeenAt       time.Time
	LastSeenFiling   string
	OccurrenceCount  int
	IsNew            bool
	IsRemoved        bool
	WasModified      bool
	PriorText        string
	CreatedAt        time.Time
}

// Store persists CandidateMentions to the entity_mentions table.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateBatch persists every candidate mention found in one section,
// deriving each one's enclosing sentence from the section's canonical
// text so byte-precise evidence survives independent of the
// extraction stage that found it. Each candidate is checked against
// the registrant's (by CIK) most recent prior sighting of the same
// normalized surface text, across any earlier filing, to populate the
// re-sighting lifecycle fields: a text never seen before is IsNew, one
// seen before with a changed surface form is WasModified with PriorText
// set, and either way FirstSeenAt/OccurrenceCount carry forward.
func (s *Store) CreateBatch(ctx context.Context, sectionID, filingID, sectionText string, candidates []CandidateMention) ([]Row, error) {
	var cik string
	if err := s.db.QueryRowContext(ctx, `SELECT cik FROM filings WHERE id = $1`, filingID).Scan(&cik); err != nil {
		return nil, fmt.Errorf("mention: lookup filing cik: %w", err)
	}

	now := time.Now()
	rows := make([]Row, 0, len(candidates))
	for _, c := range candidates {
		row := Row{
			ID:               uuid.NewString(),
			SectionID:        sectionID,
			EntityID:         c.EntityID,
			Text:             c.Text,
			StartOffset:      c.StartOffset,
			EndOffset:        c.EndOffset,
			Stage:            c.Stage,
			Confidence:       c.Confidence,
			SentenceText:     EnclosingSentence(sectionText, c.StartOffset, c.EndOffset),
			ResolutionMethod: ResolutionUnresolved,
			FirstSeenAt:      now,
			FirstSeenFiling:  filingID,
			LastSeenAt:       now,
			LastSeenFiling:   filingID,
			OccurrenceCount:  1,
			IsNew:            true,
		}

		prior, err := s.priorSighting(ctx, cik, filingID, c.Text)
		if err != nil {
			return nil, fmt.Errorf("mention: prior sighting: %w", err)
		}
		if prior != nil {
			row.FirstSeenAt = prior.FirstSeenAt
			row.FirstSeenFiling = prior.FirstSeenFiling
			row.OccurrenceCount = prior.OccurrenceCount + 1
			row.IsNew = false
			if prior.Text != c.Text {
				row.WasModified = true
				row.PriorText = prior.Text
			}
		}

		var entityID any
		if row.EntityID != "" {
			entityID = row.EntityID
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO entity_mentions
				(id, section_id, entity_id, surface, start_offset, end_offset, stage, confidence, sentence_text, resolution_method,
				 first_seen_at, first_seen_filing, last_seen_at, last_seen_filing, occurrence_count, is_new, is_removed, was_modified, prior_text, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, false, $17, $18, now())`,
			row.ID, row.SectionID, entityID, row.Text, row.StartOffset, row.EndOffset, row.Stage, row.Confidence, row.SentenceText, row.ResolutionMethod,
			row.FirstSeenAt, row.FirstSeenFiling, row.LastSeenAt, row.LastSeenFiling, row.OccurrenceCount, row.IsNew, nullableText(row.PriorText))
		if err != nil {
			return nil, fmt.Errorf("mention: insert mention: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// priorSighting returns the registrant's most recent mention of the
// same normalized surface text from a filing other than filingID, or
// nil if this text has never been seen for this CIK before.
func (s *Store) priorSighting(ctx context.Context, cik, filingID, text string) (*Row, error) {
	row, err := scanRow(s.db.QueryRowContext(ctx, mentionSelect+`
		JOIN sections sec ON sec.id = m.section_id
		JOIN filings fil ON fil.id = sec.filing_id
		WHERE fil.cik = $1 AND fil.id <> $2 AND lower(trim(m.surface)) = lower(trim($3))
		ORDER BY m.last_seen_at DESC LIMIT 1`, cik, filingID, text))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ReconcileFilingMentions marks is_removed on every mention belonging
// to cik's earlier filings whose normalized surface text was not
// reconfirmed by filingID's own CreateBatch calls — the Gold-layer
// signal that a previously disclosed fact (e.g. a named risk factor or
// officer) dropped out of the registrant's latest filing.
func (s *Store) ReconcileFilingMentions(ctx context.Context, filingID, cik string) error {
	_, err := s.db.ExecContext(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (lower(trim(m.surface))) m.id, m.last_seen_filing, m.is_removed
			FROM entity_mentions m
			JOIN sections sec ON sec.id = m.section_id
			JOIN filings fil ON fil.id = sec.filing_id
			WHERE fil.cik = $2
			ORDER BY lower(trim(m.surface)), m.last_seen_at DESC
		)
		UPDATE entity_mentions SET is_removed = true
		WHERE id IN (SELECT id FROM latest WHERE last_seen_filing <> $1 AND NOT is_removed)`,
		filingID, cik)
	if err != nil {
		return fmt.Errorf("mention: reconcile filing mentions: %w", err)
	}
	return nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ListBySection returns every mention extracted from a section, in
// document order.
func (s *Store) ListBySection(ctx context.Context, sectionID string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, mentionSelect+` WHERE m.section_id = $1 ORDER BY m.start_offset`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("mention: list by section: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("mention: scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Get fetches a mention by id.
func (s *Store) Get(ctx context.Context, id string) (Row, error) {
	row, err := scanRow(s.db.QueryRowContext(ctx, mentionSelect+` WHERE m.id = $1`, id))
	if err != nil {
		return Row{}, fmt.Errorf("mention: get: %w", err)
	}
	return row, nil
}

// SetResolution records the outcome of EntitySpine resolution against
// an already-persisted mention.
func (s *Store) SetResolution(ctx context.Context, id, entityID, method string) error {
	var arg any
	if entityID != "" {
		arg = entityID
	}
	_, err := s.db.ExecContext(ctx, `UPDATE entity_mentions SET entity_id = $1, resolution_method = $2 WHERE id = $3`, arg, method, id)
	if err != nil {
		return fmt.Errorf("mention: set resolution: %w", err)
	}
	return nil
}

const mentionSelect = `
	SELECT m.id, m.section_id, coalesce(m.entity_id, ''), m.surface, m.start_offset, m.end_offset, m.stage, m.confidence, m.sentence_text, m.resolution_method,
	       m.first_seen_at, coalesce(m.first_seen_filing, ''), m.last_seen_at, coalesce(m.last_seen_filing, ''), m.occurrence_count, m.is_new, m.is_removed, m.was_modified, coalesce(m.prior_text, ''), m.created_at
	FROM entity_mentions m`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(rs rowScanner) (Row, error) {
	var row Row
	err := rs.Scan(&row.ID, &row.SectionID, &row.EntityID, &row.Text, &row.StartOffset, &row.EndOffset,
		&row.Stage, &row.Confidence, &row.SentenceText, &row.ResolutionMethod,
		&row.FirstSeenAt, &row.FirstSeenFiling, &row.LastSeenAt, &row.LastSeenFiling, &row.OccurrenceCount,
		&row.IsNew, &row.IsRemoved, &row.WasModified, &row.PriorText, &row.CreatedAt)
	return row, err
}

// EnclosingSentence returns the sentence containing [start,end) in
// text, scanning backward/forward from the span to the nearest
// sentence-terminating punctuation on either side. Falls back to the
// full text if no terminator is found, since a short fragment (e.g. a
// table cell) is itself a reasonable "sentence".
func EnclosingSentence(text string, start, end int) string {
	if start < 0 || end > len(text) || start >= end {
		return ""
	}
	lo := strings.LastIndexAny(text[:start], ".\n")
	if lo < 0 {
		lo = 0
	} else {
		lo++
	}
	hi := strings.IndexAny(text[end:], ".\n")
	if hi < 0 {
		hi = len(text)
	} else {
		hi = end + hi + 1
	}
	return strings.TrimSpace(text[lo:hi])
}
