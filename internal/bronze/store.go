package bronze

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// defaultDedupeWindow bounds how soon a re-delivery from the same feed
// of an already-known natural key is treated as a no-op re-poll
// (DUPLICATE) rather than a new sighting (RESIGHTED). Outside the
// window, or from a different feed, every re-delivery is a sighting
// even when the content hash is unchanged.
const defaultDedupeWindow = 1 * time.Hour

// RecordStore deduplicates raw feed entries by natural key and tracks
// how many times, and over what span, each one was re-observed.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore wraps an existing *sql.DB; schema is managed by
// internal/store migrations.
func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Admit offers a candidate observation to the store. Content is
// fingerprinted with a sha256 hash over its canonical JSON encoding so
// re-observations can tell whether the underlying payload actually
// changed. The outcome is one of:
//
//   - NEW: naturalKey has never been seen before.
//   - DUPLICATE: the same feed re-delivered the same natural key with
//     an unchanged hash inside the de-dupe window — a re-poll no-op,
//     no new sighting row is written.
//   - RESIGHTED: the natural key was observed again by a different
//     feed, or outside the de-dupe window, or with a changed hash;
//     a new sighting row is written and WasModified/PriorContent are
//     populated when the content actually changed.
func (s *RecordStore) Admit(ctx context.Context, feedName, naturalKey, sourceURL string, rawPayload map[string]any, cik string, filingDate time.Time, observedAt time.Time) (AdmitResult, error) {
	payload, err := json.Marshal(rawPayload)
	if err != nil {
		return AdmitResult{}, fmt.Errorf("bronze: marshal payload: %w", err)
	}
	hash := contentHash(payload)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AdmitResult{}, fmt.Errorf("bronze: begin: %w", err)
	}
	defer tx.Rollback()

	var existing Record
	var existingPayload, existingPriorPayload []byte
	var existingFilingDate sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, natural_key, feed_name, source_url, raw_payload, cik, filing_date,
		       content_hash, first_seen, last_seen, sighting_count, status, was_modified, prior_content
		FROM records WHERE natural_key = $1 FOR UPDATE`, naturalKey).
		Scan(&existing.ID, &existing.NaturalKey, &existing.FeedName, &existing.SourceURL,
			&existingPayload, &existing.CIK, &existingFilingDate, &existing.ContentHash,
			&existing.FirstSeen, &existing.LastSeen, &existing.SightingCount, &existing.Status,
			&existing.WasModified, &existingPriorPayload)
	if existingFilingDate.Valid {
		existing.FilingDate = existingFilingDate.Time
	}

	switch {
	case err == sql.ErrNoRows:
		rec := Record{
			ID:            uuid.NewString(),
			NaturalKey:    naturalKey,
			FeedName:      feedName,
			SourceURL:     sourceURL,
			RawPayload:    rawPayload,
			CIK:           cik,
			FilingDate:    filingDate,
			ContentHash:   hash,
			FirstSeen:     observedAt,
			LastSeen:      observedAt,
			SightingCount: 1,
			Status:        StatusAdmitted,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO records (id, natural_key, feed_name, source_url, raw_payload, cik, filing_date,
			                      content_hash, first_seen, last_seen, sighting_count, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID, rec.NaturalKey, rec.FeedName, rec.SourceURL, payload, rec.CIK, nullableDate(rec.FilingDate),
			rec.ContentHash, rec.FirstSeen, rec.LastSeen, rec.SightingCount, rec.Status)
		if err != nil {
			return AdmitResult{}, fmt.Errorf("bronze: insert: %w", err)
		}
		if err := insertSighting(ctx, tx, rec.ID, feedName, sourceURL, observedAt); err != nil {
			return AdmitResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return AdmitResult{}, fmt.Errorf("bronze: commit: %w", err)
		}
		return AdmitResult{Record: rec, Outcome: OutcomeNew, Admitted: true}, nil

	case err != nil:
		return AdmitResult{}, fmt.Errorf("bronze: select for update: %w", err)
	}

	if err := json.Unmarshal(existingPayload, &existing.RawPayload); err != nil {
		return AdmitResult{}, fmt.Errorf("bronze: unmarshal payload: %w", err)
	}
	if len(existingPriorPayload) > 0 {
		if err := json.Unmarshal(existingPriorPayload, &existing.PriorContent); err != nil {
			return AdmitResult{}, fmt.Errorf("bronze: unmarshal prior content: %w", err)
		}
	}

	lastSameFeed, err := lastSameFeedObservedAt(ctx, tx, existing.ID, feedName)
	if err != nil {
		return AdmitResult{}, err
	}
	hashChanged := hash != existing.ContentHash
	withinWindow := lastSameFeed != nil && observedAt.Sub(*lastSameFeed) < defaultDedupeWindow

	if !hashChanged && withinWindow {
		if err := tx.Commit(); err != nil {
			return AdmitResult{}, fmt.Errorf("bronze: commit: %w", err)
		}
		return AdmitResult{Record: existing, Outcome: OutcomeDuplicate, Admitted: existing.Status == StatusAdmitted, Reason: existing.Status}, nil
	}

	existing.LastSeen = observedAt
	existing.SightingCount++
	existing.WasModified = hashChanged
	var priorPayload []byte
	if hashChanged {
		existing.PriorContent = existing.RawPayload
		priorPayload, err = json.Marshal(existing.PriorContent)
		if err != nil {
			return AdmitResult{}, fmt.Errorf("bronze: marshal prior content: %w", err)
		}
		existing.RawPayload = rawPayload
		existing.ContentHash = hash
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE records
		SET last_seen = $1, sighting_count = $2, was_modified = $3,
		    raw_payload = CASE WHEN $3 THEN $4 ELSE raw_payload END,
		    content_hash = CASE WHEN $3 THEN $5 ELSE content_hash END,
		    prior_content = CASE WHEN $3 THEN $6 ELSE prior_content END
		WHERE id = $7`,
		existing.LastSeen, existing.SightingCount, existing.WasModified, payload, hash, nullableJSON(priorPayload), existing.ID)
	if err != nil {
		return AdmitResult{}, fmt.Errorf("bronze: update sighting: %w", err)
	}
	if err := insertSighting(ctx, tx, existing.ID, feedName, sourceURL, observedAt); err != nil {
		return AdmitResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return AdmitResult{}, fmt.Errorf("bronze: commit: %w", err)
	}
	return AdmitResult{Record: existing, Outcome: OutcomeResighted, Admitted: existing.Status == StatusAdmitted, Reason: existing.Status}, nil
}

// contentHash fingerprints canonical (key-sorted, since json.Marshal
// sorts map keys) JSON payload bytes with sha256.
func contentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// lastSameFeedObservedAt returns the most recent observed_at for this
// record from the same feed, or nil if that feed has never sighted it.
func lastSameFeedObservedAt(ctx context.Context, tx *sql.Tx, recordID, feedName string) (*time.Time, error) {
	var t sql.NullTime
	err := tx.QueryRowContext(ctx, `
		SELECT MAX(observed_at) FROM sightings WHERE record_id = $1 AND feed_name = $2`,
		recordID, feedName).Scan(&t)
	if err != nil {
		return nil, fmt.Errorf("bronze: last same-feed sighting: %w", err)
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// insertSighting appends one row to the append-only sightings
// sequence for a record — every RESIGHTED or NEW outcome writes one,
// so which feeds observed a record and when is reconstructible in
// full; DUPLICATE outcomes deliberately do not, since a same-feed
// re-poll within the window carries no new information.
func insertSighting(ctx context.Context, tx *sql.Tx, recordID, feedName, sourceURL string, observedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sightings (record_id, feed_name, source_url, observed_at)
		VALUES ($1, $2, $3, $4)`,
		recordID, feedName, sourceURL, observedAt)
	if err != nil {
		return fmt.Errorf("bronze: insert sighting: %w", err)
	}
	return nil
}

// ListSightings returns every sighting recorded against a record, in
// observation order.
func (s *RecordStore) ListSightings(ctx context.Context, recordID string) ([]Sighting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, feed_name, source_url, source_updated_at, observed_at
		FROM sightings WHERE record_id = $1 ORDER BY observed_at`, recordID)
	if err != nil {
		return nil, fmt.Errorf("bronze: list sightings: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var sg Sighting
		if err := rows.Scan(&sg.ID, &sg.RecordID, &sg.FeedName, &sg.SourceURL, &sg.SourceUpdatedAt, &sg.ObservedAt); err != nil {
			return nil, fmt.Errorf("bronze: scan sighting: %w", err)
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// Get fetches a record by its natural key.
func (s *RecordStore) Get(ctx context.Context, naturalKey string) (Record, error) {
	var rec Record
	var payload, priorPayload []byte
	var filingDate sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, natural_key, feed_name, source_url, raw_payload, cik, filing_date,
		       content_hash, first_seen, last_seen, sighting_count, status, was_modified, prior_content
		FROM records WHERE natural_key = $1`, naturalKey).
		Scan(&rec.ID, &rec.NaturalKey, &rec.FeedName, &rec.SourceURL, &payload, &rec.CIK, &filingDate,
			&rec.ContentHash, &rec.FirstSeen, &rec.LastSeen, &rec.SightingCount, &rec.Status,
			&rec.WasModified, &priorPayload)
	if err != nil {
		return Record{}, fmt.Errorf("bronze: get: %w", err)
	}
	if filingDate.Valid {
		rec.FilingDate = filingDate.Time
	}
	if err := json.Unmarshal(payload, &rec.RawPayload); err != nil {
		return Record{}, fmt.Errorf("bronze: unmarshal payload: %w", err)
	}
	if len(priorPayload) > 0 {
		if err := json.Unmarshal(priorPayload, &rec.PriorContent); err != nil {
			return Record{}, fmt.Errorf("bronze: unmarshal prior content: %w", err)
		}
	}
	return rec, nil
}

// Reject marks a record as rejected, used once downstream validation
// finds it unusable (e.g. unparseable filing document).
func (s *RecordStore) Reject(ctx context.Context, naturalKey string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE records SET status = $1 WHERE natural_key = $2`, StatusRejected, naturalKey)
	if err != nil {
		return fmt.Errorf("bronze: reject: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bronze: reject rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("bronze: reject: no record for natural key %q", naturalKey)
	}
	return nil
}
