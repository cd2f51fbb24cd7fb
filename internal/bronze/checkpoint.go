package bronze

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Checkpoint is the durable cursor a feed adapter resumes from.
type Checkpoint struct {
	FeedName string
	Cursor   map[string]any
	Version  int64
}

// ErrVersionConflict is returned by Advance when the caller's expected
// version no longer matches the stored one — another collector run
// already moved the cursor.
var ErrVersionConflict = fmt.Errorf("bronze: checkpoint version conflict")

// CheckpointStore is a small versioned key-value store scoped to one
// key per feed, following the same optimistic-concurrency discipline
// as a general-purpose KV store would, narrowed to this core's single
// tenant.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore wraps an existing *sql.DB; schema is managed by
// internal/store migrations.
func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Get returns the current checkpoint for a feed, or a zero-version
// checkpoint with an empty cursor if none has been written yet.
func (s *CheckpointStore) Get(ctx context.Context, feedName string) (Checkpoint, error) {
	var cp Checkpoint
	var cursor []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT feed_name, cursor, version FROM checkpoints WHERE feed_name = $1`, feedName).
		Scan(&cp.FeedName, &cursor, &cp.Version)
	if err == sql.ErrNoRows {
		return Checkpoint{FeedName: feedName, Cursor: map[string]any{}, Version: 0}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("bronze: checkpoint get: %w", err)
	}
	if err := json.Unmarshal(cursor, &cp.Cursor); err != nil {
		return Checkpoint{}, fmt.Errorf("bronze: checkpoint unmarshal: %w", err)
	}
	return cp, nil
}

// Advance sets a feed's cursor, requiring expectedVersion to match the
// currently stored version (0 means "must not exist yet"). On success
// the new checkpoint's version is expectedVersion+1.
func (s *CheckpointStore) Advance(ctx context.Context, feedName string, cursor map[string]any, expectedVersion int64) (Checkpoint, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("bronze: checkpoint marshal: %w", err)
	}

	if expectedVersion == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO checkpoints (feed_name, cursor, version) VALUES ($1, $2, 1)
			ON CONFLICT (feed_name) DO NOTHING`, feedName, data)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("bronze: checkpoint insert: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Checkpoint{}, fmt.Errorf("bronze: checkpoint rows affected: %w", err)
		}
		if n == 0 {
			return Checkpoint{}, ErrVersionConflict
		}
		cp, getErr := s.Get(ctx, feedName)
		if getErr != nil {
			return Checkpoint{}, getErr
		}
		if cp.Version != 1 {
			return Checkpoint{}, ErrVersionConflict
		}
		return cp, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE checkpoints SET cursor = $1, version = version + 1, updated_at = now()
		WHERE feed_name = $2 AND version = $3`, data, feedName, expectedVersion)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("bronze: checkpoint update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("bronze: checkpoint rows affected: %w", err)
	}
	if n == 0 {
		return Checkpoint{}, ErrVersionConflict
	}
	return s.Get(ctx, feedName)
}
