package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DeadLetterStore persists permanently-failed work items so an
// operator can inspect and replay them instead of them simply
// vanishing once Temporal's own retry budget is exhausted.
type DeadLetterStore struct {
	db *sql.DB
}

// NewDeadLetterStore wraps an existing *sql.DB.
func NewDeadLetterStore(db *sql.DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Put records a dead letter.
func (s *DeadLetterStore) Put(ctx context.Context, queueName string, envelope map[string]any, attempts int, lastErr string) (int64, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return 0, fmt.Errorf("pipeline: marshal envelope: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO dead_letters (queue_name, envelope, attempts, last_error)
		VALUES ($1, $2, $3, $4) RETURNING id`, queueName, data, attempts, lastErr).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pipeline: insert dead letter: %w", err)
	}
	return id, nil
}

// List returns dead letters for a queue, most recent first.
func (s *DeadLetterStore) List(ctx context.Context, queueName string) ([]DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue_name, envelope, attempts, last_error, created_at
		FROM dead_letters WHERE queue_name = $1 ORDER BY created_at DESC`, queueName)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		var envelope []byte
		if err := rows.Scan(&dl.ID, &dl.QueueName, &envelope, &dl.Attempts, &dl.LastError, &dl.CreatedAt); err != nil {
			return nil, fmt.Errorf("pipeline: scan dead letter: %w", err)
		}
		if err := json.Unmarshal(envelope, &dl.Envelope); err != nil {
			return nil, fmt.Errorf("pipeline: unmarshal envelope: %w", err)
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

// Delete removes a dead letter once it has been successfully replayed.
func (s *DeadLetterStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pipeline: delete dead letter: %w", err)
	}
	return nil
}
