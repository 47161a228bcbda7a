// Package history records interactive parameter edits in the graph's
// metadata store, so "what changed, when" survives across invocations.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one recorded parameter edit attempt.
type Entry struct {
	ID        string
	StepID    int
	StepName  string
	Key       string
	OldValue  string
	NewValue  string
	Outcome   string
	CreatedAt string
}

// Store persists parameter edit history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a history store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record appends one edit entry and returns its generated id.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	if e.Key == "" {
		return "", fmt.Errorf("history entry key is empty")
	}
	if e.Outcome == "" {
		return "", fmt.Errorf("history entry outcome is empty")
	}

	id := uuid.NewString()
	createdAt := s.now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO param_history(id, step_id, step_name, key, old_value, new_value, outcome, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, id, e.StepID, e.StepName, e.Key, e.OldValue, e.NewValue, e.Outcome, createdAt)
	if err != nil {
		return "", fmt.Errorf("insert history entry: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, step_id, step_name, key, old_value, new_value, outcome, created_at
FROM param_history
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var oldValue sql.NullString
		if err := rows.Scan(&e.ID, &e.StepID, &e.StepName, &e.Key, &oldValue, &e.NewValue, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.OldValue = oldValue.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
