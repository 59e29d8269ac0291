// Package queue is the durable FIFO queue of pending watch-later
// mutations awaiting network delivery.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ActionType is the kind of pending mutation.
type ActionType string

const (
	ActionAdd    ActionType = "add"
	ActionRemove ActionType = "remove"
)

// Item is one pending mutation. IDs are assigned by the store and are
// monotonic; insertion order is replay order.
type Item struct {
	ID        int64           `json:"id"`
	Type      ActionType      `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Queue persists items in the shared SQLite store.
type Queue struct {
	db *sql.DB
}

// New wraps an opened store.
func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue appends a mutation to the queue and returns its id.
func (q *Queue) Enqueue(ctx context.Context, typ ActionType, data json.RawMessage) (int64, error) {
	if typ != ActionAdd && typ != ActionRemove {
		return 0, fmt.Errorf("unknown action type %q", typ)
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO mutation_queue (type, data, created_at) VALUES (?, ?, ?)`,
		string(typ), string(data), time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("enqueue mutation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue mutation id: %w", err)
	}
	return id, nil
}

// Items returns every pending mutation in FIFO order.
func (q *Queue) Items(ctx context.Context) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, type, data, created_at FROM mutation_queue ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item Item
			typ  string
			data string
			ts   int64
		)
		if err := rows.Scan(&item.ID, &typ, &data, &ts); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		item.Type = ActionType(typ)
		item.Data = json.RawMessage(data)
		item.Timestamp = time.UnixMilli(ts)
		items = append(items, item)
	}
	return items, rows.Err()
}

// Remove deletes a delivered or permanently rejected mutation.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM mutation_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove mutation %d: %w", id, err)
	}
	return nil
}

// Len reports the number of pending mutations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mutation_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mutations: %w", err)
	}
	return n, nil
}

// HasPending reports whether an identical mutation is already queued.
// The queue itself never dedupes; callers that want suppression check
// here before enqueueing.
func (q *Queue) HasPending(ctx context.Context, typ ActionType, data json.RawMessage) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mutation_queue WHERE type = ? AND data = ?`,
		string(typ), string(data)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pending mutation: %w", err)
	}
	return n > 0, nil
}
