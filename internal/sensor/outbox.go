package sensor

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is a reading parked until the broker session is back.
type Entry struct {
	ID        string
	Topic     string
	Payload   []byte
	QoS       byte
	Boundary  time.Time
	CreatedAt time.Time
	Attempts  int
	LastError string
}

// Outbox stores readings that could not be published.
type Outbox interface {
	Enqueue(ctx context.Context, e Entry) error
	// Pending returns up to limit entries, oldest first.
	Pending(ctx context.Context, limit int) ([]Entry, error)
	Delete(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
	Count(ctx context.Context) (int, error)
}

// SQLiteOutbox keeps the outbox in the reading_outbox table.
type SQLiteOutbox struct {
	db *sql.DB
}

// NewSQLiteOutbox creates an outbox over a migrated database.
func NewSQLiteOutbox(db *sql.DB) *SQLiteOutbox {
	return &SQLiteOutbox{db: db}
}

// Enqueue inserts e. CreatedAt defaults to now.
func (o *SQLiteOutbox) Enqueue(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := o.db.ExecContext(ctx,
		`INSERT INTO reading_outbox (id, topic, payload, qos, boundary, created_at, attempts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Topic, e.Payload, int(e.QoS),
		formatTime(e.Boundary), formatTime(e.CreatedAt), e.Attempts,
	)
	if err != nil {
		return fmt.Errorf("enqueueing reading %s: %w", e.ID, err)
	}
	return nil
}

func (o *SQLiteOutbox) Pending(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, topic, payload, qos, boundary, created_at, attempts, COALESCE(last_error, '')
		 FROM reading_outbox ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var qos int
		var boundary, created string
		if err := rows.Scan(&e.ID, &e.Topic, &e.Payload, &qos, &boundary, &created, &e.Attempts, &e.LastError); err != nil {
			return nil, fmt.Errorf("scanning outbox row: %w", err)
		}
		e.QoS = byte(qos) //nolint:gosec // stored from a byte
		e.Boundary = parseTime(boundary)
		e.CreatedAt = parseTime(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox: %w", err)
	}
	return entries, nil
}

func (o *SQLiteOutbox) Delete(ctx context.Context, id string) error {
	if _, err := o.db.ExecContext(ctx, `DELETE FROM reading_outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting outbox entry %s: %w", id, err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and records cause.
func (o *SQLiteOutbox) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := o.db.ExecContext(ctx,
		`UPDATE reading_outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`, msg, id,
	); err != nil {
		return fmt.Errorf("marking outbox entry %s: %w", id, err)
	}
	return nil
}

func (o *SQLiteOutbox) Count(ctx context.Context) (int, error) {
	var n int
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reading_outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting outbox: %w", err)
	}
	return n, nil
}

// Timestamps are stored as fixed-width UTC RFC3339 so they sort as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(storedTimeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(storedTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
