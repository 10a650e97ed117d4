package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"alterego/models"
)

// Repository provides typed access to the kv_blobs and transform_events
// tables. Activity writes go through the AsyncWriter when one is attached
// so that recording never stalls a batch.
type Repository struct {
	db          *Database
	asyncWriter *AsyncWriter
}

// NewRepository creates a Repository. asyncWriter may be nil, in which case
// RecordTransform writes synchronously.
func NewRepository(db *Database, asyncWriter *AsyncWriter) *Repository {
	return &Repository{db: db, asyncWriter: asyncWriter}
}

// GetBlob returns the value stored under key.
func (r *Repository) GetBlob(ctx context.Context, key string) ([]byte, bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	conn, err := r.db.conn()
	if err != nil {
		return nil, false, err
	}

	var value []byte
	err = conn.QueryRowContext(ctx, "SELECT value FROM kv_blobs WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, true, nil
}

// PutBlob inserts or replaces the value stored under key.
func (r *Repository) PutBlob(ctx context.Context, key string, value []byte) error {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	conn, err := r.db.conn()
	if err != nil {
		return err
	}

	_, err = conn.ExecContext(ctx,
		`INSERT INTO kv_blobs (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// DeleteBlob removes key. Deleting a missing key is not an error.
func (r *Repository) DeleteBlob(ctx context.Context, key string) error {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	conn, err := r.db.conn()
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "DELETE FROM kv_blobs WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// InsertTransformEvent writes one activity record and returns its id.
func (r *Repository) InsertTransformEvent(ctx context.Context, ev models.TransformEvent) (int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	conn, err := r.db.conn()
	if err != nil {
		return 0, err
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := conn.ExecContext(ctx,
		`INSERT INTO transform_events
		 (run_id, kind, style, target, provider, status, error_message, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, string(ev.Kind), ev.Style, ev.Target, ev.Provider, ev.Status,
		nullString(ev.ErrorMessage), ev.DurationMS, createdAt.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to insert transform event: %w", err)
	}
	return res.LastInsertId()
}

// RecordTransform queues ev for writing. It reports false when the async
// buffer is full and the event was dropped.
func (r *Repository) RecordTransform(ev models.TransformEvent) bool {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if r.asyncWriter == nil {
		_, err := r.InsertTransformEvent(context.Background(), ev)
		return err == nil
	}
	return r.asyncWriter.Write(ev)
}

// CreateAsyncWriteHandler returns the AsyncWriter handler that persists
// queued TransformEvent values.
func (r *Repository) CreateAsyncWriteHandler() WriteHandler {
	return func(op WriteOperation) error {
		ev, ok := op.Data.(models.TransformEvent)
		if !ok {
			return fmt.Errorf("invalid operation type: expected models.TransformEvent, got %T", op.Data)
		}
		_, err := r.InsertTransformEvent(context.Background(), ev)
		return err
	}
}

// QueryRecentTransformEvents returns up to limit events, newest first.
func (r *Repository) QueryRecentTransformEvents(ctx context.Context, limit int) ([]models.TransformEvent, error) {
	return r.queryTransformEvents(ctx,
		`SELECT id, run_id, kind, style, target, provider, status, error_message, duration_ms, created_at
		 FROM transform_events ORDER BY id DESC LIMIT ?`, limit)
}

// QueryTransformEventsByRun returns the events of one run in call order.
func (r *Repository) QueryTransformEventsByRun(ctx context.Context, runID string) ([]models.TransformEvent, error) {
	return r.queryTransformEvents(ctx,
		`SELECT id, run_id, kind, style, target, provider, status, error_message, duration_ms, created_at
		 FROM transform_events WHERE run_id = ? ORDER BY id ASC`, runID)
}

func (r *Repository) queryTransformEvents(ctx context.Context, query string, args ...any) ([]models.TransformEvent, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	conn, err := r.db.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transform events: %w", err)
	}
	defer rows.Close()

	var events []models.TransformEvent
	for rows.Next() {
		var (
			ev        models.TransformEvent
			kind      string
			errMsg    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.RunID, &kind, &ev.Style, &ev.Target, &ev.Provider,
			&ev.Status, &errMsg, &ev.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transform event: %w", err)
		}
		ev.Kind = models.RunKind(kind)
		ev.ErrorMessage = errMsg.String
		ev.CreatedAt = parseSQLiteTime(createdAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transform events: %w", err)
	}
	return events, nil
}

// CountTransformEvents returns the number of stored activity records.
func (r *Repository) CountTransformEvents(ctx context.Context) (int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	conn, err := r.db.conn()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM transform_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transform events: %w", err)
	}
	return count, nil
}

// sqliteTimeLayout matches what datetime('now') produces, so retention
// comparisons work on the stored text.
const sqliteTimeLayout = "2006-01-02 15:04:05"

func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// nullString converts an empty string to NULL.
func nullString(s string) any {
	if s == "" {
		return sql.NullString{}
	}
	return s
}
