// CLAUDE:SUMMARY Request log mirror: persists flushed request records in one transaction per batch and looks them up by error id
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/horosgate/pkg/reqlog"
)

// RequestLog is a persisted request record. Line is the exact JSON written to
// the log file.
type RequestLog struct {
	ID         int64
	Timestamp  string
	Level      string
	Method     string
	Path       string
	Status     int
	DurationMs float64
	UserID     string
	ErrorID    string
	Line       string
}

// RequestLogStore is a reqlog.Sink backed by the request_logs table.
type RequestLogStore struct {
	db *DB
}

func NewRequestLogStore(db *DB) *RequestLogStore {
	return &RequestLogStore{db: db}
}

// WriteBatch inserts the whole batch or nothing.
func (s *RequestLogStore) WriteBatch(ctx context.Context, entries []reqlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("request logs: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO request_logs
		(timestamp, level, method, path, status, duration_ms, user_id, error_id, line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("request logs: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		r := e.Record
		if _, err := stmt.ExecContext(ctx,
			r.Timestamp.UTC().Format(reqlog.TimestampLayout), string(r.Level), r.Method, r.Path,
			r.Status, r.DurationMs, nullString(r.UserID), nullString(r.ErrorID), string(e.Line),
		); err != nil {
			return fmt.Errorf("request logs: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("request logs: commit: %w", err)
	}
	return nil
}

// FindByErrorID returns the records carrying the given error id, oldest first.
func (s *RequestLogStore) FindByErrorID(ctx context.Context, errorID string) ([]RequestLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, timestamp, level, method, path, status, duration_ms,
		COALESCE(user_id, ''), COALESCE(error_id, ''), line
		FROM request_logs WHERE error_id = ? ORDER BY id`, errorID)
	if err != nil {
		return nil, fmt.Errorf("finding request logs: %w", err)
	}
	return scanRequestLogs(rows)
}

// Recent returns up to limit records, newest first.
func (s *RequestLogStore) Recent(ctx context.Context, limit int) ([]RequestLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, timestamp, level, method, path, status, duration_ms,
		COALESCE(user_id, ''), COALESCE(error_id, ''), line
		FROM request_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing request logs: %w", err)
	}
	return scanRequestLogs(rows)
}

func scanRequestLogs(rows *sql.Rows) ([]RequestLog, error) {
	defer rows.Close()
	var out []RequestLog
	for rows.Next() {
		var l RequestLog
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Method, &l.Path, &l.Status,
			&l.DurationMs, &l.UserID, &l.ErrorID, &l.Line); err != nil {
			return nil, fmt.Errorf("scanning request log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
