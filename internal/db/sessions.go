package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is a persisted session row.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

func (db *DB) InsertSession(ctx context.Context, s Session) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)",
		s.ID, s.UserID, s.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	var expires int64
	err := db.QueryRowContext(ctx,
		"SELECT id, user_id, expires_at FROM sessions WHERE id = ?", id).
		Scan(&s.ID, &s.UserID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	s.ExpiresAt = time.Unix(expires, 0).UTC()
	return s, nil
}

func (db *DB) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx, "UPDATE sessions SET expires_at = ? WHERE id = ?", expiresAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("extending session: %w", err)
	}
	return nil
}

func (db *DB) DeleteSession(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (db *DB) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session that expired before now and
// returns how many were removed.
func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return res.RowsAffected()
}
