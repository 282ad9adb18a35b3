package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/horosgate/pkg/reqlog"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestUsers(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	u, err := database.CreateUser(ctx, CreateUserInput{Email: " Alice@Example.COM ", PasswordHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, RoleUser, u.Role)
	assert.False(t, u.Verified)
	assert.NotEmpty(t, u.ID)

	_, err = database.CreateUser(ctx, CreateUserInput{Email: "alice@example.com"})
	assert.Error(t, err, "email is unique")

	got, hash, err := database.GetUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "h", hash)

	require.NoError(t, database.SetVerified(ctx, u.ID, true))
	got, err = database.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)

	assert.ErrorIs(t, database.SetVerified(ctx, "missing", true), ErrNotFound)
	_, err = database.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = database.CreateUser(ctx, CreateUserInput{Email: "root@example.com", Role: RoleAdmin})
	require.NoError(t, err)
	users, err := database.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, hash, err = database.GetUserByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestSessions(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	u, err := database.CreateUser(ctx, CreateUserInput{Email: "s@example.com"})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, database.InsertSession(ctx, Session{ID: "a", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, database.InsertSession(ctx, Session{ID: "b", UserID: u.ID, ExpiresAt: now.Add(-time.Hour)}))

	s, err := database.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)

	require.NoError(t, database.UpdateSessionExpiry(ctx, "a", now.Add(2*time.Hour)))
	s, err = database.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Hour), s.ExpiresAt)

	n, err := database.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = database.GetSession(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, database.DeleteUserSessions(ctx, u.ID))
	_, err = database.GetSession(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionsCascadeOnUserDelete(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	u, err := database.CreateUser(ctx, CreateUserInput{Email: "c@example.com"})
	require.NoError(t, err)
	require.NoError(t, database.InsertSession(ctx, Session{ID: "x", UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)}))

	_, err = database.ExecContext(ctx, "DELETE FROM users WHERE id = ?", u.ID)
	require.NoError(t, err)
	_, err = database.GetSession(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func entry(t *testing.T, rec reqlog.Record) reqlog.Entry {
	t.Helper()
	line, err := rec.MarshalJSON()
	require.NoError(t, err)
	return reqlog.Entry{Record: rec, Line: line}
}

func TestRequestLogStore(t *testing.T) {
	database := openTestDB(t)
	store := NewRequestLogStore(database)
	ctx := context.Background()
	ts := time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.UTC)

	var batch []reqlog.Entry
	for i := 0; i < 3; i++ {
		batch = append(batch, entry(t, reqlog.Record{
			Timestamp: ts, Level: reqlog.LevelInfo, Method: "GET",
			Path: fmt.Sprintf("/p/%d", i), Status: 200, DurationMs: 1.5,
		}))
	}
	batch = append(batch, entry(t, reqlog.Record{
		Timestamp: ts, Level: reqlog.LevelError, Method: "POST", Path: "/boom",
		Status: 500, UserID: "u1", ErrorID: "e-1", Error: "kaput",
	}))
	require.NoError(t, store.WriteBatch(ctx, batch))
	require.NoError(t, store.WriteBatch(ctx, nil))

	found, err := store.FindByErrorID(ctx, "e-1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "/boom", found[0].Path)
	assert.Equal(t, "u1", found[0].UserID)
	assert.Equal(t, 500, found[0].Status)
	assert.Equal(t, "2025-03-04T05:06:07.008Z", found[0].Timestamp)
	assert.Equal(t, string(batch[3].Line), found[0].Line)

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "/boom", recent[0].Path)
	assert.Equal(t, "/p/2", recent[1].Path)
	assert.Empty(t, recent[1].ErrorID)

	none, err := store.FindByErrorID(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRequestLogStore_CancelledContextWritesNothing(t *testing.T) {
	database := openTestDB(t)
	store := NewRequestLogStore(database)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.WriteBatch(ctx, []reqlog.Entry{entry(t, reqlog.Record{Timestamp: time.Now(), Method: "GET", Path: "/"})})
	require.Error(t, err)

	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
