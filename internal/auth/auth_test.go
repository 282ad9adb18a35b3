package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/horosgate/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func createUser(t *testing.T, a *Auth, database *db.DB, email, password string) *db.User {
	t.Helper()
	hash, err := a.HashPassword(password)
	require.NoError(t, err)
	u, err := database.CreateUser(context.Background(), db.CreateUserInput{Email: email, PasswordHash: hash})
	require.NoError(t, err)
	return u
}

func TestVerifyCredentials(t *testing.T) {
	database := openTestDB(t)
	a := New(database, "test-secret", time.Hour)
	ctx := context.Background()
	u := createUser(t, a, database, "Alice@Example.com", "hunter22")

	t.Run("Valid", func(t *testing.T) {
		got, err := a.VerifyCredentials(ctx, "alice@example.com", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("EmailIsCaseInsensitive", func(t *testing.T) {
		got, err := a.VerifyCredentials(ctx, "  ALICE@example.COM ", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := a.VerifyCredentials(ctx, "alice@example.com", "nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := a.VerifyCredentials(ctx, "bob@example.com", "hunter22")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("NoPassword", func(t *testing.T) {
		_, err := database.CreateUser(ctx, db.CreateUserInput{Email: "oauth@example.com"})
		require.NoError(t, err)
		_, err = a.VerifyCredentials(ctx, "oauth@example.com", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestVerifyToken(t *testing.T) {
	a := New(nil, "test-secret", time.Hour)

	token, err := a.IssueVerifyToken("u1", "a@example.com")
	require.NoError(t, err)

	claims, err := a.ParseVerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)

	other := New(nil, "other-secret", time.Hour)
	_, err = other.ParseVerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := New(nil, "test-secret", -time.Minute)
	old, err := expired.IssueVerifyToken("u1", "a@example.com")
	require.NoError(t, err)
	_, err = a.ParseVerifyToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ParseVerifyToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
