package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/horosgate/internal/db"
)

const testTTL = 30 * 24 * time.Hour

func newRedisRepo(t *testing.T) SessionRepo {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisSessionsClient(rdb)
}

func TestSessions_Lifecycle(t *testing.T) {
	backends := map[string]func(t *testing.T, database *db.DB) SessionRepo{
		"sqlite": func(_ *testing.T, database *db.DB) SessionRepo { return database },
		"redis":  func(t *testing.T, _ *db.DB) SessionRepo { return newRedisRepo(t) },
	}

	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			database := openTestDB(t)
			a := New(database, "s", time.Hour)
			user := createUser(t, a, database, "carol@example.com", "password1")

			s := NewSessions(mk(t, database), database, SessionConfig{TTL: testTTL})
			base := time.Now()
			s.now = func() time.Time { return base }

			sess, err := s.CreateSession(ctx, user.ID, base.Add(testTTL))
			require.NoError(t, err)
			assert.True(t, sess.Fresh)
			assert.Regexp(t, regexp.MustCompile(`^[a-z2-7]{40}$`), sess.ID)

			got, u, err := s.ValidateSession(ctx, sess.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.False(t, got.Fresh, "a session early in its life is not renewed")
			assert.Equal(t, user.ID, u.ID)

			s.now = func() time.Time { return base.Add(20 * 24 * time.Hour) }
			got, _, err = s.ValidateSession(ctx, sess.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, got.Fresh, "a session past half its life is extended")
			assert.WithinDuration(t, base.Add(50*24*time.Hour), got.ExpiresAt, 2*time.Second)

			s.now = func() time.Time { return base.Add(51 * 24 * time.Hour) }
			got, u, err = s.ValidateSession(ctx, sess.ID)
			require.NoError(t, err)
			assert.Nil(t, got)
			assert.Nil(t, u)

			s.now = func() time.Time { return base }
			got, _, err = s.ValidateSession(ctx, sess.ID)
			require.NoError(t, err)
			assert.Nil(t, got, "expired sessions are deleted")

			got, u, err = s.ValidateSession(ctx, "unknown")
			require.NoError(t, err)
			assert.Nil(t, got)
			assert.Nil(t, u)
		})
	}
}

func TestSessions_InvalidateUserSessions(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	a := New(database, "s", time.Hour)
	user := createUser(t, a, database, "dave@example.com", "password1")

	for _, repo := range []SessionRepo{database, newRedisRepo(t)} {
		s := NewSessions(repo, database, SessionConfig{TTL: testTTL})
		s1, err := s.CreateSession(ctx, user.ID, time.Now().Add(testTTL))
		require.NoError(t, err)
		s2, err := s.CreateSession(ctx, user.ID, time.Now().Add(testTTL))
		require.NoError(t, err)

		require.NoError(t, s.InvalidateSession(ctx, s1.ID))
		got, _, err := s.ValidateSession(ctx, s1.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, s.InvalidateUserSessions(ctx, user.ID))
		got, _, err = s.ValidateSession(ctx, s2.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestSessions_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	a := New(database, "s", time.Hour)
	user := createUser(t, a, database, "erin@example.com", "password1")
	s := NewSessions(database, database, SessionConfig{TTL: testTTL})

	_, err := s.CreateSession(ctx, user.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, user.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type brokenRepo struct{ SessionRepo }

func (brokenRepo) GetSession(context.Context, string) (*db.Session, error) {
	return nil, errors.New("connection refused")
}

func TestSessions_BackendFailureOpensCircuit(t *testing.T) {
	s := NewSessions(brokenRepo{}, nil, SessionConfig{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := s.ValidateSession(ctx, "sid")
		require.Error(t, err)
		assert.ErrorContains(t, err, "connection refused")
	}
	_, _, err := s.ValidateSession(ctx, "sid")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	sess, user, err := s.ValidateSession(ctx, "")
	assert.NoError(t, err, "an empty id never reaches the backend")
	assert.Nil(t, sess)
	assert.Nil(t, user)
}

// ctxRepo fails with the context error once the caller's context is done.
type ctxRepo struct{ SessionRepo }

func (r ctxRepo) GetSession(ctx context.Context, id string) (*db.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return r.SessionRepo.GetSession(ctx, id)
}

func TestSessions_CallerCancellationKeepsCircuitClosed(t *testing.T) {
	database := openTestDB(t)
	a := New(database, "s", time.Hour)
	user := createUser(t, a, database, "frank@example.com", "password1")
	s := NewSessions(ctxRepo{database}, database, SessionConfig{TTL: testTTL})

	sess, err := s.CreateSession(context.Background(), user.ID, time.Now().Add(testTTL))
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()

	for i := 0; i < 10; i++ {
		ctx := cancelled
		if i%2 == 1 {
			ctx = expired
		}
		_, _, err := s.ValidateSession(ctx, sess.ID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	got, u, err := s.ValidateSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, u.ID)
}

func TestSessions_Cookies(t *testing.T) {
	s := NewSessions(nil, nil, SessionConfig{CookieName: "sid", TTL: time.Hour, Secure: true})

	c := s.SessionCookie("abc")
	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, "abc", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 3600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	blank := s.BlankSessionCookie()
	assert.Equal(t, "sid", blank.Name)
	assert.Empty(t, blank.Value)
	assert.Equal(t, "/", blank.Path)
	assert.Less(t, blank.MaxAge, 0)
}
