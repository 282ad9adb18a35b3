package auth

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/hazyhaar/horosgate/internal/db"
)

// Session is the gate's view of a server-side session. Fresh is set when the
// session was created or had its expiry extended during the current call,
// meaning the client cookie must be rewritten.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	Fresh     bool
}

// SessionRepo persists sessions. GetSession returns db.ErrNotFound for
// unknown ids.
type SessionRepo interface {
	InsertSession(ctx context.Context, s db.Session) error
	GetSession(ctx context.Context, id string) (*db.Session, error)
	UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*db.User, error)
}

type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Sessions issues, validates and revokes sessions. Validation runs behind a
// circuit breaker so a failing backend is cut off quickly.
type Sessions struct {
	repo    SessionRepo
	users   UserStore
	cfg     SessionConfig
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewSessions(repo SessionRepo, users UserStore, cfg SessionConfig) *Sessions {
	if cfg.CookieName == "" {
		cfg.CookieName = "auth_session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	return &Sessions{
		repo:  repo,
		users: users,
		cfg:   cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "session-store",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsSuccessful: backendHealthy,
		}),
		now: time.Now,
	}
}

// backendHealthy tells the breaker which errors say nothing about the
// backend. A caller that gave up must not trip the circuit for everyone.
func backendHealthy(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Sessions) CookieName() string { return s.cfg.CookieName }

func (s *Sessions) TTL() time.Duration { return s.cfg.TTL }

func (s *Sessions) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	row := db.Session{ID: id, UserID: userID, ExpiresAt: expiresAt.UTC().Truncate(time.Second)}
	if err := s.repo.InsertSession(ctx, row); err != nil {
		return nil, err
	}
	return &Session{ID: row.ID, UserID: row.UserID, ExpiresAt: row.ExpiresAt, Fresh: true}, nil
}

type validated struct {
	session *Session
	user    *db.User
}

// ValidateSession resolves id. Unknown or expired sessions yield (nil, nil,
// nil). A session in the second half of its lifetime is extended and
// returned with Fresh set. Errors mean the backend could not answer.
func (s *Sessions) ValidateSession(ctx context.Context, id string) (*Session, *db.User, error) {
	if id == "" {
		return nil, nil, nil
	}
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.validate(ctx, id)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("validating session: %w", err)
	}
	v := res.(validated)
	return v.session, v.user, nil
}

func (s *Sessions) validate(ctx context.Context, id string) (validated, error) {
	row, err := s.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return validated{}, nil
		}
		return validated{}, err
	}

	now := s.now()
	if !now.Before(row.ExpiresAt) {
		if err := s.repo.DeleteSession(ctx, id); err != nil {
			return validated{}, err
		}
		return validated{}, nil
	}

	user, err := s.users.GetUserByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return validated{}, s.repo.DeleteSession(ctx, id)
		}
		return validated{}, err
	}

	sess := &Session{ID: row.ID, UserID: row.UserID, ExpiresAt: row.ExpiresAt}
	if !now.Before(row.ExpiresAt.Add(-s.cfg.TTL / 2)) {
		sess.ExpiresAt = now.Add(s.cfg.TTL).UTC().Truncate(time.Second)
		if err := s.repo.UpdateSessionExpiry(ctx, id, sess.ExpiresAt); err != nil {
			return validated{}, err
		}
		sess.Fresh = true
	}
	return validated{session: sess, user: user}, nil
}

func (s *Sessions) InvalidateSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

func (s *Sessions) InvalidateUserSessions(ctx context.Context, userID string) error {
	return s.repo.DeleteUserSessions(ctx, userID)
}

type expiredPurger interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// PurgeExpired removes expired sessions from backends that do not expire
// them on their own.
func (s *Sessions) PurgeExpired(ctx context.Context) (int64, error) {
	p, ok := s.repo.(expiredPurger)
	if !ok {
		return 0, nil
	}
	return p.DeleteExpiredSessions(ctx, s.now())
}

// SessionCookie returns the cookie carrying sessionID, scoped to the site root.
func (s *Sessions) SessionCookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(s.cfg.TTL / time.Second),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// BlankSessionCookie returns a cookie that clears the session on the client.
func (s *Sessions) BlankSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

var sessionIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newSessionID returns 40 lowercase base32 characters (200 random bits).
func newSessionID() (string, error) {
	var b [25]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return strings.ToLower(sessionIDEncoding.EncodeToString(b[:])), nil
}
