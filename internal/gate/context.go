package gate

import (
	"context"

	"github.com/hazyhaar/horosgate/internal/auth"
	"github.com/hazyhaar/horosgate/internal/db"
)

type identityContextKey struct{}

type identity struct {
	user    *db.User
	session *auth.Session
}

func withIdentity(ctx context.Context, user *db.User, session *auth.Session) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity{user: user, session: session})
}

// UserFromContext returns the signed-in user, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *db.User {
	id, _ := ctx.Value(identityContextKey{}).(identity)
	return id.user
}

// SessionFromContext returns the session resolved by the gate, or nil.
func SessionFromContext(ctx context.Context) *auth.Session {
	id, _ := ctx.Value(identityContextKey{}).(identity)
	return id.session
}
