// CLAUDE:SUMMARY Request gate: resolves the session cookie, applies route-tier rules once, rewrites cookies, logs every request exactly once
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/horosgate/internal/auth"
	"github.com/hazyhaar/horosgate/internal/db"
	"github.com/hazyhaar/horosgate/pkg/reqlog"
)

// GenericErrorMessage is the only failure detail ever sent to clients.
const GenericErrorMessage = "An unexpected error occurred."

// SessionStore is what the gate needs from the session layer.
type SessionStore interface {
	CookieName() string
	ValidateSession(ctx context.Context, id string) (*auth.Session, *db.User, error)
	SessionCookie(sessionID string) *http.Cookie
	BlankSessionCookie() *http.Cookie
}

// Logger receives one record per request.
type Logger interface {
	Enqueue(rec reqlog.Record)
}

// HandlerFunc is a downstream handler that reports unhandled failures by
// returning them. Panics are treated the same way.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Std adapts a plain http.Handler.
func Std(h http.Handler) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		h.ServeHTTP(w, r)
		return nil
	}
}

// ErrorPayload is the body of a 500 response.
type ErrorPayload struct {
	Message string `json:"message"`
	ErrorID string `json:"errorId"`
}

type Gate struct {
	sessions  SessionStore
	routes    *Classifier
	assembler *reqlog.Assembler
	log       Logger

	now        func() time.Time
	newErrorID func() string
}

func New(sessions SessionStore, routes *Classifier, assembler *reqlog.Assembler, log Logger) *Gate {
	return &Gate{
		sessions:   sessions,
		routes:     routes,
		assembler:  assembler,
		log:        log,
		now:        time.Now,
		newErrorID: uuid.NewString,
	}
}

// Middleware wraps a plain handler.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return g.Wrap(Std(next))
}

// Wrap returns the gated handler for next.
func (g *Gate) Wrap(next HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := g.now()

		session, user, unresolved := g.resolve(r)
		tier := g.routes.Classify(r.URL.Path)
		decision := Authorize(tier, user, r.URL.Path)

		rec := newStatusRecorder(w)
		// The cookie is only cleared when the store said there is no session.
		// An unreachable store leaves the client's cookie alone.
		if session != nil && session.Fresh {
			http.SetCookie(rec, g.sessions.SessionCookie(session.ID))
		} else if session == nil && !unresolved {
			http.SetCookie(rec, g.sessions.BlankSessionCookie())
		}

		r = r.WithContext(withIdentity(r.Context(), user, session))

		var (
			out     reqlog.Outcome
			aborted bool
		)
		if decision.Allow {
			gateDecisions.WithLabelValues(tier.String(), "allow").Inc()
			out, aborted = g.serve(rec, r, next)
		} else {
			gateDecisions.WithLabelValues(tier.String(), "redirect").Inc()
			http.Redirect(rec, r, decision.Location, http.StatusSeeOther)
			out = reqlog.Outcome{Status: http.StatusSeeOther}
		}

		var who *reqlog.Identity
		if user != nil {
			who = &reqlog.Identity{ID: user.ID, Email: user.Email}
		}
		g.log.Enqueue(g.assembler.Assemble(r, start, who, out))

		if aborted {
			panic(http.ErrAbortHandler)
		}
	})
}

// resolve reads the session cookie. Backend failures are treated as an
// anonymous request and reported through unresolved.
func (g *Gate) resolve(r *http.Request) (session *auth.Session, user *db.User, unresolved bool) {
	c, err := r.Cookie(g.sessions.CookieName())
	if err != nil || c.Value == "" {
		return nil, nil, false
	}
	session, user, err = g.sessions.ValidateSession(r.Context(), c.Value)
	if err != nil {
		slog.Warn("session lookup failed, continuing anonymously", "error", err, "path", r.URL.Path)
		return nil, nil, true
	}
	if session == nil || user == nil {
		return nil, nil, false
	}
	return session, user, false
}

// serve runs next. aborted reports an http.ErrAbortHandler panic, which the
// caller re-raises once the request is logged.
func (g *Gate) serve(w *statusRecorder, r *http.Request, next HandlerFunc) (out reqlog.Outcome, aborted bool) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if p == http.ErrAbortHandler {
			out, aborted = reqlog.Outcome{Status: w.Status(), Err: http.ErrAbortHandler}, true
			return
		}
		err, ok := p.(error)
		if !ok {
			err = fmt.Errorf("panic: %v", p)
		}
		out = g.fail(w, r, err, string(debug.Stack()))
	}()

	if err := next(w, r); err != nil {
		return g.fail(w, r, err, errorChain(err)), false
	}
	return reqlog.Outcome{Status: w.Status()}, false
}

func (g *Gate) fail(w *statusRecorder, r *http.Request, err error, stack string) reqlog.Outcome {
	id := g.newErrorID()
	slog.Error("unhandled request error", "error", err, "error_id", id, "method", r.Method, "path", r.URL.Path)

	if !w.Written() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorPayload{Message: GenericErrorMessage, ErrorID: id})
	}
	return reqlog.Outcome{
		Status:  http.StatusInternalServerError,
		Err:     err,
		ErrorID: id,
		Stack:   stack,
	}
}

// errorChain lists every wrapped layer of err, outermost first.
func errorChain(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%T: %s", e, e.Error())
	}
	return b.String()
}
