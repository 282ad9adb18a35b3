package api

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	netmail "net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/horosgate/internal/auth"
	"github.com/hazyhaar/horosgate/internal/gate"
	"github.com/hazyhaar/horosgate/internal/mail"
)

const (
	dashboardPath     = "/dashboard"
	minPasswordLength = 6
	invalidCredsMsg   = "Invalid credentials"
)

func (a *API) handleSignInPage(w http.ResponseWriter, r *http.Request) error {
	if gate.UserFromContext(r.Context()) != nil {
		http.Redirect(w, r, dashboardPath, http.StatusFound)
		return nil
	}
	return renderPage(w, http.StatusOK, "sign-in", signInPage{})
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return renderPage(w, http.StatusBadRequest, "sign-in", signInPage{Error: "Invalid form submission"})
	}
	email := strings.ToLower(strings.TrimSpace(r.PostFormValue("email")))
	password := r.PostFormValue("password")

	page := signInPage{Email: email}
	if fields := validateSignIn(email, password); len(fields) > 0 {
		page.Fields = fields
		return renderPage(w, http.StatusBadRequest, "sign-in", page)
	}

	user, err := a.auth.VerifyCredentials(r.Context(), email, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		page.Error = invalidCredsMsg
		return renderPage(w, http.StatusBadRequest, "sign-in", page)
	}
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	session, err := a.sessions.CreateSession(r.Context(), user.ID, time.Now().Add(a.sessions.TTL()))
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}
	setSessionCookie(w, a.sessions.SessionCookie(session.ID))
	slog.Info("user signed in", "user_id", user.ID)
	http.Redirect(w, r, dashboardPath, http.StatusFound)
	return nil
}

func validateSignIn(email, password string) map[string]string {
	fields := map[string]string{}
	if addr, err := netmail.ParseAddress(email); err != nil || addr.Address != email {
		fields["email"] = "Enter a valid email address"
	}
	if len(password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("Password must be at least %d characters", minPasswordLength)
	}
	return fields
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) error {
	if s := gate.SessionFromContext(r.Context()); s != nil {
		if err := a.sessions.InvalidateSession(r.Context(), s.ID); err != nil {
			return fmt.Errorf("signing out: %w", err)
		}
	}
	setSessionCookie(w, a.sessions.BlankSessionCookie())
	http.Redirect(w, r, gate.SignInPath, http.StatusSeeOther)
	return nil
}

// handleVerifyEmail confirms a token from a verification mail, or shows the
// instructions page when no token is given.
func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) error {
	u := gate.UserFromContext(r.Context())
	if u == nil {
		http.Redirect(w, r, gate.SignInPath, http.StatusSeeOther)
		return nil
	}
	q := r.URL.Query()

	if token := q.Get("token"); token != "" {
		claims, err := a.auth.ParseVerifyToken(token)
		if err != nil || claims.Subject != u.ID {
			return renderPage(w, http.StatusBadRequest, "verify-email", verifyPage{
				Email: u.Email,
				Error: "This verification link is invalid or has expired.",
			})
		}
		if err := a.db.SetVerified(r.Context(), u.ID, true); err != nil {
			return fmt.Errorf("verifying email: %w", err)
		}
		slog.Info("email verified", "user_id", u.ID)
		http.Redirect(w, r, dashboardPath, http.StatusFound)
		return nil
	}

	if u.Verified {
		http.Redirect(w, r, dashboardPath, http.StatusFound)
		return nil
	}
	return renderPage(w, http.StatusOK, "verify-email", verifyPage{Email: u.Email, Sent: q.Get("sent") == "1"})
}

func (a *API) handleResendVerification(w http.ResponseWriter, r *http.Request) error {
	u := gate.UserFromContext(r.Context())
	if u == nil {
		http.Redirect(w, r, gate.SignInPath, http.StatusSeeOther)
		return nil
	}
	if u.Verified {
		http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
		return nil
	}

	token, err := a.auth.IssueVerifyToken(u.ID, u.Email)
	if err != nil {
		return fmt.Errorf("issuing verify token: %w", err)
	}
	link := verifyLink(r, token)
	err = a.mail.Send(r.Context(), mail.Message{
		To:      u.Email,
		Subject: "Verify your email address",
		Text:    "Open this link to verify your email address:\n\n" + link + "\n",
		HTML:    `<p>Open this link to verify your email address:</p><p><a href="` + html.EscapeString(link) + `">Verify my email</a></p>`,
	})
	if err != nil {
		return fmt.Errorf("sending verification mail: %w", err)
	}
	http.Redirect(w, r, gate.VerifyEmailPath+"?sent=1", http.StatusSeeOther)
	return nil
}

func verifyLink(r *http.Request, token string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     gate.VerifyEmailPath,
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	return u.String()
}

// setSessionCookie replaces any session cookie already queued on w. The gate
// writes its own before the handler runs.
func setSessionCookie(w http.ResponseWriter, c *http.Cookie) {
	h := w.Header()
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, c.Name+"=") {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
	http.SetCookie(w, c)
}
