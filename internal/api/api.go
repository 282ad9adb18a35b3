// CLAUDE:SUMMARY Web application: sign-in/out, email verification, dashboard, admin views, health; every handler runs behind the gate
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hazyhaar/horosgate/internal/auth"
	"github.com/hazyhaar/horosgate/internal/db"
	"github.com/hazyhaar/horosgate/internal/gate"
	"github.com/hazyhaar/horosgate/internal/mail"
	"github.com/hazyhaar/horosgate/pkg/reqlog"
)

type API struct {
	db            *db.DB
	auth          *auth.Auth
	sessions      *auth.Sessions
	mail          mail.Sender
	signInLimiter *RateLimiter
	requestLogs   *db.RequestLogStore
	logStats      func() reqlog.Stats
}

func New(database *db.DB, a *auth.Auth, sessions *auth.Sessions, sender mail.Sender, signIn *RateLimiter) *API {
	return &API{
		db:            database,
		auth:          a,
		sessions:      sessions,
		mail:          sender,
		signInLimiter: signIn,
	}
}

// SetRequestLogs enables GET /admin/logs.
func (a *API) SetRequestLogs(store *db.RequestLogStore) {
	a.requestLogs = store
}

// SetLogStats exposes the request log writer counters on /health.
func (a *API) SetLogStats(stats func() reqlog.Stats) {
	a.logStats = stats
}

func (a *API) RegisterRoutes(rt *gate.Router) {
	// Auth
	rt.Handle("GET "+gate.SignInPath, a.handleSignInPage)
	rt.Handle("POST "+gate.SignInPath, RateLimit(a.signInLimiter, a.handleSignIn))
	rt.Handle("POST /auth/sign-out", a.handleSignOut)
	rt.Handle("GET "+gate.VerifyEmailPath, a.handleVerifyEmail)
	rt.Handle("POST "+gate.VerifyEmailPath, a.handleResendVerification)

	// Account
	rt.Handle("GET /dashboard", a.handleDashboard)

	// Admin
	rt.Handle("GET /admin/users", a.handleListUsers)
	rt.Handle("GET /admin/logs", a.handleRequestLogs)

	rt.Handle("GET /health", a.handleHealth)
}

// --- Account ---

type profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Verified  bool   `json:"verified"`
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) error {
	u := gate.UserFromContext(r.Context())
	if u == nil {
		http.Redirect(w, r, gate.SignInPath, http.StatusSeeOther)
		return nil
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"user": profile{
			ID:        u.ID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Role:      u.Role,
			Verified:  u.Verified,
		},
	})
	return nil
}

// --- Admin ---

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) error {
	users, err := a.db.ListUsers(r.Context())
	if err != nil {
		return err
	}
	if users == nil {
		users = []db.User{}
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{"users": users})
	return nil
}

// handleRequestLogs looks up logged requests, typically by the errorId a user
// reported from a 500 page.
func (a *API) handleRequestLogs(w http.ResponseWriter, r *http.Request) error {
	if a.requestLogs == nil {
		jsonError(w, "request log database is disabled", http.StatusNotFound)
		return nil
	}
	var (
		logs []db.RequestLog
		err  error
	)
	if id := r.URL.Query().Get("error_id"); id != "" {
		logs, err = a.requestLogs.FindByErrorID(r.Context(), id)
	} else {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit > 500 {
			limit = 500
		}
		logs, err = a.requestLogs.Recent(r.Context(), limit)
	}
	if err != nil {
		return err
	}
	records := make([]json.RawMessage, 0, len(logs))
	for _, l := range logs {
		records = append(records, json.RawMessage(l.Line))
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{"records": records})
	return nil
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) error {
	resp := map[string]interface{}{"status": "ok"}
	if err := a.db.PingContext(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["database"] = err.Error()
	}
	if a.logStats != nil {
		s := a.logStats()
		resp["request_log"] = map[string]interface{}{
			"buffered":        s.Buffered,
			"flushes":         s.Flushes,
			"written":         s.Written,
			"dropped_batches": s.DroppedBatches,
			"dropped_records": s.DroppedRecords,
			"mirror_failures": s.MirrorFailures,
		}
	}
	status := http.StatusOK
	if resp["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	jsonResp(w, status, resp)
	return nil
}

// --- Helpers ---

func jsonResp(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
