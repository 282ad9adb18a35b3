package reqlog

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Identity is the part of the signed-in user that ends up in a record.
type Identity struct {
	ID    string
	Email string
}

// Outcome is what the request handling produced. It is handed to the
// Assembler explicitly instead of being stashed on the request.
type Outcome struct {
	Status  int
	Err     error
	ErrorID string
	Stack   string
}

// Assembler turns request facts into Records.
type Assembler struct {
	// Domain is the public host name of the site. Referers from this host or
	// from localhost are shortened to their path.
	Domain string
	// Redact names query parameters whose values are replaced before logging.
	Redact []string
	Now    func() time.Time
}

func NewAssembler(domain string) *Assembler {
	return &Assembler{
		Domain: domain,
		Redact: []string{"token", "password", "code"},
		Now:    time.Now,
	}
}

// Assemble builds the record for r. start is when the request entered the
// pipeline.
func (a *Assembler) Assemble(r *http.Request, start time.Time, who *Identity, out Outcome) Record {
	now := a.Now()
	rec := Record{
		Timestamp:  now,
		Level:      LevelInfo,
		Method:     r.Method,
		Path:       r.URL.Path,
		Status:     out.Status,
		DurationMs: float64(now.Sub(start).Microseconds()) / 1000,
		Referer:    a.referer(r.Header.Get("Referer")),
		ErrorID:    out.ErrorID,
		Params:     a.queryParams(r.URL.Query()),
	}
	if rec.Status >= http.StatusBadRequest {
		rec.Level = LevelError
	}
	if who != nil {
		rec.UserID = who.ID
		rec.UserEmail = who.Email
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
		rec.ErrorStackTrace = out.Stack
	}
	return rec
}

func (a *Assembler) referer(header string) string {
	if header == "" {
		return ""
	}
	u, err := url.Parse(header)
	if err != nil || u.Host == "" {
		return header
	}
	host := u.Hostname()
	if host == "localhost" || (a.Domain != "" && strings.EqualFold(host, a.Domain)) {
		return u.Path
	}
	return header
}

func (a *Assembler) queryParams(q url.Values) map[string]string {
	if len(q) == 0 {
		return nil
	}
	params := make(map[string]string, len(q))
	for k, vs := range q {
		if reserved[k] || k == "" {
			continue
		}
		if a.redacted(k) {
			params[k] = "[redacted]"
			continue
		}
		params[k] = strings.Join(vs, ",")
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

func (a *Assembler) redacted(key string) bool {
	for _, k := range a.Redact {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}
