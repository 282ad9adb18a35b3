package api

import (
	"bytes"
	"html/template"
	"net/http"
)

var pages = template.Must(template.New("layout").Parse(`
{{define "head"}}<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>{{.}}</title></head>
<body>{{end}}

{{define "sign-in"}}{{template "head" "Sign in"}}
<h1>Sign in</h1>
{{with .Error}}<p role="alert">{{.}}</p>{{end}}
<form method="post" action="/auth/sign-in">
  <label>Email <input type="email" name="email" value="{{.Email}}" required></label>
  {{with .Fields.email}}<p>{{.}}</p>{{end}}
  <label>Password <input type="password" name="password" minlength="6" required></label>
  {{with .Fields.password}}<p>{{.}}</p>{{end}}
  <button type="submit">Sign in</button>
</form>
</body></html>{{end}}

{{define "verify-email"}}{{template "head" "Verify your email"}}
<h1>Verify your email</h1>
{{with .Error}}<p role="alert">{{.}}</p>{{end}}
{{if .Sent}}<p>A new verification link was sent to {{.Email}}.</p>
{{else}}<p>We sent a verification link to {{.Email}}. Follow it to activate your account.</p>{{end}}
<form method="post" action="/auth/verify/email"><button type="submit">Send a new link</button></form>
<form method="post" action="/auth/sign-out"><button type="submit">Sign out</button></form>
</body></html>{{end}}
`))

type signInPage struct {
	Email  string
	Error  string
	Fields map[string]string
}

type verifyPage struct {
	Email string
	Sent  bool
	Error string
}

// renderPage executes into a buffer first so a template failure can still
// become a clean 500.
func renderPage(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
