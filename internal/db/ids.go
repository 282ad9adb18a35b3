package db

import "github.com/hazyhaar/pkg/idgen"

// newUserID returns a short, URL-safe user identifier. Session ids are not
// drawn from here: they need more entropy and come from auth.
func newUserID() string {
	return idgen.New()
}
