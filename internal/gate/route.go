package gate

import (
	"path"
	"strings"

	"github.com/hazyhaar/horosgate/internal/db"
)

const (
	SignInPath      = "/auth/sign-in"
	VerifyEmailPath = "/auth/verify/email"
)

// Tier is the trust level a route requires.
type Tier int

const (
	Public Tier = iota
	Protected
	Admin
)

func (t Tier) String() string {
	switch t {
	case Protected:
		return "protected"
	case Admin:
		return "admin"
	default:
		return "public"
	}
}

// Classifier maps request paths to tiers by prefix. Admin prefixes win over
// protected ones; anything unmatched is public.
type Classifier struct {
	protected []string
	admin     []string
}

func NewClassifier(protected, admin []string) *Classifier {
	return &Classifier{protected: normalize(protected), admin: normalize(admin)}
}

func normalize(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		out = append(out, path.Clean(p))
	}
	return out
}

func (c *Classifier) Classify(p string) Tier {
	if p == "" {
		p = "/"
	}
	p = path.Clean("/" + p)
	for _, prefix := range c.admin {
		if matchPrefix(p, prefix) {
			return Admin
		}
	}
	for _, prefix := range c.protected {
		if matchPrefix(p, prefix) {
			return Protected
		}
	}
	return Public
}

// matchPrefix matches whole path segments: /admin covers /admin and
// /admin/users but not /administrator.
func matchPrefix(p, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// Decision is the outcome of the authorization table.
type Decision struct {
	Allow    bool
	Location string
}

var allow = Decision{Allow: true}

// Authorize evaluates the access rules top to bottom; the first match wins.
func Authorize(tier Tier, user *db.User, p string) Decision {
	switch tier {
	case Protected:
		if user == nil {
			return Decision{Location: SignInPath}
		}
		if !user.Verified && path.Clean(p) != VerifyEmailPath {
			return Decision{Location: VerifyEmailPath}
		}
	case Admin:
		if !user.IsAdmin() {
			return Decision{Location: SignInPath}
		}
	}
	return allow
}
