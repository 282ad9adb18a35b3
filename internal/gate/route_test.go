package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hazyhaar/horosgate/internal/db"
)

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier([]string{"/dashboard", "settings", VerifyEmailPath, ""}, []string{"/admin/"})

	tests := []struct {
		path string
		want Tier
	}{
		{"/", Public},
		{"", Public},
		{"/auth/sign-in", Public},
		{"/dashboard", Protected},
		{"/dashboard/", Protected},
		{"/dashboard/stats", Protected},
		{"/dashboards", Public},
		{"/settings/profile", Protected},
		{VerifyEmailPath, Protected},
		{"/admin", Admin},
		{"/admin/users", Admin},
		{"/administrator", Public},
		{"/dashboard/../admin/users", Admin},
		{"//admin", Admin},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.path))
		})
	}
}

func TestClassifier_AdminWinsOverProtected(t *testing.T) {
	c := NewClassifier([]string{"/"}, []string{"/admin"})
	assert.Equal(t, Admin, c.Classify("/admin/x"))
	assert.Equal(t, Protected, c.Classify("/anything"))
}

func TestAuthorize(t *testing.T) {
	user := &db.User{Role: db.RoleUser, Verified: true}
	unverified := &db.User{Role: db.RoleUser}
	admin := &db.User{Role: db.RoleAdmin}

	tests := []struct {
		name string
		tier Tier
		user *db.User
		path string
		want Decision
	}{
		{"public anonymous", Public, nil, "/", allow},
		{"protected anonymous", Protected, nil, "/dashboard", Decision{Location: SignInPath}},
		{"protected unverified", Protected, unverified, "/dashboard", Decision{Location: VerifyEmailPath}},
		{"protected unverified on verify page", Protected, unverified, VerifyEmailPath, allow},
		{"protected verified", Protected, user, "/dashboard", allow},
		{"admin anonymous", Admin, nil, "/admin", Decision{Location: SignInPath}},
		{"admin as user", Admin, user, "/admin", Decision{Location: SignInPath}},
		{"admin as admin", Admin, admin, "/admin", allow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Authorize(tc.tier, tc.user, tc.path))
		})
	}
}
