// CLAUDE:SUMMARY Credentials: bcrypt password hashing, email/password verification, signed email-verification tokens
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/horosgate/internal/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

const verifyAudience = "email-verify"

// UserFinder looks users up by email, returning the stored password hash.
type UserFinder interface {
	GetUserByEmail(ctx context.Context, email string) (*db.User, string, error)
}

type Auth struct {
	users     UserFinder
	secret    []byte
	verifyTTL time.Duration
}

type VerifyClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func New(users UserFinder, secret string, verifyTTL time.Duration) *Auth {
	return &Auth{
		users:     users,
		secret:    []byte(secret),
		verifyTTL: verifyTTL,
	}
}

func (a *Auth) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (a *Auth) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyCredentials returns the user owning email when password matches.
// Unknown users, accounts without a password and wrong passwords all yield
// ErrInvalidCredentials.
func (a *Auth) VerifyCredentials(ctx context.Context, email, password string) (*db.User, error) {
	user, hash, err := a.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if hash == "" || !a.CheckPassword(hash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// IssueVerifyToken signs a token proving control of email for userID.
func (a *Auth) IssueVerifyToken(userID, email string) (string, error) {
	now := time.Now()
	claims := VerifyClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{verifyAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(a.verifyTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) ParseVerifyToken(tokenStr string) (*VerifyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &VerifyClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithAudience(verifyAudience))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*VerifyClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
