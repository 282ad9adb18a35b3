package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"`
	Verified     bool      `json:"verified"`
	ReceiveEmail bool      `json:"receive_email"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type CreateUserInput struct {
	Email        string
	FirstName    string
	LastName     string
	Role         string
	Verified     bool
	PasswordHash string
}

const userColumns = `id, email, first_name, last_name, role, verified, receive_email, created_at, updated_at`

func (db *DB) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	role := input.Role
	if role == "" {
		role = RoleUser
	}
	now := time.Now().UTC().Truncate(time.Second)
	u := &User{
		ID:           newUserID(),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         role,
		Verified:     input.Verified,
		ReceiveEmail: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var hash *string
	if input.PasswordHash != "" {
		hash = &input.PasswordHash
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, role, verified, receive_email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.Role, u.Verified, hash, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user and its password hash. The hash is empty
// for accounts created through an external provider.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, string, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+userColumns+`, password_hash
		FROM users WHERE email = ?`, strings.ToLower(email))
	var hash sql.NullString
	u, err := scanUser(row, &hash)
	if err != nil {
		return nil, "", err
	}
	return u, hash.String, nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (db *DB) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetVerified flags the user's email as verified.
func (db *DB) SetVerified(ctx context.Context, id string, verified bool) error {
	res, err := db.ExecContext(ctx,
		"UPDATE users SET verified = ?, updated_at = ? WHERE id = ?",
		verified, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner, extra ...any) (*User, error) {
	u := &User{}
	var created, updated int64
	dest := append([]any{&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role,
		&u.Verified, &u.ReceiveEmail, &created, &updated}, extra...)
	if err := s.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	u.UpdatedAt = time.Unix(updated, 0).UTC()
	return u, nil
}
