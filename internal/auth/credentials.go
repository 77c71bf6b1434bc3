package auth

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for an unknown admin or a wrong password.
var ErrBadCredentials = errors.New("invalid username or password")

// Credentials checks admin logins against the admins table.
type Credentials struct {
	db *sql.DB
}

// NewCredentials creates a credential checker.
func NewCredentials(db *sql.DB) *Credentials {
	return &Credentials{db: db}
}

// Verify compares the password against the stored bcrypt hash.
func (c *Credentials) Verify(ctx context.Context, username, password string) error {
	var hash string
	err := c.db.QueryRowContext(ctx,
		`SELECT password_hash FROM admins WHERE username = $1`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBadCredentials
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrBadCredentials
	}
	return nil
}
