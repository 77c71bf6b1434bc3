package store

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const schema = `
CREATE TABLE IF NOT EXISTS departments (
	id          UUID PRIMARY KEY,
	name        TEXT UNIQUE NOT NULL,
	code        TEXT UNIQUE NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS students (
	id                  UUID PRIMARY KEY,
	student_id          TEXT UNIQUE NOT NULL,
	first_name          TEXT NOT NULL,
	last_name           TEXT NOT NULL,
	email               TEXT UNIQUE NOT NULL,
	department_id       UUID REFERENCES departments(id) ON DELETE SET NULL,
	qr_token            TEXT UNIQUE,
	qr_image_path       TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'active',
	registration_status TEXT NOT NULL DEFAULT 'pending',
	phone_number        TEXT NOT NULL DEFAULT '',
	address             TEXT NOT NULL DEFAULT '',
	date_of_birth       DATE,
	approved_by         TEXT,
	approved_at         TIMESTAMPTZ,
	rejection_reason    TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance_logs (
	id            UUID PRIMARY KEY,
	student_pk    UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	action        TEXT NOT NULL CHECK (action IN ('IN', 'OUT')),
	department_id UUID REFERENCES departments(id) ON DELETE SET NULL,
	logged_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_logs_student_time ON attendance_logs(student_pk, logged_at DESC);
CREATE INDEX IF NOT EXISTS idx_logs_action_time  ON attendance_logs(action, logged_at);

CREATE TABLE IF NOT EXISTS admins (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the schema if needed.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SeedAdmin ensures an admin account exists with the configured credentials.
// The password is bcrypt-hashed; an existing account is left untouched.
func SeedAdmin(ctx context.Context, db *sql.DB, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO admins (username, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (username) DO NOTHING
	`, username, string(hash))
	return err
}
