package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/session"
	"github.com/5w1tchy/folio-api/internal/store/dbx"
)

// Schema creates the accounts table. role has no UPDATE path in this
// package; it is set on insert only.
var Schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS public.users (
		id            uuid        PRIMARY KEY DEFAULT gen_random_uuid(),
		email         text        NOT NULL,
		username      text        NOT NULL DEFAULT '',
		password_hash text        NOT NULL,
		token_version integer     NOT NULL DEFAULT 1,
		role          text        NOT NULL,
		created_at    timestamptz NOT NULL DEFAULT now(),
		updated_at    timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT users_email_key UNIQUE (email),
		CONSTRAINT users_email_check CHECK (position('@' in email) > 1),
		CONSTRAINT users_role_check CHECK (role IN ('reader', 'publisher'))
	)`,
}

const userColumns = `id, email, username, password_hash,
	COALESCE(token_version,1) AS token_version, role, created_at, updated_at`

type SQLStore struct {
	DB dbx.Conn
}

func NewSQLStore(db dbx.Conn) *SQLStore { return &SQLStore{DB: db} }

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.TokenVersion,
		&role, &u.CreatedAt, &u.UpdatedAt)
	u.Role = models.Role(role)
	return u, err
}

func (s *SQLStore) CreateUser(ctx context.Context, email, username, passwordHash string, role models.Role) (User, error) {
	q := `
		INSERT INTO public.users (email, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	return scanUser(s.DB.QueryRowContext(ctx, q, email, username, passwordHash, string(role)))
}

func (s *SQLStore) FindUserByEmail(ctx context.Context, email string) (User, error) {
	q := `SELECT ` + userColumns + ` FROM public.users WHERE email = $1 LIMIT 1`
	return scanUser(s.DB.QueryRowContext(ctx, q, email))
}

func (s *SQLStore) FindUserByID(ctx context.Context, id string) (User, error) {
	q := `SELECT ` + userColumns + ` FROM public.users WHERE id = $1 LIMIT 1`
	return scanUser(s.DB.QueryRowContext(ctx, q, id))
}

func (s *SQLStore) UpdateUserPasswordHash(ctx context.Context, userID, newHash string) error {
	const q = `UPDATE public.users SET password_hash = $1, updated_at = now() WHERE id = $2`
	return dbx.ExecOne(ctx, s.DB, q, newHash, userID)
}

func (s *SQLStore) TokenVersion(ctx context.Context, userID string) (int, error) {
	var v int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(token_version,1) FROM public.users WHERE id = $1`, userID).Scan(&v)
	return v, err
}

func (s *SQLStore) BumpTokenVersion(ctx context.Context, userID string) (int, error) {
	var v int
	err := s.DB.QueryRowContext(ctx,
		`UPDATE public.users SET token_version = COALESCE(token_version,1) + 1, updated_at = now()
		 WHERE id = $1 RETURNING token_version`, userID).Scan(&v)
	return v, err
}

// RoleOf implements session.RoleSource.
func (s *SQLStore) RoleOf(ctx context.Context, userID string) (models.Role, error) {
	var raw string
	err := s.DB.QueryRowContext(ctx, `SELECT role FROM public.users WHERE id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", session.ErrNoRole
	}
	if err != nil {
		return "", err
	}
	role, ok := models.ParseRole(raw)
	if !ok {
		return "", session.ErrNoRole
	}
	return role, nil
}
