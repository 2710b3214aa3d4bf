package auth

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/session"
)

func newMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db), mock
}

func TestRoleOf(t *testing.T) {
	s, mock := newMock(t)
	q := regexp.QuoteMeta(`SELECT role FROM public.users WHERE id = $1`)

	mock.ExpectQuery(q).WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("publisher"))
	role, err := s.RoleOf(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RolePublisher, role)

	mock.ExpectQuery(q).WithArgs("u2").WillReturnError(sql.ErrNoRows)
	_, err = s.RoleOf(context.Background(), "u2")
	assert.ErrorIs(t, err, session.ErrNoRole)

	mock.ExpectQuery(q).WithArgs("u3").WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))
	_, err = s.RoleOf(context.Background(), "u3")
	assert.ErrorIs(t, err, session.ErrNoRole)

	boom := errors.New("connection reset")
	mock.ExpectQuery(q).WithArgs("u4").WillReturnError(boom)
	_, err = s.RoleOf(context.Background(), "u4")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, session.ErrNoRole)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_WritesRole(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()
	cols := []string{"id", "email", "username", "password_hash", "token_version", "role", "created_at", "updated_at"}

	mock.ExpectQuery(`INSERT INTO public.users`).
		WithArgs("a@b.io", "ann", "phc", "publisher").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "a@b.io", "ann", "phc", 1, "publisher", now, now))

	u, err := s.CreateUser(context.Background(), "a@b.io", "ann", "phc", models.RolePublisher)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, models.RolePublisher, u.Role)
	assert.Equal(t, 1, u.TokenVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserPasswordHash_NoRow(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE public.users SET password_hash`).
		WithArgs("phc", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateUserPasswordHash(context.Background(), "ghost", "phc")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
