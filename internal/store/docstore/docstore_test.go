package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// testStore exercises the behaviour every adapter must share.
func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	col := fmt.Sprintf("test-%d", time.Now().UnixNano())

	id, err := s.Create(ctx, col, Fields{"title": "Autumn Tales", "genre": "fiction", "textContent": nil})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(ctx, col, id)
	require.NoError(t, err)
	assert.Equal(t, "Autumn Tales", got.String("title"))
	assert.Nil(t, got.StringPtr("textContent"))

	require.NoError(t, s.Patch(ctx, col, id, Fields{"textContent": "Once upon a time."}))
	got, err = s.Get(ctx, col, id)
	require.NoError(t, err)
	if p := got.StringPtr("textContent"); assert.NotNil(t, p) {
		assert.Equal(t, "Once upon a time.", *p)
	}
	assert.Equal(t, "fiction", got.String("genre"), "patch must keep untouched fields")

	_, err = s.Create(ctx, col, Fields{"title": "Other", "genre": "poetry"})
	require.NoError(t, err)

	docs, err := s.Query(ctx, col, Eq("genre", "fiction"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)

	all, err := s.Query(ctx, col)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.Get(ctx, col, "missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Patch(ctx, col, "missing-id", Fields{"x": "y"}), ErrNotFound)

	require.NoError(t, s.Delete(ctx, col, id))
	_, err = s.Get(ctx, col, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, col, id), ErrNotFound)
	all, err = s.Query(ctx, col)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Other", all[0].Fields.String("title"))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemory())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	for _, stmt := range Schema {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	testStore(t, NewPostgres(db))
}

func TestFirestoreStore(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT not set")
	}
	ctx := context.Background()
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		t.Fatalf("firestore.NewClient: %v", err)
	}
	defer client.Close()

	s, err := NewFirestore(ctx, client)
	if err != nil {
		t.Fatalf("NewFirestore: %v", err)
	}
	testStore(t, s)
}

const testID = "7f1c2d9e-4b7a-4f0e-9a51-3c2b1d0e8f6a"

func TestPostgresPatch_SingleStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE documents SET fields = fields || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`,
	)).
		WithArgs(Books, testID, []byte(`{"pdfURL":null,"textContent":"hi"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgres(db).Patch(t.Context(), Books, testID, Fields{"textContent": "hi", "pdfURL": nil})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPatch_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE documents`).WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgres(db).Patch(t.Context(), Books, testID, Fields{"x": 1})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs(Books, testID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM documents`).WillReturnResult(sqlmock.NewResult(0, 0))

	p := NewPostgres(db)
	require.NoError(t, p.Delete(t.Context(), Books, testID))
	assert.ErrorIs(t, p.Delete(t.Context(), Books, testID), ErrNotFound)
	assert.ErrorIs(t, p.Delete(t.Context(), Books, "not-a-uuid"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet_NonUUIDSkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPostgres(db).Get(t.Context(), Books, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQuery_Containment(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id::text, fields FROM documents WHERE collection = $1 AND fields @> $2::jsonb ORDER BY created_at, id`,
	)).
		WithArgs(UserBooks, []byte(`{"userId":"u1"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "fields"}).
			AddRow(testID, []byte(`{"userId":"u1","bookId":"b1"}`)))

	docs, err := NewPostgres(db).Query(t.Context(), UserBooks, Eq("userId", "u1"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b1", docs[0].Fields.String("bookId"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet_StoreErrorPassesThrough(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT fields FROM documents`).WillReturnError(boom)

	_, err = NewPostgres(db).Get(t.Context(), Books, testID)
	assert.ErrorIs(t, err, boom)
}

func TestFieldsAccessors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := Fields{"price": int64(12), "createdAt": Timestamp(now), "native": now}

	p, ok := f.Float("price")
	assert.True(t, ok)
	assert.Equal(t, 12.0, p)

	_, ok = f.Float("missing")
	assert.False(t, ok)

	got, err := f.Time("createdAt")
	require.NoError(t, err)
	assert.True(t, got.Equal(now))

	got, err = f.Time("native")
	require.NoError(t, err)
	assert.True(t, got.Equal(now))

	_, err = f.Time("price")
	assert.Error(t, err)
}
