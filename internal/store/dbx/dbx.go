package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// Queryer/Execer/Getter let these helpers work with *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
type Getter interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is everything a single-statement store needs.
type Conn interface {
	Queryer
	Execer
	Getter
}

// ExecOne runs a statement that must touch exactly one row; zero rows is
// reported as sql.ErrNoRows.
func ExecOne(ctx context.Context, e Execer, query string, args ...any) error {
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Migrate applies idempotent DDL statements in order.
func Migrate(ctx context.Context, e Execer, stmts ...string) error {
	for i, s := range stmts {
		if _, err := e.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// WithinTx runs fn in a transaction (commit on nil, rollback on error).
func WithinTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
