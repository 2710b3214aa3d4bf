package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/5w1tchy/folio-api/internal/store/dbx"
	"github.com/5w1tchy/folio-api/internal/store/shared"
	"github.com/google/uuid"
)

// Schema is the DDL for the Postgres adapter. Every collection shares one
// jsonb table; a document patch is a single UPDATE.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		collection text        NOT NULL,
		id         uuid        NOT NULL,
		fields     jsonb       NOT NULL DEFAULT '{}'::jsonb,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT documents_pkey PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS documents_fields_gin ON documents USING gin (fields jsonb_path_ops)`,
}

var _ Store = (*Postgres)(nil)

type Postgres struct {
	db dbx.Conn
}

func NewPostgres(db dbx.Conn) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("docstore: encode %s: %w", collection, err)
	}
	id := uuid.NewString()
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, fields) VALUES ($1, $2, $3)`,
		collection, id, body,
	); err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Fields, error) {
	if !shared.IsUUID(id) {
		return nil, ErrNotFound
	}
	var body []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT fields FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeFields(body)
}

func (p *Postgres) Patch(ctx context.Context, collection, id string, fields Fields) error {
	if !shared.IsUUID(id) {
		return ErrNotFound
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("docstore: encode %s patch: %w", collection, err)
	}
	err = dbx.ExecOne(ctx, p.db,
		`UPDATE documents SET fields = fields || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, body,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	if !shared.IsUUID(id) {
		return ErrNotFound
	}
	err := dbx.ExecOne(ctx, p.db,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) Query(ctx context.Context, collection string, filters ...Filter) ([]Doc, error) {
	match := make(Fields, len(filters))
	for _, f := range filters {
		match[f.Field] = f.Value
	}
	body, err := json.Marshal(match)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode %s filter: %w", collection, err)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, fields FROM documents WHERE collection = $1 AND fields @> $2::jsonb ORDER BY created_at, id`,
		collection, body,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Doc
	for rows.Next() {
		var (
			d   Doc
			raw []byte
		)
		if err := rows.Scan(&d.ID, &raw); err != nil {
			return nil, err
		}
		if d.Fields, err = decodeFields(raw); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func decodeFields(raw []byte) (Fields, error) {
	f := Fields{}
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("docstore: decode fields: %w", err)
	}
	return f, nil
}
