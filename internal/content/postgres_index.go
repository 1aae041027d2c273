package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const recordSchemaSQL = `
CREATE TABLE IF NOT EXISTS content_records (
	url TEXT PRIMARY KEY,
	id TEXT NOT NULL,
	type TEXT NOT NULL,
	source JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresIndex struct {
	db *sql.DB
}

func NewPostgresIndex(ctx context.Context, dsn string) (*PostgresIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	index := &PostgresIndex{db: db}
	if err := index.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return index, nil
}

func (s *PostgresIndex) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, recordSchemaSQL); err != nil {
		return fmt.Errorf("ensure content_records schema: %w", err)
	}
	return nil
}

func (s *PostgresIndex) Close() error {
	return s.db.Close()
}

func (s *PostgresIndex) Put(ctx context.Context, record Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	source := record.Source
	if source == nil {
		source = map[string]any{}
	}
	sourceJSON, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("marshal record source: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO content_records (url, id, type, source, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO UPDATE
		 SET id = EXCLUDED.id, type = EXCLUDED.type, source = EXCLUDED.source, created_at = EXCLUDED.created_at`,
		record.URL,
		record.ID,
		record.Type,
		sourceJSON,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert content record: %w", err)
	}
	return nil
}

func (s *PostgresIndex) Lookup(ctx context.Context, url string) (Record, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT url, id, type, source, created_at
		 FROM content_records
		 WHERE url = $1`,
		url,
	)

	var (
		record     Record
		sourceJSON []byte
	)
	if err := row.Scan(
		&record.URL,
		&record.ID,
		&record.Type,
		&sourceJSON,
		&record.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("query content record: %w", err)
	}

	if err := json.Unmarshal(sourceJSON, &record.Source); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal record source: %w", err)
	}

	return record, true, nil
}
