package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloudimg/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS upload_records (
  identifier text PRIMARY KEY,
  remote_version bigint NOT NULL,
  last_uploaded_at timestamptz NOT NULL,
  metadata jsonb NOT NULL
);
`

const (
	selectRecord = `SELECT remote_version, last_uploaded_at, metadata FROM upload_records WHERE identifier = $1`
	insertRecord = `INSERT INTO upload_records (identifier, remote_version, last_uploaded_at, metadata)
VALUES ($1, $2, $3, $4) ON CONFLICT (identifier) DO NOTHING`
	upsertRecord = `INSERT INTO upload_records (identifier, remote_version, last_uploaded_at, metadata)
VALUES ($1, $2, $3, $4) ON CONFLICT (identifier) DO UPDATE
SET remote_version = EXCLUDED.remote_version, last_uploaded_at = EXCLUDED.last_uploaded_at, metadata = EXCLUDED.metadata`
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps records in a single table.
type Postgres struct {
	db    querier
	close func()
}

func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	if url == "" {
		return nil, errors.New("postgres store requires a connection url")
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to postgres %w", err)
	}

	store, err := newPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.close = pool.Close

	return store, nil
}

func newPostgres(ctx context.Context, db querier) (*Postgres, error) {
	if _, err := db.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("error creating upload record table %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Get(ctx context.Context, identifier string) (domain.UploadRecord, error) {
	record := domain.UploadRecord{Identifier: identifier}
	var metadata []byte

	err := p.db.QueryRow(ctx, selectRecord, identifier).Scan(&record.RemoteVersion, &record.LastUploadedAt, &metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UploadRecord{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.UploadRecord{}, fmt.Errorf("error reading upload record %w", err)
	}

	if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
		return domain.UploadRecord{}, fmt.Errorf("error decoding upload metadata %w", err)
	}

	return record, nil
}

func (p *Postgres) Create(ctx context.Context, record domain.UploadRecord) error {
	tag, err := p.write(ctx, insertRecord, record)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordExists
	}
	return nil
}

func (p *Postgres) Put(ctx context.Context, record domain.UploadRecord) error {
	_, err := p.write(ctx, upsertRecord, record)
	return err
}

func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}

func (p *Postgres) write(ctx context.Context, sql string, record domain.UploadRecord) (pgconn.CommandTag, error) {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("error encoding upload metadata %w", err)
	}

	tag, err := p.db.Exec(ctx, sql, record.Identifier, record.RemoteVersion, record.LastUploadedAt.UTC().Truncate(time.Microsecond),
		metadata)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("error writing upload record %w", err)
	}
	return tag, nil
}
