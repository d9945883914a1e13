package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"moments/internal/moments"
)

// pool abstracts the subset of pgxpool.Pool used by the repository.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS image_records (
    id                 TEXT PRIMARY KEY,
    optimized_url      TEXT NOT NULL,
    optimized_path     TEXT NOT NULL,
    original_asset_ref TEXT NOT NULL,
    category_id        TEXT NOT NULL,
    author_id          TEXT NOT NULL,
    author_name        TEXT NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_image_records_category ON image_records (category_id, created_at);
`

// PostgresRepository stores image records in a shared Postgres database, so
// every guest device and the gallery see the same records.
type PostgresRepository struct {
	pool  pool
	clock moments.Clock
	ids   moments.IDGenerator
}

var _ moments.MetadataRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wraps an existing pool.
func NewPostgresRepository(p pool, clock moments.Clock, ids moments.IDGenerator) *PostgresRepository {
	if clock == nil {
		clock = moments.RealClock{}
	}
	if ids == nil {
		ids = moments.UUIDGenerator{}
	}
	return &PostgresRepository{pool: p, clock: clock, ids: ids}
}

// Connect opens a pool for dsn and verifies the connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return p, nil
}

// EnsureSchema creates the records table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, f moments.RecordFields) (string, error) {
	id := r.ids.New()
	created := f.Timestamp
	if created.IsZero() {
		created = r.clock.Now()
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO image_records (
    id, optimized_url, optimized_path, original_asset_ref, category_id, author_id, author_name, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`,
		id, f.OptimizedURL, f.OptimizedPath, f.OriginalAssetRef, f.CategoryID, f.AuthorID, f.AuthorName, created)
	if err != nil {
		return "", fmt.Errorf("inserting image record: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*moments.ImageRecord, error) {
	var rec moments.ImageRecord
	err := r.pool.QueryRow(ctx, `
SELECT id, optimized_url, optimized_path, original_asset_ref, category_id, author_id, author_name, created_at, updated_at
FROM image_records WHERE id = $1`, id).Scan(
		&rec.ID, &rec.OptimizedURL, &rec.OptimizedPath, &rec.OriginalAssetRef, &rec.CategoryID,
		&rec.AuthorID, &rec.AuthorName, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting image record: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch moments.RecordPatch) error {
	if patch.OriginalAssetRef == nil {
		return nil
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE image_records SET original_asset_ref = $1, updated_at = $2 WHERE id = $3`,
		*patch.OriginalAssetRef, r.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("updating image record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("image record %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM image_records WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting image record: %w", err)
	}
	return nil
}
