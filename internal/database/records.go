package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"moments/internal/moments"
)

// Create inserts a new image record and returns its generated ID.
func (s *SQLiteDatabase) Create(ctx context.Context, f moments.RecordFields) (string, error) {
	id := s.ids.New()
	created := f.Timestamp
	if created.IsZero() {
		created = s.clock.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO image_records
			(id, optimized_url, optimized_path, original_asset_ref, category_id, author_id, author_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, f.OptimizedURL, f.OptimizedPath, f.OriginalAssetRef, f.CategoryID, f.AuthorID, f.AuthorName, created, created)
	if err != nil {
		return "", fmt.Errorf("inserting image record: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) Get(ctx context.Context, id string) (*moments.ImageRecord, error) {
	var r moments.ImageRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, optimized_url, optimized_path, original_asset_ref, category_id, author_id, author_name, created_at, updated_at
		FROM image_records WHERE id = ?`, id).Scan(
		&r.ID, &r.OptimizedURL, &r.OptimizedPath, &r.OriginalAssetRef, &r.CategoryID,
		&r.AuthorID, &r.AuthorName, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("getting image record: %w", err)
	}
	return &r, nil
}

func (s *SQLiteDatabase) Update(ctx context.Context, id string, patch moments.RecordPatch) error {
	if patch.OriginalAssetRef == nil {
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE image_records SET original_asset_ref = ?, updated_at = ? WHERE id = ?",
		*patch.OriginalAssetRef, s.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("updating image record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating image record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("image record %s not found", id)
	}
	return nil
}

func (s *SQLiteDatabase) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM image_records WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting image record: %w", err)
	}
	return nil
}
