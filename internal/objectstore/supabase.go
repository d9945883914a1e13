package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"moments/internal/config"
	"moments/internal/moments"
)

// SupabaseStore stores optimized copies in a public Supabase Storage bucket.
// The storage client has no context support; ctx is only checked before calls.
type SupabaseStore struct {
	client  *storage.Client
	bucket  string
	prefix  string
	baseURL string
}

// NewSupabaseStore creates a SupabaseStore from configuration.
func NewSupabaseStore(cfg config.StoreConfig) *SupabaseStore {
	baseURL := strings.TrimRight(cfg.SupabaseURL, "/")
	return &SupabaseStore{
		client:  storage.NewClient(baseURL+"/storage/v1", cfg.SupabaseKey, nil),
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseURL: baseURL,
	}
}

func (s *SupabaseStore) key(p string) string {
	if s.prefix == "" {
		return strings.TrimLeft(p, "/")
	}
	return path.Join(s.prefix, p)
}

// PublicURL returns the public URL of an object key.
func (s *SupabaseStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

func (s *SupabaseStore) Put(ctx context.Context, p string, r io.Reader, size int64, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := s.key(p)
	upsert := true
	_, err := s.client.UploadFile(s.bucket, key, r, storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

func (s *SupabaseStore) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := s.key(p)
	if _, err := s.client.RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

var _ moments.ObjectStore = (*SupabaseStore)(nil)
