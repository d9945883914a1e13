package objectstore

import (
	"context"
	"fmt"

	"moments/internal/config"
	"moments/internal/moments"
)

// NewObjectStoreFromConfig creates an ObjectStore implementation based on the store config type.
func NewObjectStoreFromConfig(ctx context.Context, cfg config.StoreConfig) (moments.ObjectStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.PublicBaseURL), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot, cfg.PublicBaseURL)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 store requires bucket to be set")
		}
		return NewS3Store(ctx, cfg)
	case "minio":
		if cfg.Bucket == "" || cfg.Endpoint == "" {
			return nil, fmt.Errorf("minio store requires bucket and endpoint to be set")
		}
		return NewMinioStore(ctx, cfg)
	case "supabase":
		if cfg.Bucket == "" || cfg.SupabaseURL == "" {
			return nil, fmt.Errorf("supabase store requires bucket and supabase_url to be set")
		}
		return NewSupabaseStore(cfg), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
