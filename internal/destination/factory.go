package destination

import (
	"context"
	"fmt"
	"net/http"

	"moments/internal/config"
	"moments/internal/moments"
)

// NewDestinationFromConfig creates an OriginalDestination based on the config type.
func NewDestinationFromConfig(ctx context.Context, cfg config.DestinationConfig, client *http.Client) (moments.OriginalDestination, error) {
	switch cfg.Type {
	case "http":
		if cfg.IssueURL == "" {
			return nil, fmt.Errorf("http destination requires issue_url to be set")
		}
		return NewHTTPDestination(cfg.IssueURL, cfg.APIKey, client), nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 destination requires bucket to be set")
		}
		return NewS3PresignDestination(ctx, cfg, client)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem destination requires fs_root to be set")
		}
		return NewFileSystemDestination(cfg.FSRoot)
	case "memory":
		return NewMemoryDestination(), nil
	default:
		return nil, fmt.Errorf("unknown destination type: %s", cfg.Type)
	}
}
