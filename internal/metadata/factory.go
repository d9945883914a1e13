package metadata

import (
	"context"
	"fmt"

	"moments/internal/config"
	"moments/internal/moments"
)

// NewRepositoryFromConfig returns the configured MetadataRepository.
// The sqlite type uses the device database passed in as local. The returned
// close function releases any connection the repository opened itself.
func NewRepositoryFromConfig(ctx context.Context, cfg config.MetadataConfig, local moments.MetadataRepository, clock moments.Clock) (moments.MetadataRepository, func(), error) {
	switch cfg.Type {
	case "sqlite":
		if local == nil {
			return nil, nil, fmt.Errorf("sqlite metadata requires the device database")
		}
		return local, func() {}, nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, nil, fmt.Errorf("postgres metadata requires dsn to be set")
		}
		p, err := Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo := NewPostgresRepository(p, clock, nil)
		if err := repo.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, nil, err
		}
		return repo, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown metadata type: %s", cfg.Type)
	}
}
