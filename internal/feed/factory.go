package feed

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"moments/internal/config"
	"moments/internal/moments"
)

// NewFeedFromConfig returns the configured FeedWriter.
// The sqlite type uses the device database passed in as local. The returned
// close function releases any connection the feed opened itself.
func NewFeedFromConfig(ctx context.Context, cfg config.FeedConfig, local moments.FeedWriter) (moments.FeedWriter, func(), error) {
	switch cfg.Type {
	case "sqlite":
		if local == nil {
			return nil, nil, fmt.Errorf("sqlite feed requires the device database")
		}
		return local, func() {}, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("redis feed requires redis_addr to be set")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return NewRedisFeed(client, cfg.Stream, cfg.Channel), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown feed type: %s", cfg.Type)
	}
}
