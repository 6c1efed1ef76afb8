package redisdb

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/revenuepulse/internal/config"
)

var ErrNotConfigured = errors.New("redis_not_configured")

var Module = fx.Module("redis",
	fx.Provide(Open),
)

// Open parses REDIS_URL and returns a client that is pinged on start and
// closed on stop.
func Open(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, ErrNotConfigured
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	log = log.Named("redis")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis %s: %w", opts.Addr, err)
			}
			log.Info("connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}
