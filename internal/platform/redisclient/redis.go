package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/billsync/pkg/config"
)

// New returns a client for redis.addr, or nil when Redis is not configured.
// Callers treat a nil client as "feature disabled".
func New(l *zap.SugaredLogger, cfg *cfgpkg.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		l.Infow("redis disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// registerLifecycle pings on start and closes on stop. A failed ping is
// logged only; dedupe degrades to pass-through.
func registerLifecycle(lc fx.Lifecycle, l *zap.SugaredLogger, client *redis.Client) {
	if client == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				l.Warnw("redis ping failed", "err", err)
				return nil
			}
			l.Infow("connected to redis", "addr", client.Options().Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Infow("closing redis client")
			return client.Close()
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)
