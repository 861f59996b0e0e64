package lock

import (
	"context"

	"github.com/discedric/netbox-license/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)

// NewLocker picks Redis when an address is configured and the in-process
// locker otherwise.
func NewLocker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Locker {
	if cfg.Lock.RedisAddr == "" {
		log.Info("admission lock: in-process")
		return NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Lock.RedisAddr,
		Password: cfg.Lock.RedisPassword,
		DB:       cfg.Lock.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("admission lock: redis", zap.String("addr", cfg.Lock.RedisAddr))
	return NewRedisLocker(client, RedisOptions{
		Prefix:        cfg.AppName + ":lock:",
		TTL:           cfg.Lock.TTL,
		Wait:          cfg.Lock.Wait,
		RetryInterval: cfg.Lock.RetryInterval,
	})
}
