package ratelimit

import (
	"github.com/keyforge/keyforge/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewClient(cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured, rate limiting disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

var Module = fx.Module("ratelimit",
	fx.Provide(NewClient),
	fx.Provide(NewTokenBucket),
	fx.Provide(NewRedeemLimiter),
	fx.Provide(NewLocker),
)
