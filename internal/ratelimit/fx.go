package ratelimit

import (
	"strings"

	"github.com/moneyradar/moneyradar/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// NewRedisClient returns nil when rate limiting and locking are disabled;
// consumers treat a nil client as "feature off".
func NewRedisClient(cfg config.Config) *redis.Client {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil
	}
	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
}

var Module = fx.Module("rate.limit",
	fx.Provide(
		NewRedisClient,
		NewUsageIngestLimiter,
		NewLocker,
	),
)
