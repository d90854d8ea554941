package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/moneyradar/moneyradar/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyUsageIngestCustomer = "usage:ingest:customer:%s"

// UsageIngestLimiter throttles usage submissions per customer. A nil limiter
// (redis disabled) allows everything.
type UsageIngestLimiter struct {
	enabled bool

	bucket *TokenBucket

	rate  float64
	burst int
}

func NewUsageIngestLimiter(cfg config.Config, client *redis.Client) (*UsageIngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return nil, nil
	}
	if limitCfg.IngestRate <= 0 || limitCfg.IngestBurst <= 0 {
		return nil, errors.New("usage ingest rate limit must be positive")
	}

	return &UsageIngestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.IngestRate,
		burst:   limitCfg.IngestBurst,
	}, nil
}

func (l *UsageIngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *UsageIngestLimiter) AllowCustomer(ctx context.Context, customerID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUsageIngestCustomer, strings.TrimSpace(customerID)), l.rate, l.burst)
}
