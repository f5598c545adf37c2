package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/upcareer/jobdeck/internal/config"
)

const keyUsageIncrement = "usage:increment:user:%s"

// Usage increments are cheap writes; the limiter only guards against a
// runaway client hammering one user's counters.
const (
	defaultUserRate  = 5.0
	defaultUserBurst = 20
)

// UsageLimiter rate limits the usage increment endpoint per user. When redis
// is not configured the limiter is disabled and every request passes.
type UsageLimiter struct {
	enabled bool
	bucket  *TokenBucket

	rate  float64
	burst int
}

func NewUsageLimiter(cfg config.Config) *UsageLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &UsageLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &UsageLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    defaultUserRate,
		burst:   defaultUserBurst,
	}
}

func (l *UsageLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *UsageLimiter) Allow(ctx context.Context, userID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUsageIncrement, strings.TrimSpace(userID)), l.rate, l.burst)
}
