package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyResolveClient = "referral:resolve:%s"

type ResolveLimiterParams struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Client  *redis.Client    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// ResolveLimiter throttles public referral link lookups per client address.
type ResolveLimiter struct {
	bucket  *TokenBucket
	rate    float64
	burst   int
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewResolveLimiter(p ResolveLimiterParams) *ResolveLimiter {
	return &ResolveLimiter{
		bucket:  NewTokenBucket(p.Client),
		rate:    p.Cfg.ResolveRateLimit,
		burst:   p.Cfg.ResolveBurst,
		log:     p.Log.Named("ratelimit.resolve"),
		metrics: p.Metrics,
	}
}

func (l *ResolveLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.rate > 0 && l.burst > 0
}

// Allow fails open when redis is unreachable so a cache outage never takes
// referral redirects down with it.
func (l *ResolveLimiter) Allow(ctx context.Context, client string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}
	key := fmt.Sprintf(keyResolveClient, strings.TrimSpace(client))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("resolve rate limit check failed", zap.Error(err))
		l.metrics.RecordRateLimitAllowed(ctx, "resolve")
		return true, 0
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, "resolve", "bucket_empty")
		return false, res.RetryAfter
	}
	l.metrics.RecordRateLimitAllowed(ctx, "resolve")
	return true, 0
}
