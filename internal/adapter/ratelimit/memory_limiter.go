package ratelimit

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"docchat/internal/domain"
)

// limiterCacheSize bounds how many distinct caller keys hold a live limiter.
// Old entries are evicted LRU; an evicted caller simply starts a fresh
// bucket.
const limiterCacheSize = 4096

// MemoryLimiter is a per-key token bucket for single-instance deployments
// and tests, used when no Redis URL is configured.
type MemoryLimiter struct {
	limiters  *lru.Cache[string, *rate.Limiter]
	perMinute int
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	cache, _ := lru.New[string, *rate.Limiter](limiterCacheSize)
	return &MemoryLimiter{
		limiters:  cache,
		perMinute: perMinute,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute)
		l.limiters.Add(key, limiter)
	}
	return limiter.Allow(), nil
}

var _ domain.RateLimiter = (*MemoryLimiter)(nil)
