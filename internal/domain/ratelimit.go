package domain

import "context"

// RateLimiter gates inbound chat requests per caller key (typically the
// client IP). Implementations own the TTL bookkeeping; callers only ask.
type RateLimiter interface {
	// Allow reports whether the caller identified by key may proceed.
	Allow(ctx context.Context, key string) (bool, error)
}
