// Package ratelimit provides per-API-key token buckets for the Redis proxy
// plane, plus a default bucket for unkeyed traffic.
package ratelimit

import (
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter maps API key tokens to token buckets. Buckets refill at the
// configured requests-per-second and allow bursts up to the same value.
// A refused request is not queued; callers map refusal to HTTP 429.
type Limiter struct {
	mu         sync.RWMutex
	buckets    map[string]*rate.Limiter
	defaultRPS int

	defaultBucket *rate.Limiter
	logger        *slog.Logger
}

// New creates a limiter with the given default requests-per-second rate.
// Rates below 1 fall back to 100.
func New(defaultRPS int, logger *slog.Logger) *Limiter {
	if defaultRPS < 1 {
		defaultRPS = 100
	}
	return &Limiter{
		buckets:       make(map[string]*rate.Limiter),
		defaultRPS:    defaultRPS,
		defaultBucket: rate.NewLimiter(rate.Limit(defaultRPS), defaultRPS),
		logger:        logger,
	}
}

// CheckDefault reports whether an unkeyed request is admitted.
func (l *Limiter) CheckDefault() bool {
	return l.defaultBucket.Allow()
}

// CheckAPIKey reports whether a request for the given API key token is
// admitted. The bucket is created lazily on first use; customRPS, when
// non-nil, sets the bucket's rate instead of the default.
func (l *Limiter) CheckAPIKey(apiKey string, customRPS *int) bool {
	l.mu.RLock()
	bucket, ok := l.buckets[apiKey]
	l.mu.RUnlock()

	if !ok {
		rps := l.defaultRPS
		if customRPS != nil && *customRPS > 0 {
			rps = *customRPS
		}

		l.mu.Lock()
		// Another request may have created the bucket while we upgraded
		// the lock.
		if existing, ok := l.buckets[apiKey]; ok {
			bucket = existing
		} else {
			bucket = rate.NewLimiter(rate.Limit(rps), rps)
			l.buckets[apiKey] = bucket
			l.logger.Debug("created rate limit bucket",
				"key_prefix", keyPrefix(apiKey),
				"rps", rps,
			)
		}
		l.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		l.logger.Warn("rate limit exceeded", "key_prefix", keyPrefix(apiKey))
	}
	return allowed
}

// RemoveAPIKey drops the bucket for a revoked key. Safe if absent.
func (l *Limiter) RemoveAPIKey(apiKey string) {
	l.mu.Lock()
	delete(l.buckets, apiKey)
	l.mu.Unlock()
}

// ClearAll drops every tracked bucket.
func (l *Limiter) ClearAll() {
	l.mu.Lock()
	l.buckets = make(map[string]*rate.Limiter)
	l.mu.Unlock()
}

// TrackedKeysCount returns the number of keys with live buckets.
func (l *Limiter) TrackedKeysCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

func keyPrefix(apiKey string) string {
	if len(apiKey) > 8 {
		return apiKey[:8]
	}
	return apiKey
}
