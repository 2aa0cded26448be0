package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vcpproof/internal/domain"
)

var ErrCapacityExceeded = errors.New("rate limiter capacity exceeded")

// memoryLimiter keeps one token bucket per key. A bucket holds up to burst
// tokens and refills at limit tokens per window.
type memoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	data    map[string]*memoryBucket
	maxKeys int
	burst   int
}

type memoryBucket struct {
	limiter  *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

type MemoryLimiterConfig struct {
	Now     func() time.Time
	MaxKeys int
	// Burst caps the bucket size. Zero means the bucket holds a full window.
	Burst int
}

func NewMemoryLimiter(cfg MemoryLimiterConfig) domain.RateLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &memoryLimiter{
		now:     cfg.Now,
		data:    make(map[string]*memoryBucket),
		maxKeys: cfg.MaxKeys,
		burst:   cfg.Burst,
	}
}

func (m *memoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	if window <= 0 {
		window = time.Second
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.data[key]
	if ok && (bucket.limit != limit || bucket.window != window) {
		delete(m.data, key)
		ok = false
	}
	if !ok {
		if len(m.data) >= m.maxKeys {
			m.gc(now)
		}
		if len(m.data) >= m.maxKeys {
			return domain.RateLimitDecision{}, ErrCapacityExceeded
		}
		burst := m.burst
		if burst <= 0 || burst > limit {
			burst = limit
		}
		every := window / time.Duration(limit)
		if every <= 0 {
			every = time.Nanosecond
		}
		bucket = &memoryBucket{
			limiter: rate.NewLimiter(rate.Every(every), burst),
			limit:   limit,
			window:  window,
		}
		m.data[key] = bucket
	}
	bucket.lastSeen = now

	allowed := bucket.limiter.AllowN(now, 1)
	tokens := bucket.limiter.TokensAt(now)
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	// When admitted, reset is the moment the bucket is full again; when
	// rejected, it is the moment the next token arrives.
	missing := float64(bucket.limiter.Burst()) - tokens
	if !allowed {
		missing = 1 - tokens
	}
	resetAt := now
	if missing > 0 {
		resetAt = now.Add(time.Duration(missing * float64(time.Second) / float64(bucket.limiter.Limit())))
	}

	return domain.RateLimitDecision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// gc drops buckets idle for a full window; they would be full on next use.
func (m *memoryLimiter) gc(now time.Time) {
	for key, bucket := range m.data {
		if now.Sub(bucket.lastSeen) >= bucket.window {
			delete(m.data, key)
		}
	}
}
