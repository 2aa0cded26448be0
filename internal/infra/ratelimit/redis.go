package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"vcpproof/internal/domain"
)

const redisKeyPrefix = "vcpproof:ratelimit:"

// RedisLimiter keeps a sliding log of admitted requests per key in a sorted
// set, so every server pointed at the same Redis shares one budget and a
// burst at a window boundary cannot admit twice the limit.
type RedisLimiter struct {
	client redis.UniversalClient
	now    func() time.Time
}

// slidingLogScript trims entries older than the window, admits the request
// when fewer than limit remain and reports {admitted, count, reset_ms}.
// reset_ms is when the oldest retained entry leaves the window.
var slidingLogScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local admitted = 0
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  count = count + 1
  admitted = 1
end
redis.call("PEXPIRE", KEYS[1], window)
local reset = now + window
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {admitted, count, reset}
`)

func NewRedisLimiter(addr, password string, db int, now func() time.Time) (*RedisLimiter, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisLimiterWithClient(client, now), nil
}

func NewRedisLimiterWithClient(client redis.UniversalClient, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, now: now}
}

func (r *RedisLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}
	nowMillis := r.now().UnixMilli()

	reply, err := slidingLogScript.Run(ctx, r.client, []string{redisKeyPrefix + key},
		nowMillis, windowMillis, limit, uuid.NewString()).Result()
	if err != nil {
		return domain.RateLimitDecision{}, errors.Wrapf(err, "rate limit script for %s", key)
	}
	return decodeSlidingLogReply(reply, limit)
}

func decodeSlidingLogReply(reply any, limit int) (domain.RateLimitDecision, error) {
	values, ok := reply.([]any)
	if !ok || len(values) != 3 {
		return domain.RateLimitDecision{}, fmt.Errorf("unexpected rate limit reply %v", reply)
	}
	var fields [3]int64
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return domain.RateLimitDecision{}, fmt.Errorf("rate limit reply field %d is %T", i, v)
		}
		fields[i] = n
	}
	admitted, count, resetMillis := fields[0], fields[1], fields[2]

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   admitted == 1,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(resetMillis),
	}, nil
}
