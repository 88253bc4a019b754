// Package ratelimit is a Redis-backed token bucket shared by all instances.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

if rate <= 0 or burst <= 0 then
  return {1, 0}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
end
if ts == nil then
  ts = now
end

local delta = math.max(0, now - ts)
tokens = math.min(burst, tokens + (delta * rate) / 1000.0)

local allowed = tokens >= 1
local wait_ms = 0
if allowed then
  tokens = tokens - 1
else
  wait_ms = math.ceil((1 - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed and 1 or 0, wait_ms}
`

var script = redis.NewScript(tokenBucketLua)

// Limiter allows perMinute requests per key with bursts up to burst.
type Limiter struct {
	rdb    *redis.Client
	prefix string
	rate   float64 // tokens per second
	burst  float64
	now    func() time.Time
}

func New(rdb *redis.Client, prefix string, perMinute, burst int) *Limiter {
	return &Limiter{
		rdb:    rdb,
		prefix: prefix,
		rate:   float64(perMinute) / 60,
		burst:  float64(burst),
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow takes one token for key. When the bucket is empty it returns false
// and the time until the next token. Redis errors fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l == nil || l.rdb == nil || l.rate <= 0 || l.burst <= 0 {
		return true, 0
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	sum := sha256.Sum256([]byte(key))
	redisKey := fmt.Sprintf("ratelimit:%s:%x", l.prefix, sum[:12])

	res, err := script.Run(ctx, l.rdb, []string{redisKey}, l.rate, l.burst, l.now().UnixMilli()).Result()
	if err != nil {
		logger.WarnContext(ctx, "Rate limit check failed, allowing request", "error", err)
		return true, 0
	}
	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		logger.WarnContext(ctx, "Rate limit returned unexpected result", "result", res)
		return true, 0
	}
	if toInt64(values[0]) == 1 {
		return true, 0
	}
	return false, time.Duration(toInt64(values[1])) * time.Millisecond
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
