package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kinna/kinna-backend/internal/http/response"
	"github.com/kinna/kinna-backend/pkg/logger"
)

const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return {1, 0, burst}
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
local refill = (delta * rate) / 1000.0
tokens = math.min(burst, tokens + refill)

local allowed = tokens >= requested
local wait_ms = 0
if allowed then
  tokens = tokens - requested
else
  wait_ms = math.ceil((requested - tokens) * 1000.0 / rate)
end

redis.call("HSET", key, "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed and 1 or 0, wait_ms}
`

type RateLimitConfig struct {
	Rate     float64                       // tokens per second
	Burst    int                           // bucket size
	Prefix   string                        // redis key prefix
	KeyFunc  func(r *http.Request) string  // defaults to the client IP
	SkipFunc func(r *http.Request) bool
}

// RateLimiter is a per-key token bucket kept in Redis. Redis errors let the
// request through.
type RateLimiter struct {
	rdb    redis.Scripter
	config RateLimitConfig
	script *redis.Script
	now    func() time.Time
}

func NewRateLimiter(rdb redis.Scripter, config RateLimitConfig) *RateLimiter {
	if config.Prefix == "" {
		config.Prefix = "kinna:throttle"
	}
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIP
	}
	return &RateLimiter{
		rdb:    rdb,
		config: config,
		script: redis.NewScript(tokenBucketLua),
		now:    time.Now,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			allowed, wait, err := rl.Allow(r.Context(), rl.config.KeyFunc(r))
			if err != nil {
				logger.WarnContext(r.Context(), "Rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				secs := int((wait + time.Second - 1) / time.Second)
				response.RateLimit(w, "Too many requests. Try again later.", secs)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Allow takes one token for key and reports how long to wait when none is left.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if rl.config.Rate <= 0 || rl.config.Burst <= 0 {
		return true, 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	sum := sha256.Sum256([]byte(key))
	redisKey := rl.config.Prefix + ":" + hex.EncodeToString(sum[:])

	res, err := rl.script.Run(ctx, rl.rdb, []string{redisKey},
		rl.config.Rate, rl.config.Burst, rl.now().UnixMilli(), 1).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit eval: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("ratelimit invalid result")
	}
	return toInt64(values[0]) == 1, time.Duration(toInt64(values[1])) * time.Millisecond, nil
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

// ClientIP returns the host part of r.RemoteAddr. Forwarding headers are
// ignored here; behind a trusted proxy chi's middleware.RealIP rewrites
// RemoteAddr before the limiter runs.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
