package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	v1 "weddingdesk/pkg/api/v1"
	"weddingdesk/pkg/constraints"
	"weddingdesk/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// tokenBucketScript implements the Token Bucket algorithm.
// Input: ARGV[1]=rate, ARGV[2]=capacity, ARGV[3]=now, ARGV[4]=requested
// Output: { allowed, remaining, reset_after }
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1]
local ts_key = KEYS[2]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local fill_time = capacity / rate
local ttl = math.ceil(fill_time * 2)

-- Load state
local last_tokens = tonumber(redis.call("get", tokens_key))
if last_tokens == nil then last_tokens = capacity end

local last_ts = tonumber(redis.call("get", ts_key))
if last_ts == nil then last_ts = now end

-- Refill
local delta = math.max(0, now - last_ts)
local filled_tokens = math.min(capacity, last_tokens + (delta * rate))
local allowed = 0
local remaining = filled_tokens
local reset_after = 0

if filled_tokens >= requested then
    allowed = 1
    filled_tokens = filled_tokens - requested
    remaining = filled_tokens
else
    allowed = 0
    remaining = filled_tokens
    reset_after = (requested - filled_tokens) / rate
end

if allowed == 1 then
    redis.call("set", tokens_key, filled_tokens, "EX", ttl)
    redis.call("set", ts_key, now, "EX", ttl)
end

return { allowed, remaining, reset_after }
`)

// localLimiter is the in-process fallback used when Redis is unavailable.
type localLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

type localLimiters struct {
	m         sync.Map
	mu        sync.Mutex
	lastSweep time.Time
}

func (l *localLimiters) get(key string, r rate.Limit, b int) *rate.Limiter {
	now := time.Now()
	l.sweep(now)

	val, _ := l.m.LoadOrStore(key, &localLimiter{limiter: rate.NewLimiter(r, b)})
	ll := val.(*localLimiter)
	ll.lastSeen.Store(now.UnixNano())
	return ll.limiter
}

// sweep drops limiters idle for ten minutes, at most once per ten minutes.
func (l *localLimiters) sweep(now time.Time) {
	l.mu.Lock()
	if now.Sub(l.lastSweep) < 10*time.Minute {
		l.mu.Unlock()
		return
	}
	l.lastSweep = now
	l.mu.Unlock()

	cutoff := now.Add(-10 * time.Minute).UnixNano()
	l.m.Range(func(key, value any) bool {
		if value.(*localLimiter).lastSeen.Load() < cutoff {
			l.m.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware enforces a per-client-IP token bucket in Redis and
// falls back to an in-process limiter when Redis fails or rdb is nil.
// keyPrefix separates buckets of different routes.
func RateLimitMiddleware(rdb redis.Scripter, requestsPerSecond int, keyPrefix string) gin.HandlerFunc {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	burst := requestsPerSecond
	limit := strconv.Itoa(requestsPerSecond)
	local := &localLimiters{lastSweep: time.Now()}

	tooMany := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, v1.ErrorBody{
			Message: "too many requests, slow down",
			Error:   constraints.CodeRateLimited,
		})
	}

	fallback := func(c *gin.Context, key string) {
		limiter := local.get(key, rate.Limit(requestsPerSecond), burst)
		c.Header("X-RateLimit-Limit", limit)
		if !limiter.Allow() {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", "1")
			tooMany(c)
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		c.Next()
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		key := "ratelimit:" + keyPrefix + ":" + clientIP

		if rdb == nil {
			fallback(c, key)
			return
		}

		now := float64(time.Now().UnixMicro()) / 1e6
		args := []any{
			float64(requestsPerSecond), // rate
			float64(burst),             // capacity
			now,
			1, // requested tokens
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 100*time.Millisecond)
		result, err := tokenBucketScript.Run(ctx, rdb, []string{key + ":tokens", key + ":ts"}, args...).Result()
		cancel()

		if err != nil {
			logger.Warn("redis rate limit failed, using local limiter",
				zap.Error(err),
				zap.String("ip", clientIP))
			fallback(c, key)
			return
		}

		resSlice, ok := result.([]any)
		if !ok || len(resSlice) != 3 {
			logger.Error("invalid redis rate limit response", zap.Any("response", result))
			c.Next()
			return
		}

		allowed := helperInt(resSlice[0]) == 1
		remaining := helperFloat(resSlice[1])
		resetAfter := helperFloat(resSlice[2])

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(remaining)))
		resetTime := time.Now().Add(time.Duration(resetAfter * float64(time.Second)))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			tooMany(c)
			return
		}
		c.Next()
	}
}

func helperInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case float64:
		return int64(val)
	default:
		return 0
	}
}

func helperFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	default:
		return 0
	}
}
