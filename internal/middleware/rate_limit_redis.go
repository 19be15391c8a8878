package middleware

import (
	"context"
	"time"

	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// RedisRateLimiter is a fixed-window counter shared by every API instance.
// It fails open when Redis is unreachable.
type RedisRateLimiter struct {
	client *redis.Client
	script *redis.Script
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter returns nil when client is nil so callers can fall back
func NewRedisRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	if client == nil {
		return nil
	}
	return &RedisRateLimiter{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether key is still within the current window
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || key == "" || l.limit <= 0 || l.window <= 0 {
		return true
	}
	ttl := l.window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()

	allowed, err := l.script.Run(ctx, l.client, []string{l.prefix + key}, ttl, l.limit).Int64()
	if err != nil {
		logger.Warn("Redis rate limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	return allowed == 1
}

// Middleware limits requests per client IP
func (l *RedisRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.Request.Context(), c.ClientIP()) {
			rateLimited(c)
			return
		}
		c.Next()
	}
}
