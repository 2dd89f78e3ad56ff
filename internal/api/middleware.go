package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"interview-insights-go/internal/logger"
)

// requestLogger stamps a request id and logs one line per request.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := logger.RequestID(c.Request)
		c.Request.Header.Set("X-Request-ID", id)
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()

		entry := log.WithRequest(c.Request).
			WithField("status", c.Writer.Status()).
			WithField("duration_ms", time.Since(start).Milliseconds())
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request completed")
			return
		}
		entry.Info("request completed")
	}
}

func countRequests(m RequestCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.CountRequest(c.Request.Context(), route, c.Writer.Status())
	}
}

type rateLimiterConfig struct {
	Client    *redis.Client
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// windowScript increments the counter and makes sure it carries an expiry,
// so a key can never outlive its window. Returns {count, pttl_ms}.
var windowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// rateLimiter is a fixed-window counter per client IP. Redis errors let the
// request through.
func rateLimiter(cfg rateLimiterConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := cfg.KeyPrefix + clientID(c.Request)

		res, err := windowScript.Run(ctx, cfg.Client, []string{key}, cfg.Window.Milliseconds()).Int64Slice()
		if err != nil || len(res) != 2 {
			c.Next()
			return
		}
		count := res[0]
		reset := max(int((time.Duration(res[1])*time.Millisecond).Seconds()), 0)
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.Limit))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", reset))

		if count > int64(cfg.Limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":           "rate limit exceeded",
				"retry_after_sec": reset,
			})
			return
		}
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", cfg.Limit-int(count)))
		c.Next()
	}
}

func clientID(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "anonymous"
	}
	return r.RemoteAddr
}
