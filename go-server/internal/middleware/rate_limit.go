package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/internal/metrics"
)

// Limiter decides whether a client may make another request in the current window
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() int
	Window() time.Duration
}

// RateLimit rejects requests over the limiter's budget with 429.
// Limiter errors let the request through.
func RateLimit(l Limiter) gin.HandlerFunc {
	logger := zap.L().With(zap.String("component", "rate_limiter"))

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		allowed, err := l.Allow(c.Request.Context(), clientIP)
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			rejectRateLimited(c, l, logger)
			return
		}

		c.Next()
	}
}

func rejectRateLimited(c *gin.Context, l Limiter, logger *zap.Logger) {
	logger.Warn("Rate limit exceeded",
		zap.String("ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)
	metrics.RateLimitedTotal.Inc()

	c.Header("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
	c.Header("X-RateLimit-Window", l.Window().String())
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       "Rate limit exceeded",
		"code":        "RATE_LIMIT_EXCEEDED",
		"retry_after": l.Window().Seconds(),
	})
	c.Abort()
}

// RateLimiter is a fixed-window limiter kept in process memory
type RateLimiter struct {
	requests map[string]*clientBucket
	mutex    sync.RWMutex
	rate     int
	window   time.Duration
	stop     chan struct{}
	once     sync.Once
}

type clientBucket struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter(requestsPerWindow int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*clientBucket),
		rate:     requestsPerWindow,
		window:   window,
		stop:     make(chan struct{}),
	}

	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return RateLimit(rl)
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	return rl.allow(key), nil
}

func (rl *RateLimiter) Limit() int            { return rl.rate }
func (rl *RateLimiter) Window() time.Duration { return rl.window }

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) allow(clientIP string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	bucket, exists := rl.requests[clientIP]

	if !exists || now.After(bucket.resetTime) {
		rl.requests[clientIP] = &clientBucket{
			count:     1,
			resetTime: now.Add(rl.window),
		}
		return true
	}

	if bucket.count >= rl.rate {
		return false
	}

	bucket.count++
	return true
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictExpired(time.Now())
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) evictExpired(now time.Time) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	for ip, bucket := range rl.requests {
		if now.After(bucket.resetTime) {
			delete(rl.requests, ip)
		}
	}
}

// RedisRateLimiter shares fixed-window counters between replicas through Redis
type RedisRateLimiter struct {
	client *redis.Client
	rate   int
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, requestsPerWindow int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		rate:   requestsPerWindow,
		window: window,
		prefix: "goodproducts:ratelimit:",
	}
}

// incrWindow bumps the counter and arms its expiry in one step. A key left
// without a TTL is re-armed on the next hit instead of counting forever.
var incrWindow = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if redis.call("PTTL", KEYS[1]) < 0 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return count
`)

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.prefix + key

	count, err := incrWindow.Run(ctx, rl.client, []string{redisKey}, rl.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("incrementing %s: %w", redisKey, err)
	}

	return count <= int64(rl.rate), nil
}

func (rl *RedisRateLimiter) Limit() int            { return rl.rate }
func (rl *RedisRateLimiter) Window() time.Duration { return rl.window }
