package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T) {
	// Initialize logger for tests
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	// Set Gin to test mode
	gin.SetMode(gin.TestMode)
}

func newLimitedRouter(l Limiter) *gin.Engine {
	router := gin.New()
	router.Use(RateLimit(l))
	router.POST("/submit", func(c *gin.Context) {
		c.Status(http.StatusSeeOther)
	})
	router.GET("/api/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"state": "editing"})
	})
	return router
}

func doRequest(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewRateLimiter(t *testing.T) {
	setupTest(t)

	rl := NewRateLimiter(10, time.Minute)
	defer rl.Stop()

	assert.NotNil(t, rl.requests)
	assert.Equal(t, 10, rl.Limit())
	assert.Equal(t, time.Minute, rl.Window())
}

func TestRateLimiter_Allow_UpToRate(t *testing.T) {
	setupTest(t)

	rl := NewRateLimiter(5, time.Minute)
	defer rl.Stop()
	clientIP := "192.168.1.1"

	for i := 0; i < 5; i++ {
		assert.True(t, rl.allow(clientIP), "Request %d should be allowed", i+1)
	}
	assert.False(t, rl.allow(clientIP))
	assert.Equal(t, 5, rl.requests[clientIP].count)
}

func TestRateLimiter_Allow_AfterWindowReset(t *testing.T) {
	setupTest(t)

	rl := NewRateLimiter(2, 100*time.Millisecond)
	defer rl.Stop()
	clientIP := "192.168.1.1"

	assert.True(t, rl.allow(clientIP))
	assert.True(t, rl.allow(clientIP))
	assert.False(t, rl.allow(clientIP))

	time.Sleep(150 * time.Millisecond)

	assert.True(t, rl.allow(clientIP))
}

func TestRateLimiter_Allow_ClientsAreIndependent(t *testing.T) {
	setupTest(t)

	rl := NewRateLimiter(3, time.Minute)
	defer rl.Stop()
	clients := []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"}

	for i := 0; i < 3; i++ {
		for _, ip := range clients {
			assert.True(t, rl.allow(ip))
		}
	}
	for _, ip := range clients {
		assert.False(t, rl.allow(ip))
	}
}

func TestRateLimit_BlocksAcrossRoutes(t *testing.T) {
	setupTest(t)

	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	router := newLimitedRouter(rl)

	assert.Equal(t, http.StatusSeeOther, doRequest(router, http.MethodPost, "/submit").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/session").Code)

	w := doRequest(router, http.MethodPost, "/submit")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1m0s", w.Header().Get("X-RateLimit-Window"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Contains(t, w.Body.String(), `"retry_after":60`)
}

func TestRateLimiter_EvictExpired(t *testing.T) {
	setupTest(t)

	rl := NewRateLimiter(5, time.Minute)
	defer rl.Stop()
	rl.allow("192.168.1.1")

	rl.evictExpired(time.Now())
	assert.Contains(t, rl.requests, "192.168.1.1")

	rl.evictExpired(time.Now().Add(2 * time.Minute))
	assert.NotContains(t, rl.requests, "192.168.1.1")
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	setupTest(t)

	rl := NewRateLimiter(100, time.Minute)
	defer rl.Stop()
	clientIP := "192.168.1.1"

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rl.allow(clientIP)
		}()
	}
	wg.Wait()

	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	assert.Equal(t, 50, rl.requests[clientIP].count)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func setupRedisLimiter(t *testing.T, rate int, window time.Duration) (*RedisRateLimiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimiter(client, rate, window), mr
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	setupTest(t)

	rl, mr := setupRedisLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := rl.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.Equal(t, time.Minute, mr.TTL("goodproducts:ratelimit:10.0.0.1"))

	mr.FastForward(time.Minute)
	allowed, err = rl.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_RearmsKeyWithoutExpiry(t *testing.T) {
	setupTest(t)

	rl, mr := setupRedisLimiter(t, 2, time.Minute)
	ctx := context.Background()
	key := "goodproducts:ratelimit:10.0.0.1"

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	// the counter loses its TTL, as if the expiry had never been set
	require.NoError(t, rl.client.Persist(ctx, key).Err())
	require.Zero(t, mr.TTL(key))

	allowed, err := rl.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(time.Minute)

	allowed, err = rl.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_KeepsExistingExpiry(t *testing.T) {
	setupTest(t)

	rl, mr := setupRedisLimiter(t, 5, time.Minute)
	ctx := context.Background()
	key := "goodproducts:ratelimit:10.0.0.1"

	_, err := rl.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)

	mr.FastForward(40 * time.Second)

	_, err = rl.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, mr.TTL(key))
}

func TestRedisRateLimiter_Middleware(t *testing.T) {
	setupTest(t)

	rl, _ := setupRedisLimiter(t, 1, time.Minute)
	router := newLimitedRouter(rl)

	assert.Equal(t, http.StatusSeeOther, doRequest(router, http.MethodPost, "/submit").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodPost, "/submit").Code)
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	setupTest(t)

	rl, mr := setupRedisLimiter(t, 1, time.Minute)
	mr.SetError("connection lost")
	router := newLimitedRouter(rl)

	_, err := rl.Allow(context.Background(), "10.0.0.1")
	assert.Error(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusSeeOther, doRequest(router, http.MethodPost, "/submit").Code)
	}
}
