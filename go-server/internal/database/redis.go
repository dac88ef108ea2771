package database

import (
	"context"
	"fmt"
	"time"

	config "github.com/fonsecaaso/goodproducts/go-server/config"
	"github.com/go-redis/redis/v8"
)

// NewRedisClient connects to the Redis instance backing the shared rate limiter
func NewRedisClient(ctx context.Context, secrets *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         secrets.RedisAddr,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}
