package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/config"
	"github.com/fonsecaaso/goodproducts/go-server/internal/database"
	"github.com/fonsecaaso/goodproducts/go-server/internal/middleware"
	"github.com/fonsecaaso/goodproducts/go-server/internal/repository"
)

// newProductRepository connects the configured store backend
func newProductRepository(ctx context.Context, cfg *config.Config) (repository.ProductRepository, func(), error) {
	if cfg.StoreBackend == config.BackendPostgres {
		pool, err := database.NewPostgresClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		zap.L().Info("postgres connection established")
		return repository.NewPostgresProductRepository(pool, cfg.ProductsTable), pool.Close, nil
	}

	client := database.NewRestClient(cfg)
	zap.L().Info("using REST store", zap.String("url", cfg.StoreURL))
	return repository.NewRestProductRepository(client, cfg.ProductsTable), func() {}, nil
}

// newLimiter shares counters through Redis when REDIS_ADDR is set, otherwise keeps them in memory
func newLimiter(ctx context.Context, cfg *config.Config) (middleware.Limiter, func(), error) {
	if cfg.RedisAddr == "" {
		rl := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
		return rl, rl.Stop, nil
	}

	client, err := database.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("redis connection established")

	return middleware.NewRedisRateLimiter(client, cfg.RateLimitRequests, cfg.RateLimitWindow), func() { _ = client.Close() }, nil
}

// sweepInterval checks for idle sessions a few times per timeout, but not more than once a second
func sweepInterval(idleTimeout time.Duration) time.Duration {
	interval := idleTimeout / 4
	if interval < time.Second {
		return time.Second
	}
	return interval
}
