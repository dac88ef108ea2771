package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/internal/metrics"
	"github.com/fonsecaaso/goodproducts/go-server/internal/observability"
	route "github.com/fonsecaaso/goodproducts/go-server/internal/routes"
	"github.com/fonsecaaso/goodproducts/go-server/internal/service"
	"github.com/fonsecaaso/goodproducts/go-server/internal/token"
	"github.com/fonsecaaso/goodproducts/go-server/internal/workflow"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, flush, err := bootstrap()
	if err != nil {
		return err
	}
	defer flush()
	logger := zap.L()

	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.Setup(ctx, observability.Options{
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}

	repo, closeStore, err := newProductRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store failed to initialize: %w", err)
	}
	defer closeStore()

	limiter, closeLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("rate limiter failed to initialize: %w", err)
	}
	defer closeLimiter()

	products := service.NewProductService(repo)
	sessions := workflow.NewManager(products, workflow.RealClock(), cfg.SessionIdleTimeout)
	sessions.StartSweeper(ctx, sweepInterval(cfg.SessionIdleTimeout))
	defer sessions.Close()

	stopMetrics := make(chan struct{})
	metrics.StartSystemMetricsCollection(stopMetrics)
	defer close(stopMetrics)

	router, err := route.SetupRouter(route.Dependencies{
		Config:   cfg,
		Sessions: sessions,
		Signer:   token.NewSigner(cfg.SessionSecret, cfg.SessionIdleTimeout),
		Limiter:  limiter,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("observability shutdown failed", zap.Error(err))
	}

	return nil
}
