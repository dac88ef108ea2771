// Package cmd implements the goodproducts command-line interface.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/config"
	"github.com/fonsecaaso/goodproducts/go-server/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "goodproducts",
	Short:         "GoodProducts landing page and submission service",
	Long:          `Serves the GoodProducts landing page, records product submissions in the remote store, and manages its schema.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newLatestCommand())
	rootCmd.AddCommand(newVersionCommand())
}

// Execute runs the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// bootstrap loads the configuration and installs the global logger.
// The returned func flushes the logger.
func bootstrap() (*config.Config, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}

	log, shutdown := logger.New(logger.Options{
		ServiceName:       cfg.ServiceName,
		Environment:       cfg.Environment,
		LokiURL:           cfg.LokiURL,
		TraceLokiRequests: cfg.LokiTraceRequests,
	})
	zap.ReplaceGlobals(log)

	return cfg, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}, nil
}
