package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/internal/database"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the products schema on the Postgres store",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{database.MigrateUp, database.MigrateDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, flush, err := bootstrap()
			if err != nil {
				return err
			}
			defer flush()

			if err := cfg.ResolvePostgresURL(); err != nil {
				return err
			}

			if err := database.Migrate(cfg.PostgresURL, args[0]); err != nil {
				return err
			}

			zap.L().Info("migrations applied", zap.String("direction", args[0]))
			return nil
		},
	}
}
