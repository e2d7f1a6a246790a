package main

import (
	"github.com/spf13/cobra"

	"github.com/tendant/video-intake/pkg/intake/config"
	"github.com/tendant/video-intake/pkg/intake/ledger/postgres"
)

func newMigrateCmd(a *app) *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres ledger schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WithDatabaseURL(databaseURL)(a.cfg); err != nil {
				return err
			}
			if err := a.cfg.ValidateMigrate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := config.NewDbPool(ctx, a.cfg.Ledger.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.MigratePool(ctx, pool); err != nil {
				return err
			}
			a.logger.Info("ledger schema is up to date")
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (overrides DATABASE_URL)")
	return cmd
}
