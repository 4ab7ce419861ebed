package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/labdesk-api/app"
	"go.uber.org/zap"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the identity schema",
		Long:  `Creates the identities table and its indexes in the store selected by DB_DRIVER. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := app.OpenStore(c.cfg, c.logger)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			c.logger.Info("schema is up to date", zap.String("driver", c.cfg.Database.Driver))
			return nil
		},
	}
}
