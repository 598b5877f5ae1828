package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/faceid/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver != "postgres" {
			return fmt.Errorf("migrations only apply to the postgres driver, not %q", cfg.Database.Driver)
		}

		ctx := cmd.Context()
		db, err := storage.NewPostgresStoreFromDSN(ctx, cfg.Database.DSN(), 1)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
