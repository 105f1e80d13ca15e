package admin

import (
	"fmt"

	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/cloo-solutions/docchat/internal/database"
	"github.com/spf13/cobra"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply all pending migrations, or roll back the last one with --down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			source, _ := cmd.Flags().GetString("source")
			down, _ := cmd.Flags().GetBool("down")
			if down {
				return database.Rollback(cfg.DatabaseURL, source)
			}
			return database.Migrate(cfg.DatabaseURL, source)
		},
	}

	cmd.Flags().String("source", database.DefaultMigrationsSource, "Migration source URL")
	cmd.Flags().Bool("down", false, "Roll back the most recent migration")

	return cmd
}
