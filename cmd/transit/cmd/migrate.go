package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/templui/transit/internal/db"
)

func MigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply, roll back or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			database, err := db.Init(opts.cfg.DBDriver, opts.cfg.DBConnection)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer func() {
				closeErr := db.Close(database)
				if closeErr != nil {
					slog.Error("failed to close database", "error", closeErr)
				}
			}()

			ctx := cmd.Context()
			switch direction {
			case "down":
				return db.MigrateDown(ctx, database.DB, opts.cfg.DBDriver)
			case "status":
				version, err := db.Version(ctx, database.DB, opts.cfg.DBDriver)
				if err != nil {
					return fmt.Errorf("failed to read schema version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
				return nil
			}
			return db.RunMigrations(ctx, database.DB, opts.cfg.DBDriver)
		},
	}
}
