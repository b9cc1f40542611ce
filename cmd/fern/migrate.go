package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/app"
	"github.com/Ramsey-B/fern/pkg/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var (
		version uint
		force   int
		down    bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, syncLogger, err := app.NewLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer syncLogger()

			db, err := database.Connect(cmd.Context(), cfg.Database.Connection(), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			migration := cfg.Database.Migration()
			if cmd.Flags().Changed("version") {
				migration.Version = version
			}
			if cmd.Flags().Changed("force") {
				migration.Force = force
			}
			migration.Down = down

			return database.NewMigrationService(logger, migration).MigratePostgres(db, cfg.Database.Name)
		},
	}

	cmd.Flags().UintVar(&version, "version", 0, "migrate up or down to this version (overrides database.migration_version)")
	cmd.Flags().IntVar(&force, "force", 0, "mark the schema clean at this version first")
	cmd.Flags().BoolVar(&down, "down", false, "revert every migration")
	return cmd
}
