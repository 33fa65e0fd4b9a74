package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/starboard-tutoring/pointsledger/config"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/persistence/postgres"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/persistence/sqlite"
)

func newMigrateCmd(c *cli) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply pending schema migrations to the configured database.

PostgreSQL migrations are versioned and recorded in schema_migrations.
SQLite applies its idempotent schema on open. The memory driver has no schema.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			db := c.cfg.Database

			switch db.Driver {
			case config.DriverPostgres:
				conn, err := postgres.NewConnection(ctx, postgres.DefaultConfig(db.URL))
				if err != nil {
					return err
				}
				defer conn.Close()

				migrator := postgres.NewMigrator(conn)
				if status {
					migrations, err := migrator.Status(ctx)
					if err != nil {
						return err
					}
					for _, m := range migrations {
						state := "pending"
						if m.IsApplied {
							state = "applied " + m.AppliedAt.Format("2006-01-02 15:04")
						}
						fmt.Fprintf(out, "%3d  %-32s %s\n", m.Version, m.Name, state)
					}
					return nil
				}

				applied, err := migrator.Migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "applied %d migration(s)\n", applied)

			case config.DriverSQLite:
				sdb, err := sqlite.Open(ctx, db.SQLitePath)
				if err != nil {
					return err
				}
				defer sdb.Close()
				fmt.Fprintf(out, "sqlite schema at %s is up to date\n", sdb.Path())

			default:
				fmt.Fprintf(out, "driver %q has no schema to migrate\n", db.Driver)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "List migrations and whether they are applied (postgres only)")
	return cmd
}
