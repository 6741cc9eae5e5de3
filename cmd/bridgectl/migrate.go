package main

import (
	"context"
	"fmt"
	"io"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the bridge database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := openDB(cfg.Database, logger.Named("db"))
			if err != nil {
				return err
			}
			defer db.Close()

			return runMigrations(cmd.Context(), cmd.OutOrStdout(), db, rollback)
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "Roll back the last migration group")
	return cmd
}

func runMigrations(ctx context.Context, out io.Writer, db *bun.DB, rollback bool) error {
	var (
		group *migrate.MigrationGroup
		err   error
	)
	if rollback {
		group, err = bridge.Rollback(ctx, db)
	} else {
		group, err = bridge.Migrate(ctx, db)
	}
	if err != nil {
		return err
	}

	if group == nil || group.IsZero() {
		fmt.Fprintln(out, "Nothing to do, the database is up to date.")
		return nil
	}

	verb := "Applied"
	if rollback {
		verb = "Rolled back"
	}
	fmt.Fprintf(out, "%s %s\n", verb, group)
	for _, m := range group.Migrations {
		fmt.Fprintf(out, "  %s\n", m.Name)
	}
	return nil
}
