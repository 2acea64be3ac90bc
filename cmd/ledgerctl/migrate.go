package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agencyledger/internal/storage"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var (
		dbPath   string
		rollback int
		status   bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect SQLite schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = opts.cfg.SQLiteDBPath
			}
			out := cmd.OutOrStdout()

			if !status {
				var err error
				if rollback > 0 {
					err = storage.RollbackMigrations(dbPath, rollback)
				} else {
					err = storage.RunMigrations(dbPath)
				}
				if err != nil {
					return err
				}
			}

			version, dirty, err := storage.SchemaVersion(dbPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: schema version %d", dbPath, version)
			if dirty {
				fmt.Fprint(out, " (dirty)")
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default SQLITE_DB_PATH)")
	cmd.Flags().IntVar(&rollback, "rollback", 0, "revert this many migrations instead of applying")
	cmd.Flags().BoolVar(&status, "status", false, "only print the current schema version")
	cmd.MarkFlagsMutuallyExclusive("rollback", "status")
	return cmd
}
