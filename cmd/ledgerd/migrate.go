package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Spok95/student-debt-ledger/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()
		if err := db.Migrate(cmd.Context(), rt.db); err != nil {
			return err
		}
		v, err := db.Version(cmd.Context(), rt.db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
		return nil
	},
}
