package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var rollbackLast bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the users, books and borrows migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		if rollbackLast {
			return rt.rollback(ctx)
		}

		return rt.migrate(ctx)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&rollbackLast, "rollback", false, "Revert the last applied migration group")
	rootCmd.AddCommand(migrateCmd)
}
