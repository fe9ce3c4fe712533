package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ruralpay/microbank/internal/database"
)

func migrateCommands(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply or roll back schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use: "up",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.openDB(cmd.Context()); err != nil {
				return err
			}
			defer app.close()

			n, err := database.MigrateUp(app.db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migrations!\n", n)
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use: "down",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.openDB(cmd.Context()); err != nil {
				return err
			}
			defer app.close()

			n, err := database.MigrateDown(app.db, steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migrations!\n", n)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back, 0 for all")
	cmd.AddCommand(down)

	return cmd
}
