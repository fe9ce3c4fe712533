package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ruralpay/microbank/internal/services"
)

func accrueCommands(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accrue",
		Short: "run an interest accrual batch once",
	}
	cmd.AddCommand(accrueSavingsCommand(app))
	cmd.AddCommand(accrueFdCommand(app))
	cmd.AddCommand(accrueRetryCommand(app))
	cmd.AddCommand(closeMaturedCommand(app))
	return cmd
}

func accrueSavingsCommand(app *application) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "savings",
		Short: "accrue savings interest for a month (default: previous month)",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			window := services.PreviousMonth(now)
			if period != "" {
				var err error
				if window, err = services.ParsePeriod(period); err != nil {
					return err
				}
			}
			if err := window.EnsureClosed(now); err != nil {
				return err
			}

			if err := app.wire(cmd.Context()); err != nil {
				return err
			}
			defer app.close()

			summary, err := app.savings.RunSavingsInterestAccrual(cmd.Context(), window)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "month to accrue, YYYY-MM")
	return cmd
}

func accrueFdCommand(app *application) *cobra.Command {
	var (
		asOf   string
		branch int64
	)

	cmd := &cobra.Command{
		Use:   "fd",
		Short: "accrue interest on fixed deposits that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if asOf != "" {
				var err error
				if day, err = time.ParseInLocation("2006-01-02", asOf, time.UTC); err != nil {
					return fmt.Errorf("invalid --as-of %q, expected YYYY-MM-DD", asOf)
				}
			}
			var scope *int64
			if branch > 0 {
				scope = &branch
			}

			if err := app.wire(cmd.Context()); err != nil {
				return err
			}
			defer app.close()

			summary, err := app.fd.RunFdInterestAccrual(cmd.Context(), day, scope)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "accrual date, YYYY-MM-DD (default today)")
	cmd.Flags().Int64Var(&branch, "branch", 0, "limit the run to one branch")
	return cmd
}

func accrueRetryCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "re-run savings accrual windows recorded as failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.wire(cmd.Context()); err != nil {
				return err
			}
			defer app.close()

			summary, err := app.savings.RetryFailedSavingsAccruals(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
}

func closeMaturedCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "close-matured",
		Short: "close matured fixed deposits and transfer their principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.wire(cmd.Context()); err != nil {
				return err
			}
			defer app.close()

			summary, err := app.fd.CloseMaturedFixedDeposits(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
