package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ruralpay/microbank/internal/config"
)

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// newRootCommand builds the microbank CLI. Configuration and logging are set
// up before any subcommand runs; each subcommand opens only the connections
// it needs.
func newRootCommand() *cobra.Command {
	var configFile string
	app := &application{}

	rootCmd := &cobra.Command{
		Use:           "microbank",
		Short:         "Microbank ledger core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(configFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			config.InitLogger(cfg.Log)
			app.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", ".env", "configuration file")

	rootCmd.AddCommand(serveCommand(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(accrueCommands(app))
	rootCmd.AddCommand(scheduleCommand(app))

	return rootCmd
}

func main() {
	defer recoverPanic()

	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
