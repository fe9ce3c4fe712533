package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ruralpay/microbank/internal/handlers"
	"github.com/ruralpay/microbank/internal/middleware"
	"github.com/ruralpay/microbank/internal/scheduler"
)

func serveCommand(app *application) *cobra.Command {
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app.server = true
			if err := app.wire(ctx); err != nil {
				return err
			}
			defer app.close()

			if app.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET_KEY must be set")
			}

			if withScheduler {
				sched := scheduler.New(app.savings, app.fd)
				if err := sched.Register(app.cfg.Schedule); err != nil {
					return err
				}
				sched.Start(ctx)
				defer sched.Stop()
			}

			router := &handlers.Router{
				Auth:          middleware.NewAuthenticator(app.cfg.JWTSecret),
				Transactions:  handlers.NewTransactionHandler(app.resolver, app.poster),
				FixedDeposits: handlers.NewFixedDepositHandler(app.resolver, app.fd),
				Accruals:      handlers.NewAccrualHandler(app.savings, app.fd),
				Reports:       handlers.NewReportHandler(app.reports),
			}

			server := &http.Server{
				Addr:         ":" + app.cfg.Port,
				Handler:      router.Handler(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 90 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logrus.WithField("port", app.cfg.Port).Info("server starting")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logrus.Info("server shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			logrus.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "also run the batch job scheduler in this process")
	return cmd
}

func scheduleCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "run the batch job scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.wire(ctx); err != nil {
				return err
			}
			defer app.close()

			sched := scheduler.New(app.savings, app.fd)
			if err := sched.Register(app.cfg.Schedule); err != nil {
				return err
			}
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}
}
