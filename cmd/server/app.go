package main

import (
	"context"
	"database/sql"

	"github.com/go-redis/redis/v8"

	"github.com/ruralpay/microbank/internal/audit"
	"github.com/ruralpay/microbank/internal/config"
	"github.com/ruralpay/microbank/internal/database"
	"github.com/ruralpay/microbank/internal/services"
)

// application carries the configuration and the services built from it.
type application struct {
	cfg *config.Config
	// server selects the API pool; batch commands use the small one.
	server bool
	db     *sql.DB
	redis *redis.Client

	resolver *services.AccountResolver
	poster   *services.TransactionPoster
	savings  *services.SavingsInterestService
	fd       *services.FixedDepositService
	reports  *services.ReportService
}

func (a *application) openDB(ctx context.Context) error {
	pool := a.cfg.Database.Batch
	if a.server {
		pool = a.cfg.Database.Server
	}
	db, err := database.InitDB(ctx, a.cfg.Database, pool)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

// wire connects postgres and redis and builds the ledger services.
func (a *application) wire(ctx context.Context) error {
	if err := a.openDB(ctx); err != nil {
		return err
	}
	a.redis = database.InitRedis(ctx)

	locker := services.NewJobLocker(a.redis, a.cfg.Accrual.LockTTL)
	a.resolver = services.NewAccountResolver(a.db, a.cfg.Accrual.StrictAccountNumbers)
	a.poster = services.NewTransactionPoster(a.db, audit.NewLogger(nil))
	a.savings = services.NewSavingsInterestService(a.db, a.poster, locker)
	a.fd = services.NewFixedDepositService(a.db, a.poster, locker)
	a.reports = services.NewReportService(a.db)
	return nil
}

func (a *application) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
