package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ruralpay/microbank/internal/middleware"
)

// Router bundles the HTTP surface of the ledger.
type Router struct {
	Auth          *middleware.Authenticator
	Transactions  *TransactionHandler
	FixedDeposits *FixedDepositHandler
	Accruals      *AccrualHandler
	Reports       *ReportHandler
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.Auth.Middleware)

		r.Post("/accounts/{accountNumber}/transactions", rt.Transactions.CreateTransaction)

		r.Post("/fixed-deposits", rt.FixedDeposits.OpenFixedDeposit)
		r.Get("/fixed-deposits/{fdId}", rt.FixedDeposits.GetFixedDeposit)

		r.Post("/accruals/savings", rt.Accruals.RunSavingsAccrual)
		r.Post("/accruals/savings/retry", rt.Accruals.RetrySavingsAccrual)
		r.Post("/accruals/fixed-deposits", rt.Accruals.RunFdAccrual)
		r.Post("/accruals/fixed-deposits/maturity", rt.Accruals.CloseMatured)

		r.Get("/reports/interest", rt.Reports.InterestDistribution)
	})

	return r
}
