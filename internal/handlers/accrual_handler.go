package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ruralpay/microbank/internal/services"
	"github.com/sirupsen/logrus"
)

type SavingsAccrualRunner interface {
	RunSavingsInterestAccrual(ctx context.Context, period services.Period) (*services.AccrualSummary, error)
	RetryFailedSavingsAccruals(ctx context.Context) (*services.AccrualSummary, error)
}

type FdAccrualRunner interface {
	RunFdInterestAccrual(ctx context.Context, asOf time.Time, scopeBranchID *int64) (*services.AccrualSummary, error)
	CloseMaturedFixedDeposits(ctx context.Context, asOf time.Time) (*services.MaturitySweepSummary, error)
}

// AccrualHandler exposes the batch jobs for operators. Per-item failures are
// reported inside a 200 response.
type AccrualHandler struct {
	savings   SavingsAccrualRunner
	fd        FdAccrualRunner
	validator *ValidationHelper
	now       func() time.Time
}

func NewAccrualHandler(savings SavingsAccrualRunner, fd FdAccrualRunner) *AccrualHandler {
	return &AccrualHandler{
		savings:   savings,
		fd:        fd,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

type savingsAccrualRequest struct {
	Period string `json:"period,omitempty" validate:"omitempty,datetime=2006-01"`
}

type fdAccrualRequest struct {
	AsOf string `json:"asOf,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// RunSavingsAccrual accrues a month of savings interest. Defaults to the
// previous calendar month.
// POST /accruals/savings
func (h *AccrualHandler) RunSavingsAccrual(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	if caller.Role != services.RoleAdmin {
		sendServiceError(w, r, services.ErrForbidden)
		return
	}

	var req savingsAccrualRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}

	period := services.PreviousMonth(h.now())
	if req.Period != "" {
		var err error
		if period, err = services.ParsePeriod(req.Period); err != nil {
			SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
	}
	if err := period.EnsureClosed(h.now()); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	summary, err := h.savings.RunSavingsInterestAccrual(r.Context(), period)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"module":    "accruals",
		"run_id":    summary.RunID,
		"user_id":   caller.UserID,
		"processed": summary.Processed,
		"errors":    summary.Failed,
	}).Info("savings accrual requested")
	sendJSON(w, http.StatusOK, summary)
}

// RetrySavingsAccrual re-runs windows recorded as failed.
// POST /accruals/savings/retry
func (h *AccrualHandler) RetrySavingsAccrual(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	if caller.Role != services.RoleAdmin {
		sendServiceError(w, r, services.ErrForbidden)
		return
	}

	summary, err := h.savings.RetryFailedSavingsAccruals(r.Context())
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, summary)
}

// RunFdAccrual accrues due FD interest, limited to the manager's branch.
// POST /accruals/fixed-deposits
func (h *AccrualHandler) RunFdAccrual(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	scope, err := services.AccrualScopeFor(caller.Role, caller.BranchID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	var req fdAccrualRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}

	asOf := h.now()
	if req.AsOf != "" {
		asOf, _ = time.ParseInLocation("2006-01-02", req.AsOf, time.UTC)
	}

	summary, err := h.fd.RunFdInterestAccrual(r.Context(), asOf, scope)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, summary)
}

// CloseMatured sweeps every matured FD.
// POST /accruals/fixed-deposits/maturity
func (h *AccrualHandler) CloseMatured(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	if caller.Role != services.RoleAdmin {
		sendServiceError(w, r, services.ErrForbidden)
		return
	}

	summary, err := h.fd.CloseMaturedFixedDeposits(r.Context(), h.now())
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, summary)
}
