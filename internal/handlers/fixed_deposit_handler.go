package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/microbank/internal/models"
	"github.com/ruralpay/microbank/internal/services"
	"github.com/shopspring/decimal"
)

type FixedDepositManager interface {
	OpenFixedDeposit(ctx context.Context, req services.OpenFixedDepositRequest) (*models.FixedDepositAccount, error)
	GetFixedDeposit(ctx context.Context, fdID int64) (*models.FixedDepositAccount, error)
}

type FixedDepositHandler struct {
	resolver  AccountResolver
	service   FixedDepositManager
	validator *ValidationHelper
}

func NewFixedDepositHandler(resolver AccountResolver, service FixedDepositManager) *FixedDepositHandler {
	return &FixedDepositHandler{
		resolver:  resolver,
		service:   service,
		validator: NewValidationHelper(),
	}
}

type openFixedDepositRequest struct {
	SavingsAccountNumber string          `json:"savingsAccountNumber" validate:"required"`
	PlanID               int64           `json:"planId" validate:"required,gt=0"`
	Amount               decimal.Decimal `json:"amount" validate:"required"`
}

// OpenFixedDeposit funds a new FD from the caller-named savings account.
// POST /fixed-deposits
func (h *FixedDepositHandler) OpenFixedDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var req openFixedDepositRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}

	savingsID, err := h.resolver.Resolve(r.Context(), req.SavingsAccountNumber)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	fd, err := h.service.OpenFixedDeposit(r.Context(), services.OpenFixedDepositRequest{
		SavingsAccountID: savingsID,
		PlanID:           req.PlanID,
		Amount:           req.Amount,
		CreatedBy:        &caller.UserID,
	})
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusCreated, fd)
}

// GetFixedDeposit returns the FD, closing it first when it has matured.
// GET /fixed-deposits/{fdId}
func (h *FixedDepositHandler) GetFixedDeposit(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}

	fdID, err := strconv.ParseInt(chi.URLParam(r, "fdId"), 10, 64)
	if err != nil || fdID <= 0 {
		SendErrorResponse(w, "Invalid fixed deposit id", http.StatusBadRequest, nil)
		return
	}

	fd, err := h.service.GetFixedDeposit(r.Context(), fdID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, fd)
}
