package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/microbank/internal/models"
	"github.com/ruralpay/microbank/internal/services"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type AccountResolver interface {
	Resolve(ctx context.Context, accountNumber string) (int64, error)
}

type Poster interface {
	Post(ctx context.Context, req services.PostRequest) (*services.PostResult, error)
}

type TransactionHandler struct {
	resolver  AccountResolver
	poster    Poster
	validator *ValidationHelper
}

func NewTransactionHandler(resolver AccountResolver, poster Poster) *TransactionHandler {
	return &TransactionHandler{
		resolver:  resolver,
		poster:    poster,
		validator: NewValidationHelper(),
	}
}

type createTransactionRequest struct {
	Type        models.TransactionType `json:"type" validate:"required,oneof=deposit withdrawal"`
	Amount      decimal.Decimal        `json:"amount" validate:"required"`
	Description string                 `json:"description,omitempty" validate:"max=255"`
}

// CreateTransaction posts a teller deposit or withdrawal.
// POST /accounts/{accountNumber}/transactions
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var req createTransactionRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}

	accountID, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "accountNumber"))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	result, err := h.poster.Post(r.Context(), services.PostRequest{
		AccountID:   accountID,
		Amount:      req.Amount,
		Type:        req.Type,
		Source:      models.SourceSavings,
		Description: req.Description,
		PerformedBy: &caller.UserID,
	})
	if err != nil {
		entry := logrus.WithFields(logrus.Fields{
			"module":     "transactions",
			"account_id": accountID,
			"type":       req.Type,
			"user_id":    caller.UserID,
		}).WithError(err)
		if services.IsClientError(err) {
			entry.Info("posting rejected")
		} else {
			entry.Error("posting failed")
		}
		sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusCreated, result)
}
