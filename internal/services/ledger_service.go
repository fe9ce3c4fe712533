package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ruralpay/microbank/internal/audit"
	"github.com/ruralpay/microbank/internal/models"
	"github.com/shopspring/decimal"
)

// PostRequest describes one balance mutation of a savings account.
type PostRequest struct {
	AccountID   int64
	Amount      decimal.Decimal
	Type        models.TransactionType
	Source      models.TransactionSource
	Description string
	PerformedBy *int64
	// EffectiveAt stamps transaction_time; defaults to now.
	EffectiveAt *time.Time
	// AccrualWindowStart is set on savings interest postings only.
	AccrualWindowStart *time.Time
}

type PostResult struct {
	TransactionID   int64           `json:"transactionId"`
	TransactionTime time.Time       `json:"transactionTime"`
	NewBalance      decimal.Decimal `json:"newBalance"`
}

// ValidateAmount rejects non-positive amounts and amounts finer than cents.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return nil
}

func (r *PostRequest) validate() error {
	if err := ValidateAmount(r.Amount); err != nil {
		return err
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, r.Type)
	}
	if r.Source == "" {
		r.Source = models.SourceSavings
	}
	if r.Description == "" {
		r.Description = defaultDescription(r.Type)
	}
	return nil
}

func defaultDescription(t models.TransactionType) string {
	switch t {
	case models.TransactionDeposit:
		return "Deposit"
	case models.TransactionWithdrawal:
		return "Withdrawal"
	case models.TransactionInterest:
		return "Interest"
	}
	return "Transfer"
}

// TransactionPoster is the only writer of savings_account.balance. Every
// balance change is paired with exactly one transaction row in the same
// store transaction.
type TransactionPoster struct {
	db    *sql.DB
	audit *audit.Logger
	now   func() time.Time
}

func NewTransactionPoster(db *sql.DB, auditLogger *audit.Logger) *TransactionPoster {
	if auditLogger == nil {
		auditLogger = audit.NewLogger(nil)
	}
	return &TransactionPoster{
		db:    db,
		audit: auditLogger,
		now:   time.Now,
	}
}

// Post runs a single posting in its own store transaction.
func (p *TransactionPoster) Post(ctx context.Context, req PostRequest) (*PostResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbError("begin posting", err)
	}
	defer tx.Rollback()

	result, err := p.PostTx(ctx, tx, req)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			p.audit.LogRejected(req.AccountID, string(req.Type), req.Amount, err)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, dbError("commit posting", err)
	}

	p.Committed(req, result)
	return result, nil
}

// PostTx applies the posting inside a caller-owned transaction. The caller
// must commit and then call Committed.
func (p *TransactionPoster) PostTx(ctx context.Context, tx *sql.Tx, req PostRequest) (*PostResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	account, err := p.LockAccount(ctx, tx, req.AccountID)
	if err != nil {
		return nil, err
	}

	if req.Type == models.TransactionWithdrawal && account.Balance.LessThan(req.Amount) {
		return nil, ErrInsufficientFunds
	}
	newBalance := account.Balance.Add(req.Type.Signed(req.Amount))

	if err := p.updateAccountBalance(ctx, tx, account.ID, newBalance); err != nil {
		return nil, err
	}

	at := p.now()
	if req.EffectiveAt != nil {
		at = *req.EffectiveAt
	}

	result := &PostResult{NewBalance: newBalance}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO "transaction" (savings_account_id, transaction_type, source, amount, description,
			performed_by_user_id, transaction_time, accrual_window_start, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active')
		RETURNING id, transaction_time`,
		account.ID, string(req.Type), string(req.Source), req.Amount, req.Description,
		nullInt64(req.PerformedBy), at, nullTime(req.AccrualWindowStart),
	).Scan(&result.TransactionID, &result.TransactionTime)
	if err != nil {
		return nil, dbError("insert transaction", err)
	}

	return result, nil
}

// Committed records the audit trail of a posting whose transaction committed.
func (p *TransactionPoster) Committed(req PostRequest, result *PostResult) {
	p.audit.LogPosting(result.TransactionID, req.AccountID, string(req.Type), string(req.Source), req.Amount, result.NewBalance)
}

// LockAccount takes the row lock that linearizes all mutations of one account.
func (p *TransactionPoster) LockAccount(ctx context.Context, tx *sql.Tx, accountID int64) (*models.SavingsAccount, error) {
	var account models.SavingsAccount
	err := tx.QueryRowContext(ctx, `
		SELECT id, branch_id, plan_id, balance, status, created_at
		FROM savings_account
		WHERE id = $1
		FOR UPDATE`, accountID).Scan(&account.ID, &account.BranchID, &account.PlanID, &account.Balance, &account.Status, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, dbError("lock account", err)
	}
	return &account, nil
}

func (p *TransactionPoster) updateAccountBalance(ctx context.Context, tx *sql.Tx, accountID int64, newBalance decimal.Decimal) error {
	result, err := tx.ExecContext(ctx, `UPDATE savings_account SET balance = $1 WHERE id = $2`, newBalance, accountID)
	if err != nil {
		return dbError("update balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return dbError("update balance", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
