package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionInterest   TransactionType = "interest"
	TransactionTransfer   TransactionType = "transfer"
)

// Credit reports whether the type adds to the savings balance.
func (t TransactionType) Credit() bool {
	return t != TransactionWithdrawal
}

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionWithdrawal, TransactionInterest, TransactionTransfer:
		return true
	}
	return false
}

// Signed returns amount with the sign implied by the transaction type.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t.Credit() {
		return amount
	}
	return amount.Neg()
}

// TransactionSource tells savings-originated postings apart from those made
// by the fixed deposit lifecycle.
type TransactionSource string

const (
	SourceSavings      TransactionSource = "savings"
	SourceFixedDeposit TransactionSource = "fixed_deposit"
)

// Transaction is an append-only ledger row. Amount is always positive.
type Transaction struct {
	ID                    int64             `json:"id" db:"id"`
	SavingsAccountID      *int64            `json:"savings_account_id,omitempty" db:"savings_account_id"`
	FixedDepositAccountID *int64            `json:"fixed_deposit_account_id,omitempty" db:"fixed_deposit_account_id"`
	Type                  TransactionType   `json:"transaction_type" db:"transaction_type"`
	Source                TransactionSource `json:"source" db:"source"`
	Amount                decimal.Decimal   `json:"amount" db:"amount"`
	Description           string            `json:"description" db:"description"`
	PerformedByUserID     *int64            `json:"performed_by_user_id,omitempty" db:"performed_by_user_id"`
	TransactionTime       time.Time         `json:"transaction_time" db:"transaction_time"`
	AccrualWindowStart    *time.Time        `json:"accrual_window_start,omitempty" db:"accrual_window_start"`
	Status                AccountStatus     `json:"status" db:"status"`
}
