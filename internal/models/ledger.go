package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
)

// SavingsAccount is the demand-deposit account whose balance is mutated only
// through the transaction poster.
type SavingsAccount struct {
	ID        int64           `json:"id" db:"id"`
	BranchID  int64           `json:"branch_id" db:"branch_id"`
	PlanID    int64           `json:"plan_id" db:"plan_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Status    AccountStatus   `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

type SavingsAccountPlan struct {
	ID                 int64           `json:"id" db:"id"`
	Name               string          `json:"name" db:"name"`
	InterestRate       decimal.Decimal `json:"interest_rate" db:"interest_rate"` // annual, percent
	MinBalanceRequired decimal.Decimal `json:"min_balance_required" db:"min_balance_required"`
}

type FixedDepositAccountPlan struct {
	ID                    int64           `json:"id" db:"id"`
	Name                  string          `json:"name" db:"name"`
	InterestRate          decimal.Decimal `json:"interest_rate" db:"interest_rate"` // annual, percent
	DurationMonths        int             `json:"duration_months" db:"duration_months"`
	MinimumAmountRequired decimal.Decimal `json:"minimum_amount_required" db:"minimum_amount_required"`
}
