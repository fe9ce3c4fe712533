package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type FixedDepositAccount struct {
	ID               int64           `json:"id" db:"id"`
	SavingsAccountID int64           `json:"savings_account_id" db:"savings_account_id"`
	PlanID           int64           `json:"plan_id" db:"plan_id"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	StartDate        time.Time       `json:"start_date" db:"start_date"`
	NextInterestDate *time.Time      `json:"next_interest_date" db:"next_interest_date"` // nil once past closing_date
	ClosingDate      time.Time       `json:"closing_date" db:"closing_date"`
	Status           AccountStatus   `json:"status" db:"status"`
	CreatedByUserID  *int64          `json:"created_by_user_id,omitempty" db:"created_by_user_id"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Matured reports whether the deposit has reached its closing date on the
// given day and still awaits closure.
func (fd *FixedDepositAccount) Matured(today time.Time) bool {
	return fd.Status == StatusActive && !fd.ClosingDate.After(today)
}
