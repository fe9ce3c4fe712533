package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccrualKind string

const (
	AccrualSavings      AccrualKind = "savings"
	AccrualFixedDeposit AccrualKind = "fixed_deposit"
)

// InterestAccrualRun is the persisted summary of one batch run.
type InterestAccrualRun struct {
	ID          string      `json:"id" db:"id"`
	Kind        AccrualKind `json:"kind" db:"kind"`
	WindowStart time.Time   `json:"window_start" db:"window_start"`
	WindowEnd   time.Time   `json:"window_end" db:"window_end"`
	Processed   int         `json:"processed" db:"processed"`
	Skipped     int         `json:"skipped" db:"skipped"`
	Failed      int         `json:"failed" db:"failed"`
	StartedAt   time.Time   `json:"started_at" db:"started_at"`
	FinishedAt  time.Time   `json:"finished_at" db:"finished_at"`
}

// InterestAccrualFailure records an item a batch could not post, so the
// window can be re-targeted later.
type InterestAccrualFailure struct {
	ID                    int64       `json:"id" db:"id"`
	RunID                 string      `json:"run_id" db:"run_id"`
	Kind                  AccrualKind `json:"kind" db:"kind"`
	SavingsAccountID      *int64      `json:"savings_account_id,omitempty" db:"savings_account_id"`
	FixedDepositAccountID *int64      `json:"fixed_deposit_account_id,omitempty" db:"fixed_deposit_account_id"`
	WindowStart           time.Time   `json:"window_start" db:"window_start"`
	WindowEnd             time.Time   `json:"window_end" db:"window_end"`
	Error                 string      `json:"error" db:"error"`
	CreatedAt             time.Time   `json:"created_at" db:"created_at"`
	ResolvedAt            *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
}

// InterestBucket is one row of the interest distribution report.
type InterestBucket struct {
	Bucket string            `json:"bucket"`
	Source TransactionSource `json:"source"`
	Total  decimal.Decimal   `json:"total"`
	Count  int64             `json:"count"`
}
