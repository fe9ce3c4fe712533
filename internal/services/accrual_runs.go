package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/microbank/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type AccrualStatus string

const (
	AccrualPosted  AccrualStatus = "posted"
	AccrualSkipped AccrualStatus = "skipped"
	AccrualFailed  AccrualStatus = "failed"
)

// AccrualResult is the outcome for one account or fixed deposit in a batch.
type AccrualResult struct {
	SavingsAccountID      int64           `json:"savingsAccountId"`
	FixedDepositAccountID int64           `json:"fixedDepositAccountId,omitempty"`
	Status                AccrualStatus   `json:"status"`
	Interest              decimal.Decimal `json:"interest"`
	TransactionID         int64           `json:"transactionId,omitempty"`
	NextInterestDate      *time.Time      `json:"nextInterestDate,omitempty"`
	Reason                string          `json:"reason,omitempty"`
	Error                 string          `json:"error,omitempty"`
}

type AccrualSummary struct {
	RunID     string             `json:"runId"`
	Kind      models.AccrualKind `json:"kind"`
	Window    Period             `json:"window"`
	Processed int                `json:"processed"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"errors"`
	Results   []AccrualResult    `json:"results"`
	StartedAt time.Time          `json:"startedAt"`
}

func newAccrualSummary(kind models.AccrualKind, window Period, now time.Time) *AccrualSummary {
	return &AccrualSummary{
		RunID:     uuid.NewString(),
		Kind:      kind,
		Window:    window,
		Results:   []AccrualResult{},
		StartedAt: now,
	}
}

func (s *AccrualSummary) add(r AccrualResult) {
	switch r.Status {
	case AccrualPosted:
		s.Processed++
	case AccrualSkipped:
		s.Skipped++
	case AccrualFailed:
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

// interruptedResult marks an item the batch never reached before its context
// ended, so the failure ledger picks it up for a retry.
func interruptedResult(savingsID, fdID int64, cause error) AccrualResult {
	return AccrualResult{
		SavingsAccountID:      savingsID,
		FixedDepositAccountID: fdID,
		Status:                AccrualFailed,
		Reason:                "interrupted",
		Error:                 fmt.Sprintf("interrupted: %v", cause),
	}
}

// recordRun persists the run summary and its failures. Recording is best
// effort: the postings are already committed. It outlives a cancelled ctx.
func recordRun(ctx context.Context, db *sql.DB, summary *AccrualSummary, finishedAt time.Time) {
	ctx = context.WithoutCancel(ctx)
	log := logrus.WithFields(logrus.Fields{"module": "accrual", "run_id": summary.RunID, "kind": summary.Kind})

	_, err := db.ExecContext(ctx, `
		INSERT INTO interest_accrual_run (id, kind, window_start, window_end, processed, skipped, failed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		summary.RunID, string(summary.Kind), summary.Window.Start, summary.Window.End,
		summary.Processed, summary.Skipped, summary.Failed, summary.StartedAt, finishedAt)
	if err != nil {
		log.WithError(err).Error("failed to record accrual run")
		return
	}

	for _, r := range summary.Results {
		if r.Status != AccrualFailed {
			continue
		}
		var fdID sql.NullInt64
		if r.FixedDepositAccountID != 0 {
			fdID = sql.NullInt64{Int64: r.FixedDepositAccountID, Valid: true}
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO interest_accrual_failure (run_id, kind, savings_account_id, fixed_deposit_account_id, window_start, window_end, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			summary.RunID, string(summary.Kind), r.SavingsAccountID, fdID, summary.Window.Start, summary.Window.End, r.Error)
		if err != nil {
			log.WithError(err).WithField("savings_account_id", r.SavingsAccountID).Error("failed to record accrual failure")
		}
	}
}

func resolveFailure(ctx context.Context, db *sql.DB, failureID int64, at time.Time) error {
	ctx = context.WithoutCancel(ctx)
	_, err := db.ExecContext(ctx, `UPDATE interest_accrual_failure SET resolved_at = $1 WHERE id = $2`, at, failureID)
	return dbError("resolve accrual failure", err)
}
