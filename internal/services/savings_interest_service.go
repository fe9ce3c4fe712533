package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ruralpay/microbank/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const savingsInterestDescription = "Interest Credited (Auto)"

var errNothingToAccrue = errors.New("nothing to accrue")

type savingsAccrualTarget struct {
	accountID    int64
	interestRate decimal.Decimal
}

// SavingsInterestService credits monthly average-daily-balance interest to
// savings accounts, at most once per account and window.
type SavingsInterestService struct {
	db     *sql.DB
	poster *TransactionPoster
	locker *JobLocker
	now    func() time.Time
}

func NewSavingsInterestService(db *sql.DB, poster *TransactionPoster, locker *JobLocker) *SavingsInterestService {
	return &SavingsInterestService{
		db:     db,
		poster: poster,
		locker: locker,
		now:    time.Now,
	}
}

// RunSavingsInterestAccrual accrues the given window for every active account
// whose plan pays interest. A failing account is logged and recorded; the
// batch carries on. Only closed windows can be accrued.
func (s *SavingsInterestService) RunSavingsInterestAccrual(ctx context.Context, period Period) (*AccrualSummary, error) {
	if err := period.EnsureClosed(s.now()); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, "accrual:savings:"+period.Key())
	if err != nil {
		return nil, err
	}
	defer release()

	targets, err := s.eligibleAccounts(ctx)
	if err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{"module": "savings_accrual", "window": period.String()})
	summary := newAccrualSummary(models.AccrualSavings, period, s.now())

	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			log.WithError(err).WithField("remaining", len(targets)-i).Warn("savings accrual interrupted")
			for _, rest := range targets[i:] {
				summary.add(interruptedResult(rest.accountID, 0, err))
			}
			break
		}
		summary.add(s.accrueTarget(ctx, target, period))
	}

	recordRun(ctx, s.db, summary, s.now())
	log.WithFields(logrus.Fields{
		"processed": summary.Processed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}).Info("savings interest accrual finished")
	return summary, nil
}

// RetryFailedSavingsAccruals re-targets every unresolved failed window. The
// window guard makes a retry of an already credited window a no-op.
func (s *SavingsInterestService) RetryFailedSavingsAccruals(ctx context.Context) (*AccrualSummary, error) {
	release, err := s.locker.Acquire(ctx, "accrual:savings:retry")
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.savings_account_id, f.window_start, f.window_end, sp.interest_rate
		FROM interest_accrual_failure f
		JOIN savings_account sa ON sa.id = f.savings_account_id
		JOIN savings_account_plan sp ON sp.id = sa.plan_id
		WHERE f.kind = 'savings' AND f.resolved_at IS NULL
		ORDER BY f.id`)
	if err != nil {
		return nil, dbError("list accrual failures", err)
	}

	type pending struct {
		failureID int64
		target    savingsAccrualTarget
		window    Period
	}
	var items []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.failureID, &p.target.accountID, &p.window.Start, &p.window.End, &p.target.interestRate); err != nil {
			rows.Close()
			return nil, dbError("scan accrual failure", err)
		}
		p.window.Start = truncateDay(p.window.Start)
		p.window.End = truncateDay(p.window.End)
		items = append(items, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dbError("list accrual failures", err)
	}

	summary := newAccrualSummary(models.AccrualSavings, Period{}, s.now())
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			break
		}
		result := s.accrueTarget(ctx, item.target, item.window)
		summary.add(result)
		if result.Status == AccrualFailed {
			continue
		}
		if err := resolveFailure(ctx, s.db, item.failureID, s.now()); err != nil {
			logrus.WithError(err).WithField("failure_id", item.failureID).Error("failed to mark accrual failure resolved")
		}
	}
	return summary, nil
}

func (s *SavingsInterestService) eligibleAccounts(ctx context.Context) ([]savingsAccrualTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sa.id, sp.interest_rate
		FROM savings_account sa
		JOIN savings_account_plan sp ON sp.id = sa.plan_id
		WHERE sa.status = 'active' AND sp.interest_rate > 0
		ORDER BY sa.id`)
	if err != nil {
		return nil, dbError("list accrual accounts", err)
	}
	defer rows.Close()

	var targets []savingsAccrualTarget
	for rows.Next() {
		var t savingsAccrualTarget
		if err := rows.Scan(&t.accountID, &t.interestRate); err != nil {
			return nil, dbError("scan accrual account", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list accrual accounts", err)
	}
	return targets, nil
}

func (s *SavingsInterestService) accrueTarget(ctx context.Context, target savingsAccrualTarget, period Period) AccrualResult {
	result := AccrualResult{SavingsAccountID: target.accountID}

	posted, err := s.accrueAccount(ctx, target, period)
	switch {
	case err == nil:
		result.Status = AccrualPosted
		result.Interest = posted.amount
		result.TransactionID = posted.transactionID
	case errors.Is(err, ErrAlreadyAccrued):
		result.Status = AccrualSkipped
		result.Reason = ErrAlreadyAccrued.Error()
	case errors.Is(err, errNothingToAccrue):
		result.Status = AccrualSkipped
		result.Reason = err.Error()
	default:
		result.Status = AccrualFailed
		result.Error = err.Error()
		logrus.WithFields(logrus.Fields{
			"module":             "savings_accrual",
			"savings_account_id": target.accountID,
			"window":             period.String(),
		}).WithError(err).Error("savings interest accrual failed")
	}
	return result
}

type postedInterest struct {
	amount        decimal.Decimal
	transactionID int64
}

// accrueAccount runs the guard, the balance computation and the posting for
// one account inside a single store transaction holding the account lock.
func (s *SavingsInterestService) accrueAccount(ctx context.Context, target savingsAccrualTarget, period Period) (*postedInterest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbError("begin accrual", err)
	}
	defer tx.Rollback()

	account, err := s.poster.LockAccount(ctx, tx, target.accountID)
	if err != nil {
		return nil, err
	}

	var accrued bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM "transaction"
			WHERE savings_account_id = $1 AND transaction_type = 'interest' AND source = 'savings'
				AND status = 'active' AND transaction_time >= $2 AND transaction_time < $3
		)`, account.ID, period.Start, period.Until()).Scan(&accrued)
	if err != nil {
		return nil, dbError("check accrual guard", err)
	}
	if accrued {
		return nil, ErrAlreadyAccrued
	}

	opening, err := s.openingBalance(ctx, tx, account, period)
	if err != nil {
		return nil, err
	}
	if !opening.IsPositive() {
		return nil, fmt.Errorf("%w: opening balance %s", errNothingToAccrue, opening.StringFixed(2))
	}

	movements, err := s.windowMovements(ctx, tx, account.ID, period)
	if err != nil {
		return nil, err
	}

	interest := AverageDailyBalanceInterest(opening, target.interestRate, period, movements)
	if !interest.IsPositive() {
		return nil, fmt.Errorf("%w: computed interest %s", errNothingToAccrue, interest.StringFixed(2))
	}

	bookedAt := period.LastInstant()
	windowStart := period.Start
	req := PostRequest{
		AccountID:          account.ID,
		Amount:             interest,
		Type:               models.TransactionInterest,
		Source:             models.SourceSavings,
		Description:        savingsInterestDescription,
		EffectiveAt:        &bookedAt,
		AccrualWindowStart: &windowStart,
	}
	posted, err := s.poster.PostTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, dbError("commit accrual", err)
	}
	s.poster.Committed(req, posted)

	return &postedInterest{amount: interest, transactionID: posted.TransactionID}, nil
}

// openingBalance is the signed sum of every active row before the window, or
// the stored balance when the account has no earlier rows.
func (s *SavingsInterestService) openingBalance(ctx context.Context, tx *sql.Tx, account *models.SavingsAccount, period Period) (decimal.Decimal, error) {
	var (
		count int64
		sum   decimal.Decimal
	)
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN transaction_type = 'withdrawal' THEN -amount ELSE amount END), 0)
		FROM "transaction"
		WHERE savings_account_id = $1 AND status = 'active' AND transaction_time < $2`,
		account.ID, period.Start).Scan(&count, &sum)
	if err != nil {
		return decimal.Zero, dbError("compute opening balance", err)
	}
	if count == 0 {
		return account.Balance, nil
	}
	return sum, nil
}

func (s *SavingsInterestService) windowMovements(ctx context.Context, tx *sql.Tx, accountID int64, period Period) ([]Movement, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT transaction_type, amount, transaction_time
		FROM "transaction"
		WHERE savings_account_id = $1 AND status = 'active'
			AND transaction_time >= $2 AND transaction_time < $3
		ORDER BY transaction_time, id`, accountID, period.Start, period.Until())
	if err != nil {
		return nil, dbError("list window transactions", err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.Type, &m.Amount, &m.At); err != nil {
			return nil, dbError("scan window transaction", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list window transactions", err)
	}
	return movements, nil
}
