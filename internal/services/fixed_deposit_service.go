package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ruralpay/microbank/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	fdOpeningDescription  = "FD opening"
	fdInterestDescription = "FD interest"
	fdClosureDescription  = "FD closure transfer"
)

type OpenFixedDepositRequest struct {
	SavingsAccountID int64
	PlanID           int64
	Amount           decimal.Decimal
	CreatedBy        *int64
}

type MaturitySweepSummary struct {
	Closed  int     `json:"closed"`
	Skipped int     `json:"skipped"`
	Failed  int     `json:"errors"`
	Closes  []int64 `json:"closedIds"`
}

// FixedDepositService runs the FD lifecycle: open (funded by a savings
// withdrawal), periodic interest to the linked savings account, and closure
// with principal transfer at maturity. All balance changes go through the
// poster.
type FixedDepositService struct {
	db     *sql.DB
	poster *TransactionPoster
	locker *JobLocker
	now    func() time.Time
}

func NewFixedDepositService(db *sql.DB, poster *TransactionPoster, locker *JobLocker) *FixedDepositService {
	return &FixedDepositService{
		db:     db,
		poster: poster,
		locker: locker,
		now:    time.Now,
	}
}

// OpenFixedDeposit debits the savings account and creates the FD in one
// store transaction.
func (s *FixedDepositService) OpenFixedDeposit(ctx context.Context, req OpenFixedDepositRequest) (*models.FixedDepositAccount, error) {
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbError("begin fd open", err)
	}
	defer tx.Rollback()

	plan, err := s.loadPlan(ctx, tx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if req.Amount.LessThan(plan.MinimumAmountRequired) {
		return nil, fmt.Errorf("%w: minimum is %s", ErrPlanMinimumNotMet, plan.MinimumAmountRequired.StringFixed(2))
	}

	account, err := s.poster.LockAccount(ctx, tx, req.SavingsAccountID)
	if err != nil {
		return nil, err
	}

	var active int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fixed_deposit_account
		WHERE savings_account_id = $1 AND status = 'active'`, account.ID).Scan(&active)
	if err != nil {
		return nil, dbError("check active fd", err)
	}
	if active > 0 {
		return nil, ErrDuplicateActiveFd
	}

	postReq := PostRequest{
		AccountID:   account.ID,
		Amount:      req.Amount,
		Type:        models.TransactionWithdrawal,
		Source:      models.SourceFixedDeposit,
		Description: fdOpeningDescription,
		PerformedBy: req.CreatedBy,
	}
	posted, err := s.poster.PostTx(ctx, tx, postReq)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := truncateDay(now)
	closing := today.AddDate(0, plan.DurationMonths, 0)
	fd := &models.FixedDepositAccount{
		SavingsAccountID: account.ID,
		PlanID:           plan.ID,
		Amount:           req.Amount,
		StartDate:        today,
		NextInterestDate: nextInterestDate(today, closing),
		ClosingDate:      closing,
		Status:           models.StatusActive,
		CreatedByUserID:  req.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO fixed_deposit_account (savings_account_id, plan_id, amount, start_date, next_interest_date,
			closing_date, status, created_by_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', $7, $8, $8)
		RETURNING id`,
		fd.SavingsAccountID, fd.PlanID, fd.Amount, fd.StartDate, nullTime(fd.NextInterestDate),
		fd.ClosingDate, nullInt64(fd.CreatedByUserID), now,
	).Scan(&fd.ID)
	if err != nil {
		return nil, dbError("insert fixed deposit", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, dbError("commit fd open", err)
	}
	s.poster.Committed(postReq, posted)

	logrus.WithFields(logrus.Fields{
		"module":             "fixed_deposit",
		"fixed_deposit_id":   fd.ID,
		"savings_account_id": fd.SavingsAccountID,
		"amount":             fd.Amount.StringFixed(2),
	}).Info("fixed deposit opened")
	return fd, nil
}

// RunFdInterestAccrual credits one 30-day period of interest for every active
// FD due on or before asOf, optionally limited to one branch. Each FD runs in
// its own store transaction.
func (s *FixedDepositService) RunFdInterestAccrual(ctx context.Context, asOf time.Time, scopeBranchID *int64) (*AccrualSummary, error) {
	asOf = truncateDay(asOf)

	lockKey := "accrual:fd:" + asOf.Format("2006-01-02")
	if scopeBranchID != nil {
		lockKey += ":branch:" + strconv.FormatInt(*scopeBranchID, 10)
	}
	release, err := s.locker.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `
		SELECT fd.id, fd.savings_account_id
		FROM fixed_deposit_account fd
		JOIN savings_account sa ON sa.id = fd.savings_account_id
		WHERE fd.status = 'active' AND fd.next_interest_date IS NOT NULL AND fd.next_interest_date <= $1`
	args := []any{asOf}
	if scopeBranchID != nil {
		query += ` AND sa.branch_id = $2`
		args = append(args, *scopeBranchID)
	}
	query += ` ORDER BY fd.id`

	due, err := s.listIDs(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	summary := newAccrualSummary(models.AccrualFixedDeposit, Period{Start: asOf, End: asOf}, s.now())
	for i, item := range due {
		if err := ctx.Err(); err != nil {
			for _, rest := range due[i:] {
				summary.add(interruptedResult(rest.savingsID, rest.fdID, err))
			}
			break
		}
		summary.add(s.accrueFixedDeposit(ctx, item.fdID, item.savingsID, asOf))
	}

	recordRun(ctx, s.db, summary, s.now())
	logrus.WithFields(logrus.Fields{
		"module":    "fd_accrual",
		"as_of":     asOf.Format("2006-01-02"),
		"processed": summary.Processed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}).Info("fixed deposit interest accrual finished")
	return summary, nil
}

func (s *FixedDepositService) accrueFixedDeposit(ctx context.Context, fdID, savingsID int64, asOf time.Time) AccrualResult {
	result := AccrualResult{SavingsAccountID: savingsID, FixedDepositAccountID: fdID}

	err := func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return dbError("begin fd accrual", err)
		}
		defer tx.Rollback()

		fd, rate, err := s.lockFixedDeposit(ctx, tx, fdID)
		if err != nil {
			return err
		}
		if fd.Status != models.StatusActive || fd.NextInterestDate == nil || fd.NextInterestDate.After(asOf) {
			return ErrAlreadyAccrued
		}

		interest := FixedDepositPeriodInterest(fd.Amount, rate)
		if !interest.IsPositive() {
			return fmt.Errorf("%w: computed interest %s", errNothingToAccrue, interest.StringFixed(2))
		}

		postReq := PostRequest{
			AccountID:   fd.SavingsAccountID,
			Amount:      interest,
			Type:        models.TransactionInterest,
			Source:      models.SourceFixedDeposit,
			Description: fdInterestDescription,
		}
		posted, err := s.poster.PostTx(ctx, tx, postReq)
		if err != nil {
			return err
		}

		next := nextInterestDate(*fd.NextInterestDate, fd.ClosingDate)
		_, err = tx.ExecContext(ctx, `
			UPDATE fixed_deposit_account SET next_interest_date = $1, updated_at = $2 WHERE id = $3`,
			nullTime(next), s.now(), fd.ID)
		if err != nil {
			return dbError("advance interest date", err)
		}

		if err := tx.Commit(); err != nil {
			return dbError("commit fd accrual", err)
		}
		s.poster.Committed(postReq, posted)

		result.Interest = interest
		result.TransactionID = posted.TransactionID
		result.NextInterestDate = next
		return nil
	}()

	switch {
	case err == nil:
		result.Status = AccrualPosted
	case errors.Is(err, ErrAlreadyAccrued), errors.Is(err, errNothingToAccrue):
		result.Status = AccrualSkipped
		result.Reason = err.Error()
	default:
		result.Status = AccrualFailed
		result.Error = err.Error()
		logrus.WithFields(logrus.Fields{
			"module":           "fd_accrual",
			"fixed_deposit_id": fdID,
		}).WithError(err).Error("fixed deposit interest accrual failed")
	}
	return result
}

// MaybeAutoCloseFd returns the FD, closing it first when it has matured:
// status becomes inactive and the principal moves back to the linked savings
// account. Calling it again on a closed FD changes nothing.
func (s *FixedDepositService) MaybeAutoCloseFd(ctx context.Context, fdID int64) (*models.FixedDepositAccount, error) {
	fd, _, err := s.autoClose(ctx, fdID, truncateDay(s.now()))
	return fd, err
}

// GetFixedDeposit is the account-detail read path; it applies auto-close.
func (s *FixedDepositService) GetFixedDeposit(ctx context.Context, fdID int64) (*models.FixedDepositAccount, error) {
	return s.MaybeAutoCloseFd(ctx, fdID)
}

// CloseMaturedFixedDeposits sweeps every matured FD through the same
// transition the read path uses.
func (s *FixedDepositService) CloseMaturedFixedDeposits(ctx context.Context, asOf time.Time) (*MaturitySweepSummary, error) {
	asOf = truncateDay(asOf)

	release, err := s.locker.Acquire(ctx, "fd:maturity:"+asOf.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer release()

	due, err := s.listIDs(ctx, `
		SELECT id, savings_account_id
		FROM fixed_deposit_account
		WHERE status = 'active' AND closing_date <= $1
		ORDER BY id`, asOf)
	if err != nil {
		return nil, err
	}

	summary := &MaturitySweepSummary{Closes: []int64{}}
	for _, item := range due {
		if err := ctx.Err(); err != nil {
			break
		}
		_, closed, err := s.autoClose(ctx, item.fdID, asOf)
		switch {
		case err != nil:
			summary.Failed++
			logrus.WithFields(logrus.Fields{
				"module":           "fd_maturity",
				"fixed_deposit_id": item.fdID,
			}).WithError(err).Error("fixed deposit auto-close failed")
		case closed:
			summary.Closed++
			summary.Closes = append(summary.Closes, item.fdID)
		default:
			summary.Skipped++
		}
	}
	return summary, nil
}

func (s *FixedDepositService) autoClose(ctx context.Context, fdID int64, today time.Time) (*models.FixedDepositAccount, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, dbError("begin fd close", err)
	}
	defer tx.Rollback()

	fd, _, err := s.lockFixedDeposit(ctx, tx, fdID)
	if err != nil {
		return nil, false, err
	}
	if !fd.Matured(today) {
		return fd, false, nil
	}

	now := s.now()
	_, err = tx.ExecContext(ctx, `
		UPDATE fixed_deposit_account SET status = 'inactive', updated_at = $1 WHERE id = $2`, now, fd.ID)
	if err != nil {
		return nil, false, dbError("close fixed deposit", err)
	}

	postReq := PostRequest{
		AccountID:   fd.SavingsAccountID,
		Amount:      fd.Amount,
		Type:        models.TransactionTransfer,
		Source:      models.SourceFixedDeposit,
		Description: fdClosureDescription,
	}
	posted, err := s.poster.PostTx(ctx, tx, postReq)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, dbError("commit fd close", err)
	}
	s.poster.Committed(postReq, posted)

	fd.Status = models.StatusInactive
	fd.UpdatedAt = now
	logrus.WithFields(logrus.Fields{
		"module":             "fixed_deposit",
		"fixed_deposit_id":   fd.ID,
		"savings_account_id": fd.SavingsAccountID,
		"amount":             fd.Amount.StringFixed(2),
	}).Info("matured fixed deposit closed")
	return fd, true, nil
}

func (s *FixedDepositService) loadPlan(ctx context.Context, tx *sql.Tx, planID int64) (*models.FixedDepositAccountPlan, error) {
	var plan models.FixedDepositAccountPlan
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, interest_rate, duration_months, minimum_amount_required
		FROM fixed_deposit_account_plan
		WHERE id = $1`, planID).Scan(&plan.ID, &plan.Name, &plan.InterestRate, &plan.DurationMonths, &plan.MinimumAmountRequired)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, dbError("load fd plan", err)
	}
	return &plan, nil
}

// lockFixedDeposit locks the FD row and returns it with its plan rate.
func (s *FixedDepositService) lockFixedDeposit(ctx context.Context, tx *sql.Tx, fdID int64) (*models.FixedDepositAccount, decimal.Decimal, error) {
	var (
		fd        models.FixedDepositAccount
		rate      decimal.Decimal
		next      sql.NullTime
		createdBy sql.NullInt64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT fd.id, fd.savings_account_id, fd.plan_id, fd.amount, fd.start_date, fd.next_interest_date,
			fd.closing_date, fd.status, fd.created_by_user_id, fd.created_at, fd.updated_at, fp.interest_rate
		FROM fixed_deposit_account fd
		JOIN fixed_deposit_account_plan fp ON fp.id = fd.plan_id
		WHERE fd.id = $1
		FOR UPDATE OF fd`, fdID).Scan(
		&fd.ID, &fd.SavingsAccountID, &fd.PlanID, &fd.Amount, &fd.StartDate, &next,
		&fd.ClosingDate, &fd.Status, &createdBy, &fd.CreatedAt, &fd.UpdatedAt, &rate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, decimal.Zero, ErrFixedDepositNotFound
	}
	if err != nil {
		return nil, decimal.Zero, dbError("lock fixed deposit", err)
	}

	fd.StartDate = truncateDay(fd.StartDate)
	fd.ClosingDate = truncateDay(fd.ClosingDate)
	if next.Valid {
		d := truncateDay(next.Time)
		fd.NextInterestDate = &d
	}
	if createdBy.Valid {
		fd.CreatedByUserID = &createdBy.Int64
	}
	return &fd, rate, nil
}

type dueFixedDeposit struct {
	fdID      int64
	savingsID int64
}

func (s *FixedDepositService) listIDs(ctx context.Context, query string, args ...any) ([]dueFixedDeposit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("list fixed deposits", err)
	}
	defer rows.Close()

	var due []dueFixedDeposit
	for rows.Next() {
		var d dueFixedDeposit
		if err := rows.Scan(&d.fdID, &d.savingsID); err != nil {
			return nil, dbError("scan fixed deposit", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list fixed deposits", err)
	}
	return due, nil
}

// nextInterestDate is from+30 days, or nil once that passes closing.
func nextInterestDate(from, closing time.Time) *time.Time {
	next := from.AddDate(0, 0, fdPeriodDays)
	if next.After(closing) {
		return nil
	}
	return &next
}
