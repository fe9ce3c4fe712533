package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ruralpay/microbank/internal/audit"
	"github.com/ruralpay/microbank/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eligibleAccountsSQL = "SELECT sa.id, sp.interest_rate FROM savings_account sa"
	accrualGuardSQL     = "SELECT EXISTS"
	openingBalanceSQL   = "SELECT COUNT\\(\\*\\), COALESCE"
	windowMovementsSQL  = `SELECT transaction_type, amount, transaction_time FROM "transaction"`
	insertRunSQL        = "INSERT INTO interest_accrual_run"
	insertFailureSQL    = "INSERT INTO interest_accrual_failure"
)

func newTestSavingsService(t *testing.T) (*SavingsInterestService, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	svc := NewSavingsInterestService(db, newTestPoster(db), nil)
	svc.now = fixedClock(time.Date(2026, 10, 1, 1, 0, 0, 0, time.UTC))
	return svc, mock
}

func expectGuard(mock sqlmock.Sqlmock, accountID int64, period Period, accrued bool) {
	mock.ExpectQuery(accrualGuardSQL).
		WithArgs(accountID, timeArg(period.Start), timeArg(period.Until())).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(accrued))
}

func TestSavingsInterestService_RunSavingsInterestAccrual(t *testing.T) {
	ctx := context.Background()
	september := MonthPeriod(2026, time.September)

	t.Run("credits fallback interest once per window", func(t *testing.T) {
		svc, mock := newTestSavingsService(t)

		// first run posts 1000 * 12% * 30/365
		mock.ExpectQuery(eligibleAccountsSQL).
			WillReturnRows(sqlmock.NewRows([]string{"id", "interest_rate"}).AddRow(int64(42), "12.00"))
		mock.ExpectBegin()
		expectLockAccount(mock, 42, 1, "1000.00")
		expectGuard(mock, 42, september, false)
		mock.ExpectQuery(openingBalanceSQL).
			WithArgs(int64(42), timeArg(september.Start)).
			WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(int64(0), "0"))
		mock.ExpectQuery(windowMovementsSQL).
			WithArgs(int64(42), timeArg(september.Start), timeArg(september.Until())).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_type", "amount", "transaction_time"}))
		expectLockAccount(mock, 42, 1, "1000.00")
		mock.ExpectExec(updateBalanceSQL).
			WithArgs(decimalArg("1009.86"), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(insertTransactionSQL).
			WithArgs(int64(42), "interest", "savings", decimalArg("9.86"), "Interest Credited (Auto)", nil,
				timeArg(september.LastInstant()), timeArg(september.Start)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_time"}).AddRow(int64(100), september.LastInstant()))
		mock.ExpectCommit()
		mock.ExpectExec(insertRunSQL).WillReturnResult(sqlmock.NewResult(0, 1))

		summary, err := svc.RunSavingsInterestAccrual(ctx, september)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 0, summary.Skipped)
		require.Len(t, summary.Results, 1)
		assert.Equal(t, "9.86", summary.Results[0].Interest.StringFixed(2))
		assert.Equal(t, int64(100), summary.Results[0].TransactionID)

		// second run hits the guard
		mock.ExpectQuery(eligibleAccountsSQL).
			WillReturnRows(sqlmock.NewRows([]string{"id", "interest_rate"}).AddRow(int64(42), "12.00"))
		mock.ExpectBegin()
		expectLockAccount(mock, 42, 1, "1009.86")
		expectGuard(mock, 42, september, true)
		mock.ExpectRollback()
		mock.ExpectExec(insertRunSQL).WillReturnResult(sqlmock.NewResult(0, 1))

		summary, err = svc.RunSavingsInterestAccrual(ctx, september)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Processed)
		assert.Equal(t, 1, summary.Skipped)
		assert.Equal(t, AccrualSkipped, summary.Results[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive opening balance is skipped", func(t *testing.T) {
		svc, mock := newTestSavingsService(t)

		mock.ExpectQuery(eligibleAccountsSQL).
			WillReturnRows(sqlmock.NewRows([]string{"id", "interest_rate"}).AddRow(int64(7), "5"))
		mock.ExpectBegin()
		expectLockAccount(mock, 7, 2, "250.00")
		expectGuard(mock, 7, september, false)
		mock.ExpectQuery(openingBalanceSQL).
			WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(int64(4), "0.00"))
		mock.ExpectRollback()
		mock.ExpectExec(insertRunSQL).WillReturnResult(sqlmock.NewResult(0, 1))

		summary, err := svc.RunSavingsInterestAccrual(ctx, september)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Skipped)
		assert.Contains(t, summary.Results[0].Reason, "opening balance")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("one failing account does not stop the batch", func(t *testing.T) {
		svc, mock := newTestSavingsService(t)

		mock.ExpectQuery(eligibleAccountsSQL).
			WillReturnRows(sqlmock.NewRows([]string{"id", "interest_rate"}).
				AddRow(int64(1), "12").
				AddRow(int64(2), "12"))

		mock.ExpectBegin()
		expectLockAccount(mock, 1, 1, "500.00")
		mock.ExpectQuery(accrualGuardSQL).WillReturnError(errors.New("statement timeout"))
		mock.ExpectRollback()

		mock.ExpectBegin()
		expectLockAccount(mock, 2, 1, "730.00")
		expectGuard(mock, 2, september, false)
		mock.ExpectQuery(openingBalanceSQL).
			WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(int64(2), "730.00"))
		mock.ExpectQuery(windowMovementsSQL).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_type", "amount", "transaction_time"}))
		expectLockAccount(mock, 2, 1, "730.00")
		// 730 * 30 days * 12 / 36500 = 7.20
		expectPosting(mock, 2, "737.20", "7.20", "interest", "savings", 55)
		mock.ExpectCommit()

		mock.ExpectExec(insertRunSQL).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(insertFailureSQL).
			WithArgs(sqlmock.AnyArg(), "savings", int64(1), nil, timeArg(september.Start), timeArg(september.End), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		summary, err := svc.RunSavingsInterestAccrual(ctx, september)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, AccrualFailed, summary.Results[0].Status)
		assert.Contains(t, summary.Results[0].Error, "statement timeout")
		assert.Equal(t, "7.20", summary.Results[1].Interest.StringFixed(2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("window movements feed the daily balance", func(t *testing.T) {
		svc, mock := newTestSavingsService(t)

		mock.ExpectQuery(eligibleAccountsSQL).
			WillReturnRows(sqlmock.NewRows([]string{"id", "interest_rate"}).AddRow(int64(9), "36.5"))
		mock.ExpectBegin()
		expectLockAccount(mock, 9, 1, "2000.00")
		expectGuard(mock, 9, september, false)
		mock.ExpectQuery(openingBalanceSQL).
			WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(int64(1), "1000"))
		mock.ExpectQuery(windowMovementsSQL).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_type", "amount", "transaction_time"}).
				AddRow("deposit", "1000", time.Date(2026, 9, 16, 9, 30, 0, 0, time.UTC)))
		expectLockAccount(mock, 9, 1, "2000.00")
		expectPosting(mock, 9, "2045", "45", "interest", "savings", 77)
		mock.ExpectCommit()
		mock.ExpectExec(insertRunSQL).WillReturnResult(sqlmock.NewResult(0, 1))

		summary, err := svc.RunSavingsInterestAccrual(ctx, september)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, "45.00", summary.Results[0].Interest.StringFixed(2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("listing accounts fails", func(t *testing.T) {
		svc, mock := newTestSavingsService(t)
		mock.ExpectQuery(eligibleAccountsSQL).WillReturnError(errors.New("connection refused"))

		_, err := svc.RunSavingsInterestAccrual(ctx, september)
		assert.ErrorIs(t, err, ErrDatabase)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("open window is rejected before any work", func(t *testing.T) {
		svc, mock := newTestSavingsService(t)
		svc.now = fixedClock(time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC))

		for _, period := range []Period{
			MonthPeriod(2026, time.October),
			MonthPeriod(2026, time.November),
		} {
			summary, err := svc.RunSavingsInterestAccrual(ctx, period)
			assert.ErrorIs(t, err, ErrWindowNotClosed, period.Key())
			assert.True(t, IsClientError(err))
			assert.Nil(t, summary)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("window closes at the start of the next day", func(t *testing.T) {
		assert.ErrorIs(t, september.EnsureClosed(time.Date(2026, 9, 30, 23, 59, 59, 0, time.UTC)), ErrWindowNotClosed)
		assert.NoError(t, september.EnsureClosed(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("accounts not reached before cancellation are recorded as failed", func(t *testing.T) {
		db, mock := newMockDB(t)
		runCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		log := quietLogger()
		log.AddHook(cancelOnAudit{cancel: cancel})
		svc := NewSavingsInterestService(db, NewTransactionPoster(db, audit.NewLogger(log)), nil)
		svc.now = fixedClock(time.Date(2026, 10, 1, 1, 0, 0, 0, time.UTC))

		mock.ExpectQuery(eligibleAccountsSQL).
			WillReturnRows(sqlmock.NewRows([]string{"id", "interest_rate"}).
				AddRow(int64(1), "12.00").
				AddRow(int64(2), "12.00").
				AddRow(int64(3), "12.00"))
		mock.ExpectBegin()
		expectLockAccount(mock, 1, 1, "1000.00")
		expectGuard(mock, 1, september, false)
		mock.ExpectQuery(openingBalanceSQL).
			WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(int64(0), "0"))
		mock.ExpectQuery(windowMovementsSQL).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_type", "amount", "transaction_time"}))
		expectLockAccount(mock, 1, 1, "1000.00")
		expectPosting(mock, 1, "1009.86", "9.86", "interest", "savings", 100)
		mock.ExpectCommit()
		// the audit entry of account 1 cancels the run; 2 and 3 are never opened
		mock.ExpectExec(insertRunSQL).
			WithArgs(sqlmock.AnyArg(), "savings", timeArg(september.Start), timeArg(september.End), 1, 0, 2, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		for _, id := range []int64{2, 3} {
			mock.ExpectExec(insertFailureSQL).
				WithArgs(sqlmock.AnyArg(), "savings", id, nil, timeArg(september.Start), timeArg(september.End), "interrupted: context canceled").
				WillReturnResult(sqlmock.NewResult(0, 1))
		}

		summary, err := svc.RunSavingsInterestAccrual(runCtx, september)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 2, summary.Failed)
		require.Len(t, summary.Results, 3)
		for _, r := range summary.Results[1:] {
			assert.Equal(t, AccrualFailed, r.Status)
			assert.Equal(t, "interrupted", r.Reason)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// cancelOnAudit cancels a run as soon as the first posting is audited.
type cancelOnAudit struct {
	cancel context.CancelFunc
}

func (h cancelOnAudit) Levels() []logrus.Level { return []logrus.Level{logrus.InfoLevel} }

func (h cancelOnAudit) Fire(e *logrus.Entry) error {
	if e.Data["audit"] == true {
		h.cancel()
	}
	return nil
}

func TestSavingsInterestService_RetryFailedSavingsAccruals(t *testing.T) {
	svc, mock := newTestSavingsService(t)
	august := MonthPeriod(2026, time.August)

	mock.ExpectQuery("SELECT f.id, f.savings_account_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "savings_account_id", "window_start", "window_end", "interest_rate"}).
			AddRow(int64(3), int64(42), august.Start, august.End, "12"))
	mock.ExpectBegin()
	expectLockAccount(mock, 42, 1, "1000.00")
	expectGuard(mock, 42, august, false)
	mock.ExpectQuery(openingBalanceSQL).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(int64(0), "0"))
	mock.ExpectQuery(windowMovementsSQL).
		WillReturnRows(sqlmock.NewRows([]string{"transaction_type", "amount", "transaction_time"}))
	expectLockAccount(mock, 42, 1, "1000.00")
	// 1000 * 31 days * 12 / 36500 = 10.19
	expectPosting(mock, 42, "1010.19", "10.19", "interest", "savings", 201)
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE interest_accrual_failure SET resolved_at").
		WithArgs(sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	summary, err := svc.RetryFailedSavingsAccruals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, models.AccrualSavings, summary.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
