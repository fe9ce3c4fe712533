package services

import (
	"database/sql"
	"database/sql/driver"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ruralpay/microbank/internal/audit"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// decimalArg matches a driver value carrying the given decimal amount,
// whatever its textual scale.
type decimalArg string

func (d decimalArg) Match(v driver.Value) bool {
	want := decimal.RequireFromString(string(d))
	switch x := v.(type) {
	case string:
		got, err := decimal.NewFromString(x)
		return err == nil && got.Equal(want)
	case []byte:
		got, err := decimal.NewFromString(string(x))
		return err == nil && got.Equal(want)
	case float64:
		return decimal.NewFromFloat(x).Equal(want)
	case int64:
		return decimal.NewFromInt(x).Equal(want)
	}
	return false
}

// timeArg matches a driver value equal to the given instant.
type timeArg time.Time

func (a timeArg) Match(v driver.Value) bool {
	got, ok := v.(time.Time)
	return ok && got.Equal(time.Time(a))
}

var accountColumns = []string{"id", "branch_id", "plan_id", "balance", "status", "created_at"}

const (
	lockAccountSQL       = "SELECT id, branch_id, plan_id, balance, status, created_at FROM savings_account WHERE id = \\$1 FOR UPDATE"
	updateBalanceSQL     = "UPDATE savings_account SET balance = \\$1 WHERE id = \\$2"
	insertTransactionSQL = `INSERT INTO "transaction"`
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestPoster(db *sql.DB) *TransactionPoster {
	return NewTransactionPoster(db, audit.NewLogger(quietLogger()))
}

func expectLockAccount(mock sqlmock.Sqlmock, id, branch int64, balance string) {
	mock.ExpectQuery(lockAccountSQL).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(id, branch, 1, balance, "active", time.Now()))
}

// expectPosting registers the update + insert pair the poster issues after
// the row lock.
func expectPosting(mock sqlmock.Sqlmock, accountID int64, newBalance, amount string, txType, source string, txID int64) {
	mock.ExpectExec(updateBalanceSQL).
		WithArgs(decimalArg(newBalance), accountID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertTransactionSQL).
		WithArgs(accountID, txType, source, decimalArg(amount), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_time"}).AddRow(txID, time.Now()))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

