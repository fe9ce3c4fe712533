package services

import (
	"time"

	"github.com/ruralpay/microbank/internal/models"
	"github.com/shopspring/decimal"
)

var (
	daysPerYear   = decimal.NewFromInt(365)
	percentPerDay = decimal.NewFromInt(36500)
	fdPeriodDays  = 30
)

// Movement is a ledger row as seen by the interest calculation.
type Movement struct {
	Type   models.TransactionType
	Amount decimal.Decimal
	At     time.Time
}

// AverageDailyBalanceInterest accrues annualRate (percent) over every day of
// the window on the end-of-day balance, floored at zero. Movements must be
// sorted by time and fall inside the window. When the day-by-day sum is not
// positive but the opening balance is, simple interest on the opening
// balance is used instead. The result is rounded to cents.
func AverageDailyBalanceInterest(opening, annualRate decimal.Decimal, period Period, movements []Movement) decimal.Decimal {
	balance := opening
	sum := decimal.Zero
	i := 0
	for day := period.Start; !day.After(period.End); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		for i < len(movements) && movements[i].At.Before(next) {
			balance = balance.Add(movements[i].Type.Signed(movements[i].Amount))
			i++
		}
		if balance.IsPositive() {
			sum = sum.Add(balance)
		}
	}

	interest := sum.Mul(annualRate).Div(percentPerDay)
	if !interest.IsPositive() && opening.IsPositive() {
		interest = SimpleInterest(opening, annualRate, period.Days())
	}
	return interest.Round(2)
}

// SimpleInterest is principal * rate/100 * days/365, unrounded.
func SimpleInterest(principal, annualRate decimal.Decimal, days int) decimal.Decimal {
	return principal.Mul(annualRate).Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(int64(days))).Div(daysPerYear)
}

// FixedDepositPeriodInterest is the fixed 30-day interest of one FD period,
// rounded to cents.
func FixedDepositPeriodInterest(amount, annualRate decimal.Decimal) decimal.Decimal {
	return amount.Mul(annualRate).Mul(decimal.NewFromInt(int64(fdPeriodDays))).Div(percentPerDay).Round(2)
}
