package services

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrInvalidAmount        = errors.New("amount must be a positive value with at most two decimal places")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrInvalidAccountNumber = errors.New("invalid account number")
	ErrBranchMismatch       = fmt.Errorf("%w: branch prefix does not match account branch", ErrInvalidAccountNumber)
	ErrAccountNotFound      = errors.New("account not found")
	ErrFixedDepositNotFound = errors.New("fixed deposit not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDuplicateActiveFd    = errors.New("savings account already has an active fixed deposit")
	ErrPlanMinimumNotMet    = errors.New("amount is below the plan minimum")
	ErrAlreadyAccrued       = errors.New("interest already accrued for this window")
	ErrWindowNotClosed      = errors.New("accrual window has not closed yet")
	ErrForbidden            = errors.New("not allowed for this role")
	ErrDatabase             = errors.New("database error")
)

// DatabaseError wraps a store-level failure with the operation that caused it.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }

// dbError wraps err unless it already carries a ledger meaning.
func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23514":
			if pqErr.Constraint == "savings_account_balance_check" {
				return ErrInsufficientFunds
			}
		case "23505":
			if pqErr.Constraint == "fixed_deposit_account_one_active_idx" {
				return ErrDuplicateActiveFd
			}
			if pqErr.Constraint == "transaction_savings_interest_window_idx" {
				return ErrAlreadyAccrued
			}
		}
	}
	var de *DatabaseError
	if errors.As(err, &de) {
		return err
	}
	return &DatabaseError{Op: op, Err: err}
}

// IsClientError reports whether err is caused by the request rather than the store.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInvalidType, ErrInvalidAccountNumber, ErrAccountNotFound,
		ErrFixedDepositNotFound, ErrPlanNotFound, ErrInsufficientFunds, ErrDuplicateActiveFd,
		ErrPlanMinimumNotMet, ErrForbidden, ErrWindowNotClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
