package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	branchDigits   = 3
	internalDigits = 7

	maxBranchID   = 999
	maxInternalID = 9999999
)

var (
	strictAccountNumber = regexp.MustCompile(`^\d{10}$`)
	hyphenAccountNumber = regexp.MustCompile(`^(\d{1,3})-(\d{1,7})$`)
	bareAccountID       = regexp.MustCompile(`^\d{1,7}$`)
)

// AccountNumber is the decoded form of a display account number. BranchID is
// zero when the input carried no branch (bare id form).
type AccountNumber struct {
	BranchID   int64
	InternalID int64
}

// FormatAccountNumber renders BBBIIIIIII for branch 1-999 and internal ids
// 1-9999999.
func FormatAccountNumber(branchID, internalID int64) (string, error) {
	if branchID < 1 || branchID > maxBranchID || internalID < 1 || internalID > maxInternalID {
		return "", fmt.Errorf("%w: branch %d id %d out of range", ErrInvalidAccountNumber, branchID, internalID)
	}
	return fmt.Sprintf("%0*d%0*d", branchDigits, branchID, internalDigits, internalID), nil
}

// ParseAccountNumber decodes a display account number. In strict mode only the
// ten digit form is accepted.
func ParseAccountNumber(s string, strict bool) (AccountNumber, error) {
	s = strings.TrimSpace(s)

	if strictAccountNumber.MatchString(s) {
		branch, _ := strconv.ParseInt(s[:branchDigits], 10, 64)
		id, _ := strconv.ParseInt(s[branchDigits:], 10, 64)
		if branch == 0 || id == 0 {
			return AccountNumber{}, fmt.Errorf("%w: %q", ErrInvalidAccountNumber, s)
		}
		return AccountNumber{BranchID: branch, InternalID: id}, nil
	}
	if strict {
		return AccountNumber{}, fmt.Errorf("%w: %q", ErrInvalidAccountNumber, s)
	}

	if m := hyphenAccountNumber.FindStringSubmatch(s); m != nil {
		branch, _ := strconv.ParseInt(m[1], 10, 64)
		id, _ := strconv.ParseInt(m[2], 10, 64)
		if branch == 0 || id == 0 {
			return AccountNumber{}, fmt.Errorf("%w: %q", ErrInvalidAccountNumber, s)
		}
		return AccountNumber{BranchID: branch, InternalID: id}, nil
	}

	if bareAccountID.MatchString(s) {
		id, _ := strconv.ParseInt(s, 10, 64)
		if id == 0 {
			return AccountNumber{}, fmt.Errorf("%w: %q", ErrInvalidAccountNumber, s)
		}
		return AccountNumber{InternalID: id}, nil
	}

	return AccountNumber{}, fmt.Errorf("%w: %q", ErrInvalidAccountNumber, s)
}

// AccountResolver turns a display account number into a savings account id,
// cross-checking the branch prefix against the stored branch.
type AccountResolver struct {
	db     *sql.DB
	strict bool
}

func NewAccountResolver(db *sql.DB, strict bool) *AccountResolver {
	return &AccountResolver{db: db, strict: strict}
}

func (r *AccountResolver) Resolve(ctx context.Context, accountNumber string) (int64, error) {
	parsed, err := ParseAccountNumber(accountNumber, r.strict)
	if err != nil {
		return 0, err
	}

	var branchID int64
	err = r.db.QueryRowContext(ctx, `SELECT branch_id FROM savings_account WHERE id = $1`, parsed.InternalID).Scan(&branchID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, dbError("resolve account number", err)
	}

	if parsed.BranchID != 0 && parsed.BranchID != branchID {
		return 0, fmt.Errorf("%w: %s", ErrBranchMismatch, accountNumber)
	}
	return parsed.InternalID, nil
}
