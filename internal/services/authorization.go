package services

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

// AccrualScopeFor maps a caller to the branch its batch runs are limited to.
// Admins see every branch (nil scope); managers only their own.
func AccrualScopeFor(role string, branchID int64) (*int64, error) {
	switch role {
	case RoleAdmin:
		return nil, nil
	case RoleManager:
		if branchID <= 0 {
			return nil, ErrForbidden
		}
		return &branchID, nil
	}
	return nil, ErrForbidden
}

// ReportScopeFor resolves the branch filter for a report request. Admins may
// ask for any branch or none; managers are pinned to their own branch.
func ReportScopeFor(role string, branchID int64, requested *int64) (*int64, error) {
	switch role {
	case RoleAdmin:
		return requested, nil
	case RoleManager:
		if branchID <= 0 {
			return nil, ErrForbidden
		}
		if requested != nil && *requested != branchID {
			return nil, ErrForbidden
		}
		return &branchID, nil
	}
	return nil, ErrForbidden
}
