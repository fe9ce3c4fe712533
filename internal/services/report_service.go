package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ruralpay/microbank/internal/models"
)

type ReportGroupBy string

const (
	GroupByBranch ReportGroupBy = "branch"
	GroupByDay    ReportGroupBy = "day"
	GroupByMonth  ReportGroupBy = "month"
	GroupByYear   ReportGroupBy = "year"
)

var bucketExpressions = map[ReportGroupBy]string{
	GroupByBranch: "sa.branch_id::text",
	GroupByDay:    "to_char(t.transaction_time AT TIME ZONE 'UTC', 'YYYY-MM-DD')",
	GroupByMonth:  "to_char(t.transaction_time AT TIME ZONE 'UTC', 'YYYY-MM')",
	GroupByYear:   "to_char(t.transaction_time AT TIME ZONE 'UTC', 'YYYY')",
}

// ReportFilter narrows the interest distribution. Zero From/To leave that
// side open; BranchID and Source are optional.
type ReportFilter struct {
	GroupBy  ReportGroupBy
	From     time.Time
	To       time.Time
	BranchID *int64
	Source   models.TransactionSource
}

// ReportService runs read-only rollups over the transaction log.
type ReportService struct {
	db *sql.DB
}

func NewReportService(db *sql.DB) *ReportService {
	return &ReportService{db: db}
}

// InterestDistribution totals active interest postings per bucket and source.
func (s *ReportService) InterestDistribution(ctx context.Context, filter ReportFilter) ([]models.InterestBucket, error) {
	if filter.GroupBy == "" {
		filter.GroupBy = GroupByMonth
	}
	bucket, ok := bucketExpressions[filter.GroupBy]
	if !ok {
		return nil, fmt.Errorf("unsupported grouping %q", filter.GroupBy)
	}

	conds := []string{"t.transaction_type = 'interest'", "t.status = 'active'"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "t.transaction_time >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "t.transaction_time < "+arg(filter.To))
	}
	if filter.BranchID != nil {
		conds = append(conds, "sa.branch_id = "+arg(*filter.BranchID))
	}
	if filter.Source != "" {
		conds = append(conds, "t.source = "+arg(string(filter.Source)))
	}

	query := fmt.Sprintf(`
		SELECT %s AS bucket, t.source, SUM(t.amount), COUNT(*)
		FROM "transaction" t
		JOIN savings_account sa ON sa.id = t.savings_account_id
		WHERE %s
		GROUP BY 1, 2
		ORDER BY 1, 2`, bucket, strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("interest distribution", err)
	}
	defer rows.Close()

	buckets := []models.InterestBucket{}
	for rows.Next() {
		var b models.InterestBucket
		if err := rows.Scan(&b.Bucket, &b.Source, &b.Total, &b.Count); err != nil {
			return nil, dbError("scan interest bucket", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("interest distribution", err)
	}
	return buckets, nil
}
