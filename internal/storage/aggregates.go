package storage

import (
	"context"
	"database/sql"
	"fmt"

	"bankdash/internal/core"
)

// dateFilter appends optional inclusive bounds on the named date column.
func dateFilter(column string, dr core.DateRange, query *string, args *[]any) {
	if dr.Start != "" {
		*query += " AND " + column + " >= ?"
		*args = append(*args, dr.Start)
	}
	if dr.End != "" {
		*query += " AND " + column + " <= ?"
		*args = append(*args, dr.End)
	}
}

// Statistics computes the dashboard overview for the optional date range.
// An empty store yields zero totals and null date bounds.
func (r *Repository) Statistics(ctx context.Context, dr core.DateRange) (core.Statistics, error) {
	var stats core.Statistics
	if err := dr.Validate(); err != nil {
		return stats, err
	}

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN amount < 0 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(amount), 0),
			COALESCE(AVG(amount), 0),
			MIN(transaction_date),
			MAX(transaction_date)
		FROM transactions WHERE 1=1`
	var args []any
	dateFilter("transaction_date", dr, &query, &args)

	var earliest, latest sql.NullString
	err := r.db.QueryRowContext(ctx, r.d.rebind(query), args...).Scan(
		&stats.TotalTransactions,
		&stats.TotalDeposits,
		&stats.TotalWithdrawals,
		&stats.NetChange,
		&stats.AvgTransaction,
		&earliest,
		&latest,
	)
	if err != nil {
		return stats, fmt.Errorf("statistics totals: %w", err)
	}
	if earliest.Valid {
		stats.EarliestDate = &earliest.String
	}
	if latest.Valid {
		stats.LatestDate = &latest.String
	}

	if stats.DepositsBySource, err = r.depositsBySource(ctx, dr); err != nil {
		return stats, err
	}
	if stats.MonthlyBreakdown, err = r.monthlyBreakdown(ctx, dr); err != nil {
		return stats, err
	}
	if stats.ByCategory, err = r.byCategory(ctx, dr); err != nil {
		return stats, err
	}
	return stats, nil
}

func (r *Repository) depositsBySource(ctx context.Context, dr core.DateRange) ([]core.SourceTotal, error) {
	query := `
		SELECT source, SUM(amount) AS total, COUNT(*)
		FROM transactions
		WHERE amount > 0 AND source IS NOT NULL AND source <> ''`
	var args []any
	dateFilter("transaction_date", dr, &query, &args)
	query += " GROUP BY source ORDER BY total DESC"

	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("deposits by source: %w", err)
	}
	defer rows.Close()

	var totals []core.SourceTotal
	for rows.Next() {
		var st core.SourceTotal
		if err := rows.Scan(&st.Source, &st.Total, &st.Count); err != nil {
			return nil, fmt.Errorf("scan source total: %w", err)
		}
		totals = append(totals, st)
	}
	return totals, rows.Err()
}

func (r *Repository) monthlyBreakdown(ctx context.Context, dr core.DateRange) ([]core.MonthTotal, error) {
	// Dates are stored as YYYY-MM-DD text, so the month is a prefix.
	query := `
		SELECT
			substr(transaction_date, 1, 7) AS month,
			COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN amount < 0 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(amount), 0)
		FROM transactions WHERE 1=1`
	var args []any
	dateFilter("transaction_date", dr, &query, &args)
	query += " GROUP BY month ORDER BY month DESC"

	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("monthly breakdown: %w", err)
	}
	defer rows.Close()

	var totals []core.MonthTotal
	for rows.Next() {
		var mt core.MonthTotal
		if err := rows.Scan(&mt.Month, &mt.Deposits, &mt.Withdrawals, &mt.Net); err != nil {
			return nil, fmt.Errorf("scan month total: %w", err)
		}
		totals = append(totals, mt)
	}
	return totals, rows.Err()
}

func (r *Repository) byCategory(ctx context.Context, dr core.DateRange) ([]core.CategoryTotal, error) {
	// Ascending total puts the biggest spend categories first, since
	// expense totals are negative.
	query := `
		SELECT category, SUM(amount) AS total, COUNT(*)
		FROM transactions
		WHERE category IS NOT NULL AND category <> ''`
	var args []any
	dateFilter("transaction_date", dr, &query, &args)
	query += " GROUP BY category ORDER BY total ASC"

	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("by category: %w", err)
	}
	defer rows.Close()

	var totals []core.CategoryTotal
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total, &ct.Count); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

// RecurringTransactions finds descriptions repeated at least
// minOccurrences times, summarized by their amount spread.
func (r *Repository) RecurringTransactions(ctx context.Context, minOccurrences int) ([]core.RecurringPattern, error) {
	if minOccurrences < 1 {
		minOccurrences = 1
	}
	query := `
		SELECT description, COUNT(*) AS occurrences, AVG(amount), MIN(amount), MAX(amount)
		FROM transactions
		GROUP BY description
		HAVING COUNT(*) >= ?
		ORDER BY occurrences DESC, description`

	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), minOccurrences)
	if err != nil {
		return nil, fmt.Errorf("recurring transactions: %w", err)
	}
	defer rows.Close()

	var patterns []core.RecurringPattern
	for rows.Next() {
		var p core.RecurringPattern
		if err := rows.Scan(&p.Description, &p.Occurrences, &p.AvgAmount, &p.MinAmount, &p.MaxAmount); err != nil {
			return nil, fmt.Errorf("scan recurring pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
