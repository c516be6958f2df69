package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bankdash/internal/core"
)

// contributionJoin matches a deposit to every person owning a keyword
// contained in its description. Keyword matching is substring,
// case-insensitive.
func (r *Repository) contributionJoin() string {
	return fmt.Sprintf("JOIN person_mappings pm ON t.description %s '%%' || pm.keyword || '%%'", r.d.likeOp)
}

func (r *Repository) PersonMappings(ctx context.Context) ([]core.PersonMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, person_name, keyword, created_at
		FROM person_mappings
		ORDER BY person_name, keyword`)
	if err != nil {
		return nil, fmt.Errorf("list person mappings: %w", err)
	}
	defer rows.Close()

	var mappings []core.PersonMapping
	for rows.Next() {
		var (
			pm        core.PersonMapping
			createdAt sql.NullString
		)
		if err := rows.Scan(&pm.ID, &pm.PersonName, &pm.Keyword, &createdAt); err != nil {
			return nil, fmt.Errorf("scan person mapping: %w", err)
		}
		pm.CreatedAt = parseStoredTime(createdAt)
		mappings = append(mappings, pm)
	}
	return mappings, rows.Err()
}

// AddPersonMapping inserts a (person, keyword) pair. A duplicate pair is
// core.ErrConflict.
func (r *Repository) AddPersonMapping(ctx context.Context, personName, keyword string) (core.PersonMapping, error) {
	pm := core.PersonMapping{
		PersonName: strings.TrimSpace(personName),
		Keyword:    strings.TrimSpace(keyword),
		CreatedAt:  time.Now().UTC(),
	}
	if err := pm.Validate(); err != nil {
		return core.PersonMapping{}, err
	}

	query := `
		INSERT INTO person_mappings (person_name, keyword, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (person_name, keyword) DO NOTHING
		RETURNING id`
	err := r.db.QueryRowContext(ctx, r.d.rebind(query),
		pm.PersonName, pm.Keyword, pm.CreatedAt.Format(time.RFC3339)).Scan(&pm.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PersonMapping{}, core.ErrConflict
	}
	if err != nil {
		return core.PersonMapping{}, fmt.Errorf("insert person mapping: %w", err)
	}
	return pm, nil
}

func (r *Repository) DeletePersonMapping(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.d.rebind("DELETE FROM person_mappings WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete person mapping %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Contributions lists deposits attributed to persons via keyword match.
// A deposit matching keywords of several persons resolves to exactly one
// row: the alphabetically first person name.
func (r *Repository) Contributions(ctx context.Context, f core.ContributionFilter) ([]core.Contribution, error) {
	if err := f.Range.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT t.id, t.transaction_date, t.description, t.amount, t.balance, MIN(pm.person_name)
		FROM transactions t ` + r.contributionJoin() + `
		WHERE t.amount > 0`
	var args []any
	if f.PersonName != "" {
		query += " AND pm.person_name = ?"
		args = append(args, f.PersonName)
	}
	dateFilter("t.transaction_date", f.Range, &query, &args)
	query += `
		GROUP BY t.id, t.transaction_date, t.description, t.amount, t.balance
		ORDER BY t.transaction_date DESC, t.id DESC`

	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("contributions: %w", err)
	}
	defer rows.Close()

	var contributions []core.Contribution
	for rows.Next() {
		var (
			c       core.Contribution
			amount  float64
			balance sql.NullFloat64
		)
		if err := rows.Scan(&c.TransactionID, &c.Date, &c.Description, &amount, &balance, &c.PersonName); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		c.Amount = decimal.NewFromFloat(amount)
		if balance.Valid {
			c.Balance = decimal.NullDecimal{Decimal: decimal.NewFromFloat(balance.Float64), Valid: true}
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

// ContributionStatistics aggregates attributed deposits per person and
// per month. Unlike Contributions, a deposit matching two persons counts
// toward both totals here.
func (r *Repository) ContributionStatistics(ctx context.Context, dr core.DateRange) (core.ContributionStatistics, error) {
	var stats core.ContributionStatistics
	if err := dr.Validate(); err != nil {
		return stats, err
	}

	byPerson := `
		SELECT pm.person_name, SUM(t.amount) AS total, COUNT(DISTINCT t.id)
		FROM transactions t ` + r.contributionJoin() + `
		WHERE t.amount > 0`
	var args []any
	dateFilter("t.transaction_date", dr, &byPerson, &args)
	byPerson += " GROUP BY pm.person_name ORDER BY total DESC"

	rows, err := r.db.QueryContext(ctx, r.d.rebind(byPerson), args...)
	if err != nil {
		return stats, fmt.Errorf("contributions by person: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pt core.PersonTotal
		if err := rows.Scan(&pt.PersonName, &pt.Total, &pt.Count); err != nil {
			return stats, fmt.Errorf("scan person total: %w", err)
		}
		stats.ByPerson = append(stats.ByPerson, pt)
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	monthly := `
		SELECT substr(t.transaction_date, 1, 7) AS month, pm.person_name, SUM(t.amount) AS total
		FROM transactions t ` + r.contributionJoin() + `
		WHERE t.amount > 0`
	args = args[:0]
	dateFilter("t.transaction_date", dr, &monthly, &args)
	monthly += " GROUP BY month, pm.person_name ORDER BY month DESC, total DESC"

	mrows, err := r.db.QueryContext(ctx, r.d.rebind(monthly), args...)
	if err != nil {
		return stats, fmt.Errorf("monthly contributions: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var mpt core.MonthPersonTotal
		if err := mrows.Scan(&mpt.Month, &mpt.PersonName, &mpt.Total); err != nil {
			return stats, fmt.Errorf("scan month person total: %w", err)
		}
		stats.MonthlyByPerson = append(stats.MonthlyByPerson, mpt)
	}
	return stats, mrows.Err()
}
