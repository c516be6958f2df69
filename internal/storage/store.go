// Package storage persists transactions, person mappings, and users, and
// answers the aggregate queries the dashboard is built on. It enforces
// the store's one hard invariant: no two transactions share the same
// (date, description, amount) triple.
package storage

import (
	"context"
	"strconv"
	"strings"

	"bankdash/internal/core"
)

// Store is the persistence contract consumed by the HTTP layer, the
// import worker, and the CLI.
type Store interface {
	// InsertTransactions inserts a batch with per-row isolation: a
	// duplicate row is counted as skipped and never rolls back its
	// siblings.
	InsertTransactions(ctx context.Context, txns []core.Transaction) (inserted, skipped int, err error)
	ListTransactions(ctx context.Context, limit, offset int) ([]core.Transaction, error)
	SearchTransactions(ctx context.Context, filter core.SearchFilter) ([]core.Transaction, error)
	// UpdateTransaction applies a partial update restricted to the
	// allow-list in core.UpdateFields. Zero fields is a no-op; an
	// unknown id is core.ErrNotFound.
	UpdateTransaction(ctx context.Context, id int64, fields core.UpdateFields) error

	Statistics(ctx context.Context, dr core.DateRange) (core.Statistics, error)
	RecurringTransactions(ctx context.Context, minOccurrences int) ([]core.RecurringPattern, error)
	Categories(ctx context.Context) ([]string, error)
	Sources(ctx context.Context) ([]string, error)

	PersonMappings(ctx context.Context) ([]core.PersonMapping, error)
	AddPersonMapping(ctx context.Context, personName, keyword string) (core.PersonMapping, error)
	DeletePersonMapping(ctx context.Context, id int64) error
	Contributions(ctx context.Context, filter core.ContributionFilter) ([]core.Contribution, error)
	ContributionStatistics(ctx context.Context, dr core.DateRange) (core.ContributionStatistics, error)

	CreateUser(ctx context.Context, authProviderID, email, fullName, role string) (core.User, error)
	GetUserByAuthID(ctx context.Context, authProviderID string) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	UpdateUserRole(ctx context.Context, authProviderID, role string) error
	TouchLastLogin(ctx context.Context, authProviderID string) error
	ListUsers(ctx context.Context) ([]core.User, error)

	Close() error
}

// dialect covers the few spots where SQLite and Postgres SQL diverge.
type dialect struct {
	name string
	// likeOp is the case-insensitive substring operator. SQLite's LIKE
	// is already case-insensitive for ASCII; Postgres needs ILIKE.
	likeOp string
	// dollarParams rewrites ? placeholders to $1..$n for Postgres.
	dollarParams bool
}

var (
	sqliteDialect   = dialect{name: "sqlite", likeOp: "LIKE"}
	postgresDialect = dialect{name: "postgres", likeOp: "ILIKE", dollarParams: true}
)

// rebind converts ?-style placeholders when the dialect requires it.
// Queries here never contain a literal question mark.
func (d dialect) rebind(query string) string {
	if !d.dollarParams {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
