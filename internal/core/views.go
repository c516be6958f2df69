package core

import "github.com/shopspring/decimal"

// DateRange is an optional inclusive [Start, End] filter. Empty strings
// leave the corresponding bound open.
type DateRange struct {
	Start string
	End   string
}

func (r DateRange) Validate() error {
	if r.Start != "" && !IsISODate(r.Start) {
		return ErrInvalidDate
	}
	if r.End != "" && !IsISODate(r.End) {
		return ErrInvalidDate
	}
	return nil
}

// SearchFilter narrows transaction queries. Zero values mean "no filter".
type SearchFilter struct {
	Term      string
	Range     DateRange
	Category  string
	Source    string
	MinAmount decimal.NullDecimal
	MaxAmount decimal.NullDecimal
}

// UpdateFields is the allow-list of mutable transaction fields for a
// partial update. Nil pointers leave the field untouched; updating zero
// fields is a no-op, not an error.
type UpdateFields struct {
	Category    *string `json:"category"`
	Source      *string `json:"source"`
	Notes       *string `json:"notes"`
	Description *string `json:"description"`
}

// IsZero reports whether no field would change.
func (u UpdateFields) IsZero() bool {
	return u.Category == nil && u.Source == nil && u.Notes == nil && u.Description == nil
}

// SourceTotal is a deposits-by-source breakdown row.
type SourceTotal struct {
	Source string  `json:"source"`
	Total  float64 `json:"total"`
	Count  int     `json:"count"`
}

// MonthTotal is a calendar-month (YYYY-MM) breakdown row.
type MonthTotal struct {
	Month       string  `json:"month"`
	Deposits    float64 `json:"deposits"`
	Withdrawals float64 `json:"withdrawals"`
	Net         float64 `json:"net"`
}

// CategoryTotal is a by-category breakdown row.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// Statistics summarizes a transaction set. On an empty set all sums are
// zero and the date bounds are null.
type Statistics struct {
	TotalTransactions int             `json:"total_transactions"`
	TotalDeposits     float64         `json:"total_deposits"`
	TotalWithdrawals  float64         `json:"total_withdrawals"`
	NetChange         float64         `json:"net_change"`
	AvgTransaction    float64         `json:"avg_transaction"`
	EarliestDate      *string         `json:"earliest_date"`
	LatestDate        *string         `json:"latest_date"`
	DepositsBySource  []SourceTotal   `json:"deposits_by_source"`
	MonthlyBreakdown  []MonthTotal    `json:"monthly_breakdown"`
	ByCategory        []CategoryTotal `json:"by_category"`
}

// RecurringPattern is a description string seen at least N times,
// summarized by its amount spread. Matching is exact, not fuzzy.
type RecurringPattern struct {
	Description string  `json:"description"`
	Occurrences int     `json:"occurrences"`
	AvgAmount   float64 `json:"avg_amount"`
	MinAmount   float64 `json:"min_amount"`
	MaxAmount   float64 `json:"max_amount"`
}

// Contribution is a deposit attributed to a single person. When several
// keywords match, the alphabetically first person name wins.
type Contribution struct {
	TransactionID int64               `json:"id"`
	Date          string              `json:"transaction_date"`
	Description   string              `json:"description"`
	Amount        decimal.Decimal     `json:"amount"`
	Balance       decimal.NullDecimal `json:"balance"`
	PersonName    string              `json:"person_name"`
}

// ContributionFilter narrows attribution queries.
type ContributionFilter struct {
	PersonName string
	Range      DateRange
}

// PersonTotal is a per-person aggregate over the attribution join. Unlike
// Contribution resolution, a deposit matching keywords of two persons
// counts toward both rows here.
type PersonTotal struct {
	PersonName string  `json:"person_name"`
	Total      float64 `json:"total"`
	Count      int     `json:"count"`
}

// MonthPersonTotal is a month x person attribution row.
type MonthPersonTotal struct {
	Month      string  `json:"month"`
	PersonName string  `json:"person_name"`
	Total      float64 `json:"total"`
}

// ContributionStatistics bundles both attribution views.
type ContributionStatistics struct {
	ByPerson        []PersonTotal      `json:"by_person"`
	MonthlyByPerson []MonthPersonTotal `json:"monthly_by_person"`
}
