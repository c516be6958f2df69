// Package project simulates future balance trajectories from recurring
// cash-flow templates. It holds no state and reads no history: the
// projection is a pure function of the starting balance and the
// templates handed in.
package project

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency of a recurring cash flow.
type Frequency string

const (
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

var twelve = decimal.NewFromInt(12)

// PerMonth converts the frequency to occurrences per month. Unknown
// frequencies count as monthly.
func (f Frequency) PerMonth() decimal.Decimal {
	switch f {
	case Weekly:
		return decimal.NewFromInt(52).Div(twelve)
	case Biweekly:
		return decimal.NewFromInt(26).Div(twelve)
	case Quarterly:
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(3))
	case Yearly:
		return decimal.NewFromInt(1).Div(twelve)
	default:
		return decimal.NewFromInt(1)
	}
}

// RecurringFlow is a forward-looking cash-flow template, independent of
// any stored transaction.
type RecurringFlow struct {
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Frequency   Frequency       `json:"frequency"`
	Occurrences int             `json:"occurrences,omitempty"`
}

// MonthProjection is one row of the projected trajectory. Month 0 is the
// current month: no accrual, just the starting balance.
type MonthProjection struct {
	Month            string          `json:"month"`
	MonthName        string          `json:"month_name"`
	Deposits         decimal.Decimal `json:"deposits"`
	Withdrawals      decimal.Decimal `json:"withdrawals"`
	NetChange        decimal.Decimal `json:"net_change"`
	ProjectedBalance decimal.Decimal `json:"projected_balance"`
}

// Summary aggregates the whole projection window.
type Summary struct {
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	FinalBalance     decimal.Decimal `json:"final_balance"`
	TotalChange      decimal.Decimal `json:"total_change"`
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	MonthlyNet       decimal.Decimal `json:"monthly_net"`
	Trend            string          `json:"trend"`
	MonthsUntilZero  *int64          `json:"months_until_zero"`
}

// Result bundles the trajectory with its summary and echoes the inputs.
type Result struct {
	Projections          []MonthProjection `json:"projections"`
	Summary              Summary           `json:"summary"`
	RecurringDeposits    []RecurringFlow   `json:"recurring_deposits"`
	RecurringWithdrawals []RecurringFlow   `json:"recurring_withdrawals"`
}

// Calculate projects the balance months steps ahead given recurring
// deposits and withdrawals. Withdrawal amounts are sign-normalized, so
// callers may pass them positive or negative.
func Calculate(currentBalance decimal.Decimal, months int, deposits, withdrawals []RecurringFlow) Result {
	return calculateAt(time.Now(), currentBalance, months, deposits, withdrawals)
}

func calculateAt(now time.Time, currentBalance decimal.Decimal, months int, deposits, withdrawals []RecurringFlow) Result {
	monthlyDeposits := decimal.Zero
	for _, d := range deposits {
		monthlyDeposits = monthlyDeposits.Add(d.Amount.Mul(d.Frequency.PerMonth()))
	}

	monthlyWithdrawals := decimal.Zero
	for _, w := range withdrawals {
		monthlyWithdrawals = monthlyWithdrawals.Add(w.Amount.Abs().Mul(w.Frequency.PerMonth()))
	}

	monthlyNet := monthlyDeposits.Sub(monthlyWithdrawals)

	base := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	balance := currentBalance

	projections := make([]MonthProjection, 0, months+1)
	for i := 0; i <= months; i++ {
		month := base.AddDate(0, i, 0)

		p := MonthProjection{
			Month:            month.Format("2006-01"),
			MonthName:        month.Format("January 2006"),
			Deposits:         decimal.Zero,
			Withdrawals:      decimal.Zero,
			NetChange:        decimal.Zero,
			ProjectedBalance: balance,
		}
		if i > 0 {
			p.Deposits = monthlyDeposits
			p.Withdrawals = monthlyWithdrawals
			p.NetChange = monthlyNet
		}
		projections = append(projections, p)

		if i < months {
			balance = balance.Add(monthlyNet)
		}
	}

	nMonths := decimal.NewFromInt(int64(months))
	summary := Summary{
		CurrentBalance:   currentBalance,
		FinalBalance:     balance,
		TotalChange:      balance.Sub(currentBalance),
		TotalDeposits:    monthlyDeposits.Mul(nMonths),
		TotalWithdrawals: monthlyWithdrawals.Mul(nMonths),
		MonthlyNet:       monthlyNet,
		Trend:            trend(monthlyNet),
	}

	if monthlyNet.IsNegative() && currentBalance.IsPositive() {
		n := currentBalance.Div(monthlyNet.Abs()).IntPart()
		summary.MonthsUntilZero = &n
	}

	return Result{
		Projections:          projections,
		Summary:              summary,
		RecurringDeposits:    deposits,
		RecurringWithdrawals: withdrawals,
	}
}

func trend(monthlyNet decimal.Decimal) string {
	switch {
	case monthlyNet.IsPositive():
		return "positive"
	case monthlyNet.IsNegative():
		return "negative"
	default:
		return "neutral"
	}
}
