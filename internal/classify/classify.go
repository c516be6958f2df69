// Package classify assigns category and source labels to transactions
// from their statement description. Rules are ordered priority lists:
// the first matching keyword wins, so "ATM WITHDRAWAL GROCERY" is
// ATM/Cash, not Groceries.
package classify

import (
	"strings"

	"github.com/shopspring/decimal"
)

type rule struct {
	keywords []string
	category string
}

var depositRules = []rule{
	{[]string{"direct dep", "deposit", "payroll", "salary"}, "Income"},
	{[]string{"transfer", "xfer"}, "Transfer In"},
	{[]string{"interest", "dividend"}, "Interest/Dividend"},
}

var withdrawalRules = []rule{
	{[]string{"atm", "withdrawal"}, "ATM/Cash"},
	{[]string{"grocery", "supermarket", "food"}, "Groceries"},
	{[]string{"gas", "fuel", "shell", "exxon", "chevron"}, "Gas/Fuel"},
	{[]string{"restaurant", "cafe", "coffee"}, "Dining"},
	{[]string{"utility", "electric", "gas", "water"}, "Utilities"},
	{[]string{"transfer", "xfer"}, "Transfer Out"},
	{[]string{"check", "cheque"}, "Check"},
	{[]string{"fee", "charge"}, "Fees"},
}

const maxSourceLen = 50

// Classify returns the (category, source) labels for a transaction.
// Deterministic: same inputs always yield the same labels.
func Classify(description string, amount decimal.Decimal) (string, string) {
	return Category(description, amount), Source(description, amount)
}

// Category matches the description against the deposit or withdrawal
// rule list depending on the amount's sign. Zero amounts classify as
// withdrawals.
func Category(description string, amount decimal.Decimal) string {
	lower := strings.ToLower(description)

	rules, fallback := withdrawalRules, "Other Expense"
	if amount.IsPositive() {
		rules, fallback = depositRules, "Other Income"
	}
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category
			}
		}
	}
	return fallback
}

// Source extracts a payee or income-source label from the description.
func Source(description string, amount decimal.Decimal) string {
	if amount.IsPositive() {
		lower := strings.ToLower(description)
		switch {
		case strings.Contains(lower, "direct dep") || strings.Contains(lower, "payroll"):
			// Words 3-4 of the description usually carry the company name.
			words := strings.Fields(description)
			if len(words) > 2 {
				end := min(len(words), 4)
				return strings.Join(words[2:end], " ")
			}
			return "Payroll"
		case strings.Contains(lower, "transfer"):
			return "Transfer"
		case strings.Contains(lower, "interest"):
			return "Interest"
		default:
			return "Other"
		}
	}

	// For withdrawals the merchant is whatever precedes the first dash.
	src := strings.TrimSpace(strings.SplitN(description, "-", 2)[0])
	if len(src) > maxSourceLen {
		src = src[:maxSourceLen]
	}
	return src
}
