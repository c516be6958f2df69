package project

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bankdash/internal/core"
)

// AnalyzeRecurring infers recurring cash-flow templates from historical
// transactions by grouping on exact description. Groups below
// minOccurrences are discarded; frequency is classified from the mean
// gap between occurrences. Results are sorted by amount descending.
func AnalyzeRecurring(transactions []core.Transaction, minOccurrences int) (deposits, withdrawals []RecurringFlow) {
	depositGroups := make(map[string][]core.Transaction)
	withdrawalGroups := make(map[string][]core.Transaction)

	for _, t := range transactions {
		if t.IsDeposit() {
			depositGroups[t.Description] = append(depositGroups[t.Description], t)
		} else {
			withdrawalGroups[t.Description] = append(withdrawalGroups[t.Description], t)
		}
	}

	deposits = summarizeGroups(depositGroups, minOccurrences, false)
	withdrawals = summarizeGroups(withdrawalGroups, minOccurrences, true)
	return deposits, withdrawals
}

func summarizeGroups(groups map[string][]core.Transaction, minOccurrences int, normalizeSign bool) []RecurringFlow {
	var flows []RecurringFlow
	for description, txns := range groups {
		if len(txns) < minOccurrences {
			continue
		}

		total := decimal.Zero
		for _, t := range txns {
			amt := t.Amount
			if normalizeSign {
				amt = amt.Abs()
			}
			total = total.Add(amt)
		}
		avg := total.Div(decimal.NewFromInt(int64(len(txns))))

		flows = append(flows, RecurringFlow{
			Description: description,
			Amount:      avg,
			Frequency:   classifyFrequency(txns),
			Occurrences: len(txns),
		})
	}

	sort.Slice(flows, func(i, j int) bool {
		if !flows[i].Amount.Equal(flows[j].Amount) {
			return flows[i].Amount.GreaterThan(flows[j].Amount)
		}
		return flows[i].Description < flows[j].Description
	})
	return flows
}

// classifyFrequency buckets the mean day gap between occurrences.
// A single usable date means there is nothing to measure; assume monthly.
func classifyFrequency(txns []core.Transaction) Frequency {
	var dates []time.Time
	for _, t := range txns {
		if d, err := time.Parse(core.ISODate, t.Date); err == nil {
			dates = append(dates, d)
		}
	}
	if len(dates) < 2 {
		return Monthly
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var totalDays float64
	for i := 1; i < len(dates); i++ {
		totalDays += dates[i].Sub(dates[i-1]).Hours() / 24
	}
	avgGap := totalDays / float64(len(dates)-1)

	switch {
	case avgGap <= 10:
		return Weekly
	case avgGap <= 17:
		return Biweekly
	case avgGap <= 35:
		return Monthly
	case avgGap <= 100:
		return Quarterly
	default:
		return Yearly
	}
}
