package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bankdash/internal/core"
)

func newStatsCommand() *cobra.Command {
	var startDate, endDate string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show transaction statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(core.DateRange{Start: startDate, End: endDate})
		},
	}

	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (YYYY-MM-DD)")

	return cmd
}

func runStats(dr core.DateRange) error {
	_, repo, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	stats, err := repo.Statistics(context.Background(), dr)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Transaction Statistics ===")
	summary := tablewriter.NewWriter(os.Stdout)
	summary.SetHeader([]string{"Metric", "Value"})
	summary.Append([]string{"Total Transactions", strconv.Itoa(stats.TotalTransactions)})
	summary.Append([]string{"Total Deposits", dollars(stats.TotalDeposits)})
	summary.Append([]string{"Total Withdrawals", dollars(stats.TotalWithdrawals)})
	summary.Append([]string{"Net Change", dollars(stats.NetChange)})
	summary.Append([]string{"Average", dollars(stats.AvgTransaction)})
	summary.Append([]string{"Date Range", dateBounds(stats.EarliestDate, stats.LatestDate)})
	summary.Render()

	if len(stats.DepositsBySource) > 0 {
		fmt.Println("\n=== Top Deposit Sources ===")
		sources := tablewriter.NewWriter(os.Stdout)
		sources.SetHeader([]string{"Source", "Total", "Count"})
		for i, src := range stats.DepositsBySource {
			if i == 5 {
				break
			}
			sources.Append([]string{src.Source, dollars(src.Total), strconv.Itoa(src.Count)})
		}
		sources.Render()
	}

	if len(stats.MonthlyBreakdown) > 0 {
		fmt.Println("\n=== Recent Monthly Breakdown ===")
		months := tablewriter.NewWriter(os.Stdout)
		months.SetHeader([]string{"Month", "Deposits", "Withdrawals", "Net"})
		for i, m := range stats.MonthlyBreakdown {
			if i == 6 {
				break
			}
			months.Append([]string{m.Month, dollars(m.Deposits), dollars(m.Withdrawals), dollars(m.Net)})
		}
		months.Render()
	}

	return nil
}

func dollars(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func dateBounds(earliest, latest *string) string {
	if earliest == nil || latest == nil {
		return "-"
	}
	return *earliest + " to " + *latest
}
