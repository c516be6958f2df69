package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/wcharczuk/go-chart/v2"

	"bankdash/internal/project"
)

func newProjectCommand() *cobra.Command {
	var (
		balance        string
		months         int
		minOccurrences int
		chartPath      string
	)

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project future balances from recurring transaction history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := decimal.NewFromString(balance)
			if err != nil {
				return fmt.Errorf("invalid --balance %q", balance)
			}
			return runProject(current, months, minOccurrences, chartPath)
		},
	}

	cmd.Flags().StringVar(&balance, "balance", "", "current balance (required)")
	_ = cmd.MarkFlagRequired("balance")
	cmd.Flags().IntVar(&months, "months", 12, "months to project")
	cmd.Flags().IntVar(&minOccurrences, "min-occurrences", 3, "occurrences required for a recurring flow")
	cmd.Flags().StringVar(&chartPath, "chart", "", "write a balance trajectory PNG to this path")

	return cmd
}

func runProject(currentBalance decimal.Decimal, months, minOccurrences int, chartPath string) error {
	_, repo, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	txns, err := repo.ListTransactions(context.Background(), 0, 0)
	if err != nil {
		return err
	}

	deposits, withdrawals := project.AnalyzeRecurring(txns, minOccurrences)
	result := project.Calculate(currentBalance, months, deposits, withdrawals)

	fmt.Printf("\n=== Recurring Flows (%d deposits, %d withdrawals) ===\n", len(deposits), len(withdrawals))
	flows := tablewriter.NewWriter(os.Stdout)
	flows.SetHeader([]string{"Type", "Description", "Amount", "Frequency", "Seen"})
	for _, d := range deposits {
		flows.Append([]string{"deposit", truncate(d.Description, 40), "$" + d.Amount.StringFixed(2), string(d.Frequency), strconv.Itoa(d.Occurrences)})
	}
	for _, w := range withdrawals {
		flows.Append([]string{"withdrawal", truncate(w.Description, 40), "$" + w.Amount.StringFixed(2), string(w.Frequency), strconv.Itoa(w.Occurrences)})
	}
	flows.Render()

	fmt.Println("\n=== Projection ===")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Month", "Deposits", "Withdrawals", "Net", "Balance"})
	for _, p := range result.Projections {
		table.Append([]string{
			p.MonthName,
			"$" + p.Deposits.StringFixed(2),
			"$" + p.Withdrawals.StringFixed(2),
			"$" + p.NetChange.StringFixed(2),
			"$" + p.ProjectedBalance.StringFixed(2),
		})
	}
	table.Render()

	s := result.Summary
	fmt.Printf("\nTrend: %s, monthly net $%s, final balance $%s\n",
		s.Trend, s.MonthlyNet.StringFixed(2), s.FinalBalance.StringFixed(2))
	if s.MonthsUntilZero != nil {
		fmt.Printf("Balance reaches zero in ~%d months\n", *s.MonthsUntilZero)
	}

	if chartPath != "" {
		if err := renderChart(result, chartPath); err != nil {
			return fmt.Errorf("render chart: %w", err)
		}
		fmt.Printf("Chart written to %s\n", chartPath)
	}
	return nil
}

// renderChart plots the projected balance trajectory as a PNG.
func renderChart(result project.Result, path string) error {
	xs := make([]time.Time, 0, len(result.Projections))
	ys := make([]float64, 0, len(result.Projections))
	for _, p := range result.Projections {
		month, err := time.Parse("2006-01", p.Month)
		if err != nil {
			return fmt.Errorf("parse month %q: %w", p.Month, err)
		}
		xs = append(xs, month)
		ys = append(ys, p.ProjectedBalance.InexactFloat64())
	}

	graph := chart.Chart{
		Title:  "Projected balance",
		Width:  900,
		Height: 400,
		XAxis:  chart.XAxis{ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01")},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "balance",
				XValues: xs,
				YValues: ys,
			},
		},
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return graph.Render(chart.PNG, f)
}
