package commands

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bankdash/internal/core"
)

func newSearchCommand() *cobra.Command {
	var startDate, endDate, category, source string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search transactions by description or notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := core.SearchFilter{
				Term:     args[0],
				Range:    core.DateRange{Start: startDate, End: endDate},
				Category: category,
				Source:   source,
			}
			return runSearch(filter)
		},
	}

	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&source, "source", "", "filter by source")

	return cmd
}

func runSearch(filter core.SearchFilter) error {
	_, repo, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	txns, err := repo.SearchTransactions(context.Background(), filter)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		fmt.Println("No transactions found matching your search")
		return nil
	}

	fmt.Printf("\n=== Found %d Transactions ===\n", len(txns))
	renderTransactions(txns, false)

	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.Amount)
	}
	fmt.Printf("\nTotal: $%s\n", total.StringFixed(2))
	return nil
}
