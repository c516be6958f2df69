package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bankdash/internal/core"
)

func newListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of transactions to show")

	return cmd
}

func runList(limit int) error {
	_, repo, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	txns, err := repo.ListTransactions(context.Background(), limit, 0)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		fmt.Println("No transactions found")
		return nil
	}

	fmt.Printf("\n=== Recent %d Transactions ===\n", len(txns))
	renderTransactions(txns, true)
	return nil
}

func renderTransactions(txns []core.Transaction, withBalance bool) {
	table := tablewriter.NewWriter(os.Stdout)
	if withBalance {
		table.SetHeader([]string{"Date", "Amount", "Balance", "Description"})
	} else {
		table.SetHeader([]string{"Date", "Amount", "Description"})
	}

	for _, t := range txns {
		amount := "$" + t.Amount.StringFixed(2)
		desc := truncate(t.Description, 50)
		if withBalance {
			balance := "-"
			if t.Balance.Valid {
				balance = "$" + t.Balance.Decimal.StringFixed(2)
			}
			table.Append([]string{t.Date, amount, balance, desc})
		} else {
			table.Append([]string{t.Date, amount, desc})
		}
	}
	table.Render()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
