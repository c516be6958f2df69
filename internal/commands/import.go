package commands

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bankdash/internal/importer"
)

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <csv-file> [csv-file...]",
		Short: "Import one or more CSV statements",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args)
		},
	}
}

func runImport(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("file not found: %s", p)
		}
	}

	_, repo, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	var inserted, skipped, rowsSkipped atomic.Int64

	// Parsing is parallel; the store serializes inserts itself.
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, path := range paths {
		g.Go(func() error {
			batch, err := importer.ParseFile(path)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			ins, skp, err := repo.InsertTransactions(ctx, batch.Transactions)
			if err != nil {
				return fmt.Errorf("import %s: %w", path, err)
			}
			inserted.Add(int64(ins))
			skipped.Add(int64(skp))
			rowsSkipped.Add(int64(batch.RowsSkipped))
			fmt.Printf("%s: %d new, %d duplicates\n", path, ins, skp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\nImport complete: %d new transactions, %d duplicates skipped", inserted.Load(), skipped.Load())
	if n := rowsSkipped.Load(); n > 0 {
		fmt.Printf(", %d malformed rows ignored", n)
	}
	fmt.Println()
	return nil
}
