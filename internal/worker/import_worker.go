// Package worker ingests CSV statements in the background. It consumes
// import jobs from AMQP and, independently, sweeps the scraper's
// download directory on a timer so files land in the store even when
// nobody asked.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bankdash/internal/amqp"
	"bankdash/internal/core"
	"bankdash/internal/importer"
)

// TransactionInserter is the only store capability the worker needs.
type TransactionInserter interface {
	InsertTransactions(ctx context.Context, txns []core.Transaction) (inserted, skipped int, err error)
}

type ImportWorker struct {
	store       TransactionInserter
	client      *amqp.Client
	downloadDir string
}

func NewImportWorker(store TransactionInserter, client *amqp.Client, downloadDir string) *ImportWorker {
	return &ImportWorker{
		store:       store,
		client:      client,
		downloadDir: downloadDir,
	}
}

// Run starts the AMQP consumer and the directory sweeper and blocks
// until ctx is cancelled or either loop fails.
func (w *ImportWorker) Run(ctx context.Context, scanInterval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.client != nil {
		g.Go(func() error {
			return w.client.ConsumeImportJobs(ctx, func(msg *amqp.ImportJobMessage) error {
				return w.HandleImportJob(ctx, msg)
			})
		})
	}

	g.Go(func() error {
		return w.sweepLoop(ctx, scanInterval)
	})

	return g.Wait()
}

// HandleImportJob processes one job. A job naming a file imports that
// file; a job without one triggers a directory sweep.
func (w *ImportWorker) HandleImportJob(ctx context.Context, msg *amqp.ImportJobMessage) error {
	if msg.CSVPath != "" {
		return w.importFile(ctx, msg.CSVPath)
	}

	slog.InfoContext(ctx, "Job requested directory sweep",
		"job_id", msg.JobID, "dir", w.downloadDir)
	return w.sweep(ctx)
}

func (w *ImportWorker) sweepLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping download sweep", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				// Keep sweeping on errors: the file stays put and the
				// next tick retries it.
				slog.ErrorContext(ctx, "Download sweep failed", "error", err)
			}
		}
	}
}

// sweep imports every CSV waiting in the download directory and moves
// each successfully imported file to processed/.
func (w *ImportWorker) sweep(ctx context.Context) error {
	files, err := importer.Scan(w.downloadDir)
	if err != nil {
		return fmt.Errorf("scan download dir: %w", err)
	}

	for _, f := range files {
		if err := w.importFile(ctx, f.Path); err != nil {
			slog.ErrorContext(ctx, "Import failed, leaving file in place",
				"file", f.Name, "error", err)
			continue
		}
		if err := importer.MarkProcessed(w.downloadDir, f.Name); err != nil {
			return fmt.Errorf("mark %s processed: %w", f.Name, err)
		}
	}
	return nil
}

func (w *ImportWorker) importFile(ctx context.Context, path string) error {
	batch, err := importer.ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	inserted, skipped, err := w.store.InsertTransactions(ctx, batch.Transactions)
	if err != nil {
		return fmt.Errorf("store transactions from %s: %w", path, err)
	}

	slog.InfoContext(ctx, "Statement imported",
		"file", path,
		"inserted", inserted,
		"skipped", skipped,
		"rows_skipped", batch.RowsSkipped)
	return nil
}
