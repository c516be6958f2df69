package commands

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bankdash/internal/amqp"
	"bankdash/internal/auth"
	apphttp "bankdash/internal/http"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, repo, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	slog.Info("Store opened", "backend", repo.Backend())

	// The import queue is optional: without a broker the API still
	// serves everything except POST /api/scrape.
	var jobs apphttp.JobPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			slog.Warn("AMQP unavailable, scrape endpoint disabled", "error", err)
		} else {
			jobs = amqpClient
			defer amqpClient.Close()
		}
	}

	authmw := auth.NewMiddleware(auth.NewJWKSCache(cfg.AuthJWKSURL), repo, cfg.DevMode)
	if cfg.AuthJWKSURL == "" && cfg.DevMode {
		slog.Warn("Auth bypass active: no JWKS URL configured and dev mode is on")
	}

	srv := apphttp.NewServer(":"+cfg.Port, repo, jobs, authmw)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	slog.Info("Starting bankdash server", "port", cfg.Port, "backend", repo.Backend())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-ctx.Done()
	slog.Info("Server stopped gracefully")
	return nil
}
