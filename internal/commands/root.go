// Package commands defines the bankdash CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"bankdash/internal/config"
	"bankdash/internal/storage"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bankdash",
		Short: "Personal finance dashboard over bank statement exports",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newImportCommand(),
		newStatsCommand(),
		newListCommand(),
		newSearchCommand(),
		newProjectCommand(),
		newMakeAdminCommand(),
	)

	return rootCmd
}

// openStore loads configuration and opens whichever backend it selects.
func openStore() (*config.Config, *storage.Repository, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	repo, err := storage.Open(cfg.DatabaseURL, cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, repo, nil
}
