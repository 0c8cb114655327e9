// Package commands implements the postsd command line.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BorisDmv/post-store/internal/config"
	"github.com/BorisDmv/post-store/internal/db"
	"github.com/BorisDmv/post-store/internal/logging"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:   "postsd",
	Short: "Blog post store with ranked full-text search",
	Long: `postsd serves a JSON API for creating, editing, listing and deleting blog
posts, with web-search style full-text queries ranked by relevance.

Storage is PostgreSQL (postgres://...) or embedded SQLite (sqlite://path),
selected by DATABASE_URL or --database-url.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Database URL (overrides DATABASE_URL)")
	rootCmd.AddCommand(serveCmd, migrateCmd, reindexCmd)
}

// setup loads configuration, builds the logger and opens the store.
func setup(ctx context.Context) (config.Config, *slog.Logger, db.PostStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, nil, err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("db connect failed: %w", err)
	}
	return cfg, logger, store, nil
}
