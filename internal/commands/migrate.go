package commands

import (
	"time"

	"github.com/spf13/cobra"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the posts schema",
	Long: `Create the posts table, its indexes and the search index triggers.
Running it against an up-to-date database changes nothing.

With --down, drop the triggers, the search index and the posts table,
deleting every post.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, logger, store, err := setup(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		start := time.Now()
		if migrateDown {
			if err := store.Rollback(ctx); err != nil {
				return err
			}
			logger.Info("rollback complete", "duration", time.Since(start))
			return nil
		}
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("migration complete", "duration", time.Since(start))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Drop the posts schema instead of creating it")
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Recompute the search index of every post",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, logger, store, err := setup(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		start := time.Now()
		if err := store.Reindex(ctx); err != nil {
			return err
		}
		logger.Info("reindex complete", "duration", time.Since(start))
		return nil
	},
}
