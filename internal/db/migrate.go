package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// migrationLockKey serialises concurrent Migrate calls across processes.
const migrationLockKey = 7355608

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id UUID PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		content TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'draft'
			CONSTRAINT posts_status_check CHECK (status IN ('draft', 'published')),
		metadata JSONB,
		searchable TSVECTOR,
		slug VARCHAR(255) GENERATED ALWAYS AS (lower(title)) STORED,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS posts_metadata_idx ON posts USING gin (metadata)`,
	`CREATE INDEX IF NOT EXISTS posts_searchable_idx ON posts USING gin (searchable)`,
	`CREATE INDEX IF NOT EXISTS posts_title_lower_idx ON posts (lower(title))`,
	`CREATE INDEX IF NOT EXISTS posts_published_idx ON posts (status) WHERE status = 'published'`,
	`CREATE INDEX IF NOT EXISTS posts_created_idx ON posts (created_at DESC, id DESC)`,
	`CREATE OR REPLACE FUNCTION posts_searchable_trigger() RETURNS trigger AS $$
	BEGIN
		NEW.searchable := to_tsvector('english', coalesce(NEW.title, '') || ' ' || coalesce(NEW.content, ''));
		RETURN NEW;
	END
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS posts_searchable_update ON posts`,
	`CREATE TRIGGER posts_searchable_update
		BEFORE INSERT OR UPDATE ON posts
		FOR EACH ROW
		EXECUTE FUNCTION posts_searchable_trigger()`,
}

var pgSchemaDown = []string{
	`DROP TRIGGER IF EXISTS posts_searchable_update ON posts`,
	`DROP FUNCTION IF EXISTS posts_searchable_trigger()`,
	`DROP TABLE IF EXISTS posts`,
}

// Migrate creates the posts table, its indexes and the trigger that keeps
// the searchable column in sync. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.runLocked(ctx, pgSchema); err != nil {
		return storageErr("migrate", err)
	}
	return nil
}

// Rollback drops the trigger, its function and the posts table with its
// indexes.
func (s *Store) Rollback(ctx context.Context) error {
	if err := s.runLocked(ctx, pgSchemaDown); err != nil {
		return storageErr("rollback", err)
	}
	return nil
}

func (s *Store) runLocked(ctx context.Context, stmts []string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(migrationLockKey)); err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
