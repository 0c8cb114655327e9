package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/BorisDmv/post-store/internal/models"
)

// ErrNotFound is returned when an operation targets a post that does not exist.
var ErrNotFound = errors.New("post not found")

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// PostStore persists posts and keeps their search index consistent with
// title and content: every Create and Update recomputes the index inside
// the same transaction as the row write.
type PostStore interface {
	Create(ctx context.Context, in models.PostInput) (*models.Post, error)
	Update(ctx context.Context, id string, in models.PostInput) (*models.Post, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Post, error)
	// List returns one page of posts ordered newest first, ties broken by id,
	// and the total number of rows matching the query filters.
	List(ctx context.Context, q models.ListQuery) ([]models.Post, int, error)
	// Search returns one page of posts matching a web-search style query,
	// most relevant first, and the total number of matches. A query without
	// searchable terms yields no results and no error.
	Search(ctx context.Context, query string, page models.Pagination) ([]models.SearchHit, int, error)
	// Reindex recomputes the search index of every post.
	Reindex(ctx context.Context) error
	Migrate(ctx context.Context) error
	// Rollback drops everything Migrate creates, posts included.
	Rollback(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store named by databaseURL. postgres:// and
// postgresql:// URLs select PostgreSQL; sqlite://<path> selects an embedded
// SQLite database (sqlite://:memory: for a throwaway one).
func Open(ctx context.Context, databaseURL string) (PostStore, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewStore(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported database url %q", redactURL(databaseURL))
	}
}

// canonicalID returns the canonical form of a post id, or ErrNotFound when
// id cannot name any post.
func canonicalID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrNotFound
	}
	return parsed.String(), nil
}

func redactURL(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		return u[:i] + "://..."
	}
	return "..."
}
