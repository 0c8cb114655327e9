package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/BorisDmv/post-store/internal/models"
)

// sqliteTime is fixed width so timestamps sort lexically in time order.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements PostStore on an embedded SQLite database. The
// search index is an FTS5 external-content table maintained by triggers
// that run inside the writing transaction.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ PostStore = (*SQLiteStore)(nil)

type SQLiteOption func(*SQLiteStore)

// WithClock overrides the source of created_at/updated_at timestamps.
func WithClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore opens (or creates) the database at path.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("open sqlite %q", path), err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, storageErr("configure sqlite", err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		seq        INTEGER PRIMARY KEY,
		id         TEXT NOT NULL UNIQUE,
		title      TEXT NOT NULL CHECK (length(title) BETWEEN 1 AND 255),
		content    TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'published')),
		metadata   TEXT CHECK (metadata IS NULL OR json_valid(metadata)),
		slug       TEXT GENERATED ALWAYS AS (lower(title)) STORED,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS posts_title_lower_idx ON posts (lower(title))`,
	`CREATE INDEX IF NOT EXISTS posts_published_idx ON posts (status) WHERE status = 'published'`,
	`CREATE INDEX IF NOT EXISTS posts_author_idx ON posts (json_extract(metadata, '$.author'))`,
	`CREATE INDEX IF NOT EXISTS posts_created_idx ON posts (created_at DESC, id DESC)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts USING fts5(
		title, content, content='posts', content_rowid='seq', tokenize='porter unicode61'
	)`,
	`CREATE TRIGGER IF NOT EXISTS posts_fts_insert AFTER INSERT ON posts BEGIN
		INSERT INTO posts_fts(rowid, title, content) VALUES (new.seq, new.title, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS posts_fts_delete AFTER DELETE ON posts BEGIN
		INSERT INTO posts_fts(posts_fts, rowid, title, content) VALUES ('delete', old.seq, old.title, old.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS posts_fts_update AFTER UPDATE ON posts BEGIN
		INSERT INTO posts_fts(posts_fts, rowid, title, content) VALUES ('delete', old.seq, old.title, old.content);
		INSERT INTO posts_fts(rowid, title, content) VALUES (new.seq, new.title, new.content);
	END`,
}

var sqliteSchemaDown = []string{
	`DROP TRIGGER IF EXISTS posts_fts_update`,
	`DROP TRIGGER IF EXISTS posts_fts_delete`,
	`DROP TRIGGER IF EXISTS posts_fts_insert`,
	`DROP TABLE IF EXISTS posts_fts`,
	`DROP TABLE IF EXISTS posts`,
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := s.execAll(ctx, sqliteSchema); err != nil {
		return storageErr("migrate", err)
	}
	return nil
}

func (s *SQLiteStore) Rollback(ctx context.Context) error {
	if err := s.execAll(ctx, sqliteSchemaDown); err != nil {
		return storageErr("rollback", err)
	}
	return nil
}

func (s *SQLiteStore) execAll(ctx context.Context, stmts []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func sqliteColumns(prefix string) string {
	cols := []string{"id", "title", "content", "status", "metadata", "slug", "created_at", "updated_at"}
	for i, c := range cols {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePost(row rowScanner, extra ...any) (*models.Post, error) {
	var (
		post                 models.Post
		metadata             sql.NullString
		createdAt, updatedAt string
	)
	dest := []any{
		&post.ID,
		&post.Title,
		&post.Content,
		&post.Status,
		&metadata,
		&post.Slug,
		&createdAt,
		&updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	post.Metadata = models.Metadata{}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &post.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	var err error
	if post.CreatedAt, err = time.Parse(sqliteTime, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if post.UpdatedAt, err = time.Parse(sqliteTime, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &post, nil
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(sqliteTime)
}

func (s *SQLiteStore) Create(ctx context.Context, in models.PostInput) (*models.Post, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, storageErr("encode metadata", err)
	}

	query := `
		INSERT INTO posts (id, title, content, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + sqliteColumns("")

	now := s.timestamp()
	var created *models.Post
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = scanSQLitePost(tx.QueryRowContext(ctx, query,
			uuid.NewString(), in.Title, in.Content, string(in.Status), string(metadata), now, now))
		return err
	})
	if err != nil {
		return nil, storageErr("create post", err)
	}
	return created, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, in models.PostInput) (*models.Post, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	id, err = canonicalID(id)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, storageErr("encode metadata", err)
	}

	query := `
		UPDATE posts
		SET title = ?, content = ?, status = ?, metadata = ?, updated_at = ?
		WHERE id = ?
		RETURNING ` + sqliteColumns("")

	var updated *models.Post
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = scanSQLitePost(tx.QueryRowContext(ctx, query,
			in.Title, in.Content, string(in.Status), string(metadata), s.timestamp(), id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("update post", err)
	}
	return updated, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	id, err := canonicalID(id)
	if err != nil {
		return err
	}

	var affected int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return storageErr("delete post", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Post, error) {
	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}
	post, err := scanSQLitePost(s.db.QueryRowContext(ctx,
		"SELECT "+sqliteColumns("")+" FROM posts WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get post", err)
	}
	return post, nil
}

func sqliteListFilter(q models.ListQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Tag != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(posts.metadata, '$.tags') WHERE json_each.value = ?)")
		args = append(args, q.Tag)
	}
	if q.Author != "" {
		conds = append(conds, "json_extract(metadata, '$.author') = ?")
		args = append(args, q.Author)
	}
	if q.Title != "" {
		conds = append(conds, "lower(title) = lower(?)")
		args = append(args, q.Title)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLiteStore) List(ctx context.Context, q models.ListQuery) ([]models.Post, int, error) {
	page := q.Pagination.Normalize()
	where, args := sqliteListFilter(q)

	listQuery := "SELECT " + sqliteColumns("") + " FROM posts" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, listQuery, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, storageErr("list posts", err)
	}

	posts := make([]models.Post, 0, page.PageSize)
	for rows.Next() {
		post, err := scanSQLitePost(rows)
		if err != nil {
			rows.Close()
			return nil, 0, storageErr("scan post", err)
		}
		posts = append(posts, *post)
	}
	// The single connection must be released before the count query runs.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("list posts", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts"+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("count posts", err)
	}
	return posts, total, nil
}

func (s *SQLiteStore) Search(ctx context.Context, query string, page models.Pagination) ([]models.SearchHit, int, error) {
	page = page.Normalize()
	match := toFTSQuery(query)
	if match == "" {
		return []models.SearchHit{}, 0, nil
	}

	searchQuery := `
		SELECT ` + sqliteColumns("p.") + `, bm25(posts_fts) AS score
		FROM posts_fts
		JOIN posts p ON p.seq = posts_fts.rowid
		WHERE posts_fts MATCH ?
		ORDER BY score, p.created_at DESC, p.id DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, searchQuery, match, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, storageErr("search posts", err)
	}

	hits := make([]models.SearchHit, 0, page.PageSize)
	for rows.Next() {
		var score float64
		post, err := scanSQLitePost(rows, &score)
		if err != nil {
			rows.Close()
			return nil, 0, storageErr("scan post", err)
		}
		// bm25 is negative, lower is better.
		hits = append(hits, models.SearchHit{Post: *post, Rank: -score})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("search posts", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM posts_fts WHERE posts_fts MATCH ?", match).Scan(&total); err != nil {
		return nil, 0, storageErr("count search posts", err)
	}
	return hits, total, nil
}

func (s *SQLiteStore) Reindex(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO posts_fts(posts_fts) VALUES ('rebuild')")
		return err
	})
	if err != nil {
		return storageErr("reindex posts", err)
	}
	return nil
}
