package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BorisDmv/post-store/internal/models"
)

// Store is the PostgreSQL implementation of PostStore. The searchable
// tsvector column is maintained by the posts_searchable_update trigger, so
// every INSERT and UPDATE recomputes it within the writing statement.
type Store struct {
	pool *pgxpool.Pool
}

var _ PostStore = (*Store)(nil)

// Pool returns the underlying pgxpool.Pool
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, storageErr("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageErr("ping", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

const pgPostColumns = `
	id::text,
	title,
	content,
	status,
	COALESCE(metadata, '{}'::jsonb),
	slug,
	created_at,
	updated_at`

func scanPGPost(row pgx.Row, extra ...any) (*models.Post, error) {
	var post models.Post
	dest := []any{
		&post.ID,
		&post.Title,
		&post.Content,
		&post.Status,
		&post.Metadata,
		&post.Slug,
		&post.CreatedAt,
		&post.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Store) Create(ctx context.Context, in models.PostInput) (*models.Post, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	const query = `
		INSERT INTO posts (id, title, content, status, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING` + pgPostColumns

	var created *models.Post
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		created, err = scanPGPost(tx.QueryRow(
			ctx,
			query,
			uuid.NewString(),
			in.Title,
			in.Content,
			string(in.Status),
			in.Metadata,
		))
		return err
	})
	if err != nil {
		return nil, storageErr("create post", err)
	}
	return created, nil
}

func (s *Store) Update(ctx context.Context, id string, in models.PostInput) (*models.Post, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	id, err = canonicalID(id)
	if err != nil {
		return nil, err
	}

	const query = `
		UPDATE posts
		SET title = $2, content = $3, status = $4, metadata = $5, updated_at = now()
		WHERE id = $1
		RETURNING` + pgPostColumns

	var updated *models.Post
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		updated, err = scanPGPost(tx.QueryRow(
			ctx,
			query,
			id,
			in.Title,
			in.Content,
			string(in.Status),
			in.Metadata,
		))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("update post", err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	id, err := canonicalID(id)
	if err != nil {
		return err
	}

	var affected int64
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM posts WHERE id = $1", id)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return storageErr("delete post", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Post, error) {
	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}
	post, err := scanPGPost(s.pool.QueryRow(ctx, "SELECT"+pgPostColumns+" FROM posts WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get post", err)
	}
	return post, nil
}

// pgListFilter renders the WHERE clause for q, numbering placeholders from 1.
func pgListFilter(q models.ListQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.Status != "" {
		add("status = $%d", string(q.Status))
	}
	if q.Tag != "" {
		add("metadata @> jsonb_build_object('tags', jsonb_build_array($%d::text))", q.Tag)
	}
	if q.Author != "" {
		add("metadata @> jsonb_build_object('author', $%d::text)", q.Author)
	}
	if q.Title != "" {
		add("lower(title) = lower($%d)", q.Title)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) List(ctx context.Context, q models.ListQuery) ([]models.Post, int, error) {
	page := q.Pagination.Normalize()
	where, args := pgListFilter(q)

	listQuery := fmt.Sprintf(`
		SELECT%s
		FROM posts%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, pgPostColumns, where, len(args)+1, len(args)+2)

	rows, err := s.pool.Query(ctx, listQuery, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, storageErr("list posts", err)
	}
	defer rows.Close()

	posts := make([]models.Post, 0, page.PageSize)
	for rows.Next() {
		post, err := scanPGPost(rows)
		if err != nil {
			return nil, 0, storageErr("scan post", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("list posts", err)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM posts"+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("count posts", err)
	}
	return posts, total, nil
}

func (s *Store) Search(ctx context.Context, query string, page models.Pagination) ([]models.SearchHit, int, error) {
	page = page.Normalize()
	if strings.TrimSpace(query) == "" {
		return []models.SearchHit{}, 0, nil
	}

	const searchQuery = `
		SELECT` + pgPostColumns + `,
			ts_rank(searchable, q)::float8 AS rank
		FROM posts, websearch_to_tsquery('english', $1) AS q
		WHERE searchable @@ q
		ORDER BY rank DESC, created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, searchQuery, query, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, storageErr("search posts", err)
	}
	defer rows.Close()

	hits := make([]models.SearchHit, 0, page.PageSize)
	for rows.Next() {
		var rank float64
		post, err := scanPGPost(rows, &rank)
		if err != nil {
			return nil, 0, storageErr("scan post", err)
		}
		hits = append(hits, models.SearchHit{Post: *post, Rank: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("search posts", err)
	}

	const countQuery = `
		SELECT COUNT(*)
		FROM posts
		WHERE searchable @@ websearch_to_tsquery('english', $1)`
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, query).Scan(&total); err != nil {
		return nil, 0, storageErr("count search posts", err)
	}
	return hits, total, nil
}

// Reindex re-fires the searchable trigger for every row.
func (s *Store) Reindex(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "UPDATE posts SET title = title")
		return err
	})
	if err != nil {
		return storageErr("reindex posts", err)
	}
	return nil
}
