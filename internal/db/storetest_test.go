package db

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BorisDmv/post-store/internal/models"
)

// runStoreSuite exercises the PostStore contract against a freshly
// migrated, empty store returned by newStore.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) PostStore) {
	ctx := context.Background()

	create := func(t *testing.T, s PostStore, title, content string, status models.Status, meta models.Metadata) *models.Post {
		t.Helper()
		post, err := s.Create(ctx, models.PostInput{Title: title, Content: content, Status: status, Metadata: meta})
		require.NoError(t, err)
		return post
	}
	searchIDs := func(t *testing.T, s PostStore, q string) []string {
		t.Helper()
		hits, total, err := s.Search(ctx, q, models.Pagination{Page: 1, PageSize: 50})
		require.NoError(t, err)
		require.Equal(t, len(hits), total)
		ids := make([]string, 0, len(hits))
		for _, h := range hits {
			ids = append(ids, h.ID)
		}
		return ids
	}

	t.Run("create assigns server fields", func(t *testing.T) {
		s := newStore(t)
		post := create(t, s, "Hello World", "full text search demo", models.StatusPublished,
			models.NewMetadata("Alice", models.SplitTags("demo,test")))

		_, err := uuid.Parse(post.ID)
		assert.NoError(t, err)
		assert.Equal(t, "Hello World", post.Title)
		assert.Equal(t, "full text search demo", post.Content)
		assert.Equal(t, models.StatusPublished, post.Status)
		assert.Equal(t, "hello world", post.Slug)
		assert.Equal(t, "Alice", post.Metadata.Author())
		assert.Equal(t, []string{"demo", "test"}, post.Metadata.Tags())
		assert.False(t, post.CreatedAt.IsZero())
		assert.False(t, post.UpdatedAt.IsZero())
	})

	t.Run("create then get round trips", func(t *testing.T) {
		s := newStore(t)
		post := create(t, s, "Round trip", "body text", models.StatusDraft,
			models.NewMetadata("Bob", models.SplitTags("a,b,c")))

		got, err := s.Get(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, post.ID, got.ID)
		assert.Equal(t, "Round trip", got.Title)
		assert.Equal(t, "body text", got.Content)
		assert.Equal(t, models.StatusDraft, got.Status)
		assert.Equal(t, "Bob", got.Metadata.Author())
		assert.Equal(t, []string{"a", "b", "c"}, got.Metadata.Tags())
	})

	t.Run("ids are unique", func(t *testing.T) {
		s := newStore(t)
		a := create(t, s, "one", "x", "", nil)
		b := create(t, s, "two", "y", "", nil)
		assert.NotEqual(t, a.ID, b.ID)
		assert.Equal(t, models.StatusDraft, a.Status)
	})

	t.Run("create validates input", func(t *testing.T) {
		s := newStore(t)
		var verr *models.ValidationError

		_, err := s.Create(ctx, models.PostInput{Title: "", Content: "c", Status: models.StatusDraft})
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "title")

		_, err = s.Create(ctx, models.PostInput{Title: "t", Content: "c", Status: "archived"})
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "status")

		_, total, err := s.List(ctx, models.ListQuery{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("search finds created post by phrase", func(t *testing.T) {
		s := newStore(t)
		post := create(t, s, "Hello World", "full text search demo", models.StatusPublished, nil)
		create(t, s, "Gardening", "tomatoes need sunshine", models.StatusPublished, nil)

		assert.Equal(t, []string{post.ID}, searchIDs(t, s, `"full text search demo"`))
		assert.Equal(t, []string{post.ID}, searchIDs(t, s, "full text"))
		assert.Equal(t, []string{post.ID}, searchIDs(t, s, "hello"))
	})

	t.Run("search ranks more relevant posts first", func(t *testing.T) {
		s := newStore(t)
		weak := create(t, s, "Weekly notes", "some words about text and other things", models.StatusDraft, nil)
		strong := create(t, s, "Full text search", "full text search with ranked full text results", models.StatusDraft, nil)
		create(t, s, "Unrelated", "nothing to see here", models.StatusDraft, nil)

		hits, total, err := s.Search(ctx, "full text", models.Pagination{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, hits, 1)
		assert.Equal(t, strong.ID, hits[0].ID)

		hits, total, err = s.Search(ctx, "text", models.Pagination{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, hits, 2)
		assert.Equal(t, strong.ID, hits[0].ID)
		assert.Equal(t, weak.ID, hits[1].ID)
		assert.GreaterOrEqual(t, hits[0].Rank, hits[1].Rank)
	})

	t.Run("search stems and applies operators", func(t *testing.T) {
		s := newStore(t)
		runner := create(t, s, "Morning", "running quickly through the park", models.StatusDraft, nil)
		alpha := create(t, s, "Alpha", "alpha bravo", models.StatusDraft, nil)
		charlie := create(t, s, "Charlie", "charlie delta", models.StatusDraft, nil)

		assert.Equal(t, []string{runner.ID}, searchIDs(t, s, "runs"))
		assert.ElementsMatch(t, []string{alpha.ID, charlie.ID}, searchIDs(t, s, "alpha or charlie"))
		assert.Empty(t, searchIDs(t, s, "alpha -bravo"))
		assert.Equal(t, []string{charlie.ID}, searchIDs(t, s, "charlie -bravo"))
	})

	t.Run("search without terms is empty", func(t *testing.T) {
		s := newStore(t)
		create(t, s, "The post", "the and of", models.StatusDraft, nil)
		for _, q := range []string{"", "   ", "the and", `"`, "-"} {
			hits, total, err := s.Search(ctx, q, models.Pagination{})
			require.NoError(t, err, "query %q", q)
			assert.Empty(t, hits, "query %q", q)
			assert.Zero(t, total, "query %q", q)
		}
	})

	t.Run("update leaves no stale index", func(t *testing.T) {
		s := newStore(t)
		post := create(t, s, "Phonetic", "alpha bravo", models.StatusDraft, nil)
		before := post.UpdatedAt

		updated, err := s.Update(ctx, post.ID, models.PostInput{
			Title:    "Phonetic",
			Content:  "charlie delta",
			Status:   models.StatusPublished,
			Metadata: models.NewMetadata("Carol", []string{"x"}),
		})
		require.NoError(t, err)
		assert.Equal(t, post.ID, updated.ID)
		assert.Equal(t, "charlie delta", updated.Content)
		assert.Equal(t, models.StatusPublished, updated.Status)
		assert.Equal(t, "Carol", updated.Metadata.Author())
		assert.True(t, post.CreatedAt.Equal(updated.CreatedAt))
		assert.False(t, updated.UpdatedAt.Before(before))

		assert.Empty(t, searchIDs(t, s, "alpha"))
		assert.Equal(t, []string{post.ID}, searchIDs(t, s, "delta"))
	})

	t.Run("update validates and reports unknown ids", func(t *testing.T) {
		s := newStore(t)
		post := create(t, s, "Keep", "content", models.StatusDraft, nil)

		_, err := s.Update(ctx, post.ID, models.PostInput{Title: "Keep", Content: ""})
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)

		_, err = s.Update(ctx, uuid.NewString(), models.PostInput{Title: "t", Content: "c"})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Update(ctx, "not-a-uuid", models.PostInput{Title: "t", Content: "c"})
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.Get(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "content", got.Content)
	})

	t.Run("delete is hard and happens once", func(t *testing.T) {
		s := newStore(t)
		post := create(t, s, "Ephemeral", "vanishing words", models.StatusDraft, nil)

		require.NoError(t, s.Delete(ctx, post.ID))
		assert.ErrorIs(t, s.Delete(ctx, post.ID), ErrNotFound)

		_, err := s.Get(ctx, post.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Update(ctx, post.ID, models.PostInput{Title: "t", Content: "c"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, searchIDs(t, s, "vanishing"))

		posts, total, err := s.List(ctx, models.ListQuery{})
		require.NoError(t, err)
		assert.Empty(t, posts)
		assert.Zero(t, total)

		assert.ErrorIs(t, s.Delete(ctx, "garbage"), ErrNotFound)
	})

	t.Run("list pages newest first", func(t *testing.T) {
		s := newStore(t)
		var ids []string
		for i := 0; i < 25; i++ {
			ids = append(ids, create(t, s, fmt.Sprintf("Post %d", i), "content", models.StatusDraft, nil).ID)
		}

		var seen []models.Post
		for page := 1; page <= 3; page++ {
			posts, total, err := s.List(ctx, models.ListQuery{Pagination: models.Pagination{Page: page, PageSize: 10}})
			require.NoError(t, err)
			assert.Equal(t, 25, total)
			seen = append(seen, posts...)
		}
		require.Len(t, seen, 25)
		for i := 1; i < len(seen); i++ {
			prev, cur := seen[i-1], seen[i]
			ordered := prev.CreatedAt.After(cur.CreatedAt) ||
				(prev.CreatedAt.Equal(cur.CreatedAt) && prev.ID > cur.ID)
			assert.True(t, ordered, "posts %d and %d out of order", i-1, i)
		}
		got := make([]string, 0, len(seen))
		for _, p := range seen {
			got = append(got, p.ID)
		}
		assert.ElementsMatch(t, ids, got)

		again, _, err := s.List(ctx, models.ListQuery{Pagination: models.Pagination{Page: 1, PageSize: 10}})
		require.NoError(t, err)
		assert.Equal(t, seen[:10], again)
	})

	t.Run("list filters", func(t *testing.T) {
		s := newStore(t)
		pub := create(t, s, "Go Tips", "c", models.StatusPublished, models.NewMetadata("Alice", []string{"go", "tips"}))
		draft := create(t, s, "Rust notes", "c", models.StatusDraft, models.NewMetadata("Bob", []string{"rust"}))

		ids := func(q models.ListQuery) []string {
			posts, total, err := s.List(ctx, q)
			require.NoError(t, err)
			require.Equal(t, len(posts), total)
			out := []string{}
			for _, p := range posts {
				out = append(out, p.ID)
			}
			return out
		}
		assert.Equal(t, []string{pub.ID}, ids(models.ListQuery{Status: models.StatusPublished}))
		assert.Equal(t, []string{draft.ID}, ids(models.ListQuery{Tag: "rust"}))
		assert.Equal(t, []string{pub.ID}, ids(models.ListQuery{Author: "Alice"}))
		assert.Equal(t, []string{pub.ID}, ids(models.ListQuery{Title: "go tips"}))
		assert.Empty(t, ids(models.ListQuery{Tag: "go", Author: "Bob"}))
	})

	t.Run("reindex keeps results", func(t *testing.T) {
		s := newStore(t)
		post := create(t, s, "Indexed", "searchable words", models.StatusDraft, nil)
		require.NoError(t, s.Reindex(ctx))
		assert.Equal(t, []string{post.ID}, searchIDs(t, s, "searchable"))
	})

	t.Run("pages past the end are empty", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			create(t, s, fmt.Sprintf("alpha %d", i), "alpha content", models.StatusDraft, nil)
		}
		for _, page := range []models.Pagination{
			{Page: 2, PageSize: 10},
			{Page: math.MaxInt, PageSize: 10},
			{Page: math.MaxInt, PageSize: 1},
		} {
			posts, total, err := s.List(ctx, models.ListQuery{Pagination: page})
			require.NoError(t, err)
			assert.Empty(t, posts)
			assert.Equal(t, 3, total)

			hits, total, err := s.Search(ctx, "alpha", page)
			require.NoError(t, err)
			assert.Empty(t, hits)
			assert.Equal(t, 3, total)
		}
	})

	t.Run("migrate is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Migrate(ctx))
		require.NoError(t, s.Ping(ctx))
	})

	t.Run("rollback drops the schema", func(t *testing.T) {
		s := newStore(t)
		create(t, s, "Doomed", "gone after rollback", models.StatusDraft, nil)

		require.NoError(t, s.Rollback(ctx))
		require.NoError(t, s.Rollback(ctx))
		_, _, err := s.List(ctx, models.ListQuery{})
		var serr *StorageError
		assert.ErrorAs(t, err, &serr)

		require.NoError(t, s.Migrate(ctx))
		posts, total, err := s.List(ctx, models.ListQuery{})
		require.NoError(t, err)
		assert.Empty(t, posts)
		assert.Zero(t, total)
		assert.Empty(t, searchIDs(t, s, "rollback"))
	})
}
