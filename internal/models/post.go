package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Statuses lists every accepted status value.
func Statuses() []Status {
	return []Status{StatusDraft, StatusPublished}
}

type Post struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Status   Status   `json:"status"`
	Metadata Metadata `json:"metadata"`
	// Slug is lower(title), maintained by the database.
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchHit is a post matched by a full-text query together with its
// relevance. Higher ranks are more relevant.
type SearchHit struct {
	Post
	Rank float64 `json:"rank"`
}

// PostInput carries the writable fields of a post.
type PostInput struct {
	Title    string
	Content  string
	Status   Status
	Metadata Metadata
}

// Metadata is the open JSON document stored alongside a post.
type Metadata map[string]any

const (
	MetaAuthor = "author"
	MetaTags   = "tags"
)

// NewMetadata builds the author/tags document written by the request layer.
// An empty author is left out; tags are always present.
func NewMetadata(author string, tags []string) Metadata {
	m := Metadata{}
	if author = strings.TrimSpace(author); author != "" {
		m[MetaAuthor] = author
	}
	if tags == nil {
		tags = []string{}
	}
	m[MetaTags] = tags
	return m
}

func (m Metadata) Author() string {
	author, _ := m[MetaAuthor].(string)
	return author
}

// Tags returns the tags sequence whether it holds []string (freshly built)
// or []any (decoded from JSON). Non-string elements are skipped.
func (m Metadata) Tags() []string {
	switch v := m[MetaTags].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// SplitTags splits a comma-separated tag list, trimming each entry and
// dropping empty ones. Order is preserved.
func SplitTags(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// JoinTags is the inverse of SplitTags, used to refill edit forms.
func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}
