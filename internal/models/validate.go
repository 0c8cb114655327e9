package models

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const MaxTitleLength = 255

// ValidationError lists user-correctable problems keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// Normalize trims the text fields, defaults the status to draft and makes
// sure metadata is a non-nil document. It returns a *ValidationError when
// the input cannot be stored.
func (in PostInput) Normalize() (PostInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Status = Status(strings.TrimSpace(string(in.Status)))
	if in.Status == "" {
		in.Status = StatusDraft
	}
	if in.Metadata == nil {
		in.Metadata = Metadata{}
	}

	verr := &ValidationError{}
	switch {
	case in.Title == "":
		verr.add("title", "is required")
	case utf8.RuneCountInString(in.Title) > MaxTitleLength:
		verr.add("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
	if in.Content == "" {
		verr.add("content", "is required")
	}
	if !in.Status.Valid() {
		verr.add("status", fmt.Sprintf("must be one of %s, %s", StatusDraft, StatusPublished))
	}
	if len(verr.Fields) > 0 {
		return in, verr
	}
	return in, nil
}
