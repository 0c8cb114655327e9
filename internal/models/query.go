package models

import "math"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pagination is a 1-based page request.
type Pagination struct {
	Page     int
	PageSize int
}

// Normalize clamps the page to >= 1 and the page size to 1..MaxPageSize,
// substituting DefaultPageSize for non-positive sizes. Pages are capped so
// the offset always fits in an int.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if maxPage := math.MaxInt / p.PageSize; p.Page > maxPage {
		p.Page = maxPage
	}
	return p
}

func (p Pagination) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PageSize
}

// LastPage reports the number of the last page for total rows, never less than 1.
func (p Pagination) LastPage(total int) int {
	p = p.Normalize()
	if total <= 0 {
		return 1
	}
	return (total + p.PageSize - 1) / p.PageSize
}

// ListQuery selects a page of posts, newest first. Empty filters are ignored.
type ListQuery struct {
	Pagination
	Status Status
	Tag    string
	Author string
	// Title matches case-insensitively against the whole title.
	Title string
}
