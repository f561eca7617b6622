package httpserver

import (
	"net/http"
	"strconv"
)

const (
	// DefaultPageSize is the default number of items per page.
	DefaultPageSize = 20
	// MaxPageSize is the maximum allowed page size.
	MaxPageSize = 100
)

// PageParams holds the parsed query parameters for offset-based pagination.
type PageParams struct {
	Page   int
	Limit  int
	Offset int // computed from Page and Limit
}

// ParsePageParams extracts pagination parameters from the request.
// Out-of-range values clamp rather than error: page < 1 becomes 1,
// limit < 1 becomes 1, limit > 100 becomes 100. Absent values take defaults.
func ParsePageParams(r *http.Request) PageParams {
	p := PageParams{Page: 1, Limit: DefaultPageSize}

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Page = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Limit = n
		}
	}

	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}

	p.Offset = (p.Page - 1) * p.Limit
	return p
}

// Page is the response envelope for paginated results.
type Page[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// NewPage builds a Page from a result set and total count.
func NewPage[T any](items []T, params PageParams, totalCount int64) Page[T] {
	if items == nil {
		items = []T{}
	}

	totalPages := 0
	if params.Limit > 0 {
		totalPages = int((totalCount + int64(params.Limit) - 1) / int64(params.Limit))
	}

	return Page[T]{
		Items:      items,
		TotalCount: totalCount,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: totalPages,
	}
}
