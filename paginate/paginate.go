// Package paginate turns unbounded queries into bounded, offset-limited ones
// and computes page metadata. Everything here is a pure transform: the engine
// holds only its page-size bounds and never mutates caller-owned query text.
package paginate

import (
	"fmt"
	"strings"

	"github.com/arcadia-data/querylayer/logger"
)

// Metadata describes one page of a larger result set.
type Metadata struct {
	CurrentPage  int  `json:"current_page" msgpack:"current_page"`
	PageSize     int  `json:"page_size" msgpack:"page_size"`
	TotalCount   int  `json:"total_count" msgpack:"total_count"`
	TotalPages   int  `json:"total_pages" msgpack:"total_pages"`
	HasNext      bool `json:"has_next" msgpack:"has_next"`
	HasPrevious  bool `json:"has_previous" msgpack:"has_previous"`
	NextPage     *int `json:"next_page" msgpack:"next_page"`
	PreviousPage *int `json:"previous_page" msgpack:"previous_page"`
}

// Page bundles one page of data with its metadata.
type Page[T any] struct {
	Data       []T      `json:"data" msgpack:"data"`
	Pagination Metadata `json:"pagination" msgpack:"pagination"`
}

// Engine applies page-size bounds. Construct once and share; it is stateless
// beyond its configuration.
type Engine struct {
	defaultPageSize int
	maxPageSize     int
	log             logger.Logger
}

// NewEngine returns an Engine with the given default and maximum page sizes.
func NewEngine(defaultPageSize, maxPageSize int, log logger.Logger) *Engine {
	if defaultPageSize < 1 {
		defaultPageSize = 50
	}
	if maxPageSize < defaultPageSize {
		maxPageSize = defaultPageSize
	}
	return &Engine{
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		log:             logger.Coalesce(log),
	}
}

// DefaultPageSize returns the configured default page size.
func (e *Engine) DefaultPageSize() int { return e.defaultPageSize }

// Clamp normalizes a page request: page >= 1, pageSize in [1, max], zero or
// negative pageSize replaced by the default. Invalid requests are recovered
// by clamping, never rejected.
func (e *Engine) Clamp(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = e.defaultPageSize
	}
	if pageSize > e.maxPageSize {
		pageSize = e.maxPageSize
	}
	return page, pageSize
}

// StripBound removes a trailing LIMIT clause (case-insensitive) along with a
// trailing semicolon, returning the bare query.
func StripBound(query string) string {
	upper := strings.ToUpper(query)
	if idx := strings.LastIndex(upper, "LIMIT"); idx >= 0 {
		query = query[:idx]
	}
	return strings.TrimRight(query, " \t\n\r;")
}

// HasBound reports whether the query already carries an explicit LIMIT.
func HasBound(query string) bool {
	return strings.Contains(strings.ToUpper(query), "LIMIT")
}

// Rewrite returns a new query bounded to the requested page. Any existing
// trailing bound is stripped first, which makes Rewrite idempotent: applying
// it twice with the same arguments yields the same text.
func (e *Engine) Rewrite(query string, page, pageSize int) string {
	page, pageSize = e.Clamp(page, pageSize)
	offset := (page - 1) * pageSize
	bounded := fmt.Sprintf("%s\nLIMIT %d OFFSET %d", StripBound(query), pageSize, offset)
	e.log.Debug("rewrote query with bound", "page", page, "page_size", pageSize, "offset", offset)
	return bounded
}

// CountQuery derives a total-count query from a base query by stripping any
// bound and wrapping it in a COUNT(*) subselect.
func (e *Engine) CountQuery(query string) string {
	return fmt.Sprintf("SELECT COUNT(*) AS total_count FROM (%s) AS count_subquery", StripBound(query))
}

// Metadata computes page metadata from a total count. totalCount of zero
// yields zero total pages and no next page.
func (e *Engine) Metadata(totalCount, page, pageSize int) Metadata {
	page, pageSize = e.Clamp(page, pageSize)
	if totalCount < 0 {
		totalCount = 0
	}
	totalPages := 0
	if totalCount > 0 {
		totalPages = (totalCount + pageSize - 1) / pageSize
	}
	md := Metadata{
		CurrentPage: page,
		PageSize:    pageSize,
		TotalCount:  totalCount,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
	if md.HasNext {
		next := page + 1
		md.NextPage = &next
	}
	if md.HasPrevious {
		prev := page - 1
		md.PreviousPage = &prev
	}
	return md
}

// Slice pages through already-materialized data, e.g. a cached full result
// served page by page. Out-of-range pages yield an empty page, never an
// error.
func Slice[T any](e *Engine, data []T, page, pageSize int) Page[T] {
	page, pageSize = e.Clamp(page, pageSize)
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(data) {
		start = len(data)
	}
	if end > len(data) {
		end = len(data)
	}
	return Page[T]{
		Data:       data[start:end],
		Pagination: e.Metadata(len(data), page, pageSize),
	}
}
