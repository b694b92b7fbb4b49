// Package pagination computes page windows for list views.
package pagination

import (
	"errors"
	"fmt"
)

// ErrInvalidPageSize is wrapped by the ConfigError returned for a page size
// below 1.
var ErrInvalidPageSize = errors.New("page size must be positive")

// ConfigError reports invalid pagination parameters.
type ConfigError struct {
	PageSize int
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pagination: page size %d: %v", e.PageSize, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// State is the computed window for one page.
type State struct {
	Page       int  `json:"page" yaml:"page"`
	PerPage    int  `json:"per_page" yaml:"per_page"`
	TotalItems int  `json:"total_items" yaml:"total_items"`
	TotalPages int  `json:"total_pages" yaml:"total_pages"`
	HasNext    bool `json:"has_next" yaml:"has_next"`
	HasPrev    bool `json:"has_prev" yaml:"has_prev"`
}

// New computes the page window. There is always at least one page, and
// requestedPage is clamped into [1, TotalPages] rather than rejected.
func New(totalItems, pageSize, requestedPage int) (State, error) {
	if pageSize <= 0 {
		return State{}, &ConfigError{PageSize: pageSize, Err: ErrInvalidPageSize}
	}
	if totalItems < 0 {
		totalItems = 0
	}

	totalPages := (totalItems + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	page := requestedPage
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	return State{
		Page:       page,
		PerPage:    pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}, nil
}

// Offset returns the number of items before the current page.
func (s State) Offset() int {
	return (s.Page - 1) * s.PerPage
}

// Limit returns the page size.
func (s State) Limit() int {
	return s.PerPage
}
