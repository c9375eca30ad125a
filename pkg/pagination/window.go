package pagination

import (
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultPage is used when no page is requested
	DefaultPage = 1

	// DefaultLimit is the default page size
	DefaultLimit = 12

	// MaxLimit caps the page size
	MaxLimit = 100
)

// Window is a page/offset window over a listing.
type Window struct {
	Page   int
	Limit  int
	Offset int
}

// NewWindow clamps page and limit and computes the offset. A limit <= 0
// falls back to defaultLimit (or DefaultLimit). Pages whose offset would
// overflow int are clamped to the last representable page.
func NewWindow(page, limit, defaultLimit int) Window {
	if defaultLimit <= 0 || defaultLimit > MaxLimit {
		defaultLimit = DefaultLimit
	}
	if page < 1 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	// Keep the offset within int
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return Window{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// ParseWindow builds a window from raw query values. Unparseable values
// fall back to the defaults.
func ParseWindow(pageRaw, limitRaw string, defaultLimit int) Window {
	page, err := strconv.Atoi(strings.TrimSpace(pageRaw))
	if err != nil {
		page = DefaultPage
	}
	limit, err := strconv.Atoi(strings.TrimSpace(limitRaw))
	if err != nil {
		limit = 0
	}
	return NewWindow(page, limit, defaultLimit)
}

// Info is the pagination metadata of a page.
type Info struct {
	PageNumber int  `json:"page"`
	PageSize   int  `json:"limit"`
	TotalItems int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Page is one window of items with its metadata.
type Page[T any] struct {
	Items []T `json:"items"`
	Info
}

// NewPage builds a page. TotalPages is ceil(total/limit), and items beyond
// limit are dropped.
func NewPage[T any](items []T, page, limit, total int) Page[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if page < 1 {
		page = DefaultPage
	}
	if total < 0 {
		total = 0
	}
	if len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []T{}
	}

	totalPages := (total + limit - 1) / limit
	return Page[T]{
		Items: items,
		Info: Info{
			PageNumber: page,
			PageSize:   limit,
			TotalItems: total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	}
}
