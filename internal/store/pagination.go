package store

import "math"

// Page size bounds for admin listings
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PaginationParams contains parameters for paginated queries
type PaginationParams struct {
	Page     int    // 1-indexed
	PageSize int    // Number of items per page
	Search   string // Optional substring filter
}

// Offset returns the number of rows to skip.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PaginationResult contains pagination metadata
type PaginationResult struct {
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"page"`
	PageSize    int   `json:"page_size"`
	HasNext     bool  `json:"has_next"`
}

// NewPaginationParams clamps page and pageSize into their valid ranges
func NewPaginationParams(page, pageSize int, search string) PaginationParams {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Search:   search,
	}
}

// CalculatePagination calculates pagination metadata
func CalculatePagination(total int64, p PaginationParams) PaginationResult {
	totalPages := int(math.Ceil(float64(total) / float64(p.PageSize)))
	return PaginationResult{
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: p.Page,
		PageSize:    p.PageSize,
		HasNext:     p.Page < totalPages,
	}
}
