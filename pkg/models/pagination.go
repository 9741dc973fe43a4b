// Package models contains domain models for conductor.
package models

// Pagination bounds shared by every list endpoint. Out-of-range values
// are rejected, never silently clamped.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Pagination describes one page of a filtered listing. The same shape
// is used for sessions, steps, events and artifacts.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// NewPagination derives the page metadata for a listing of total rows.
func NewPagination(page, perPage int, total int64) Pagination {
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// ValidatePageParams rejects page/per_page values outside the contract.
func ValidatePageParams(page, perPage int) error {
	if page < 1 {
		return InvalidArgumentf("page must be >= 1, got %d", page)
	}
	if perPage < 1 || perPage > MaxPerPage {
		return InvalidArgumentf("per_page must be between 1 and %d, got %d", MaxPerPage, perPage)
	}
	return nil
}

// Offset returns the row offset for the given page.
func Offset(page, perPage int) int {
	return (page - 1) * perPage
}
