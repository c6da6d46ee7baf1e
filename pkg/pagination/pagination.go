package pagination

import (
	"fmt"
	"strconv"

	"consultline/pkg/constants"
)

// Params represents page/pageSize query parameters
type Params struct {
	Page     int
	PageSize int
	Offset   int
}

// Constants
const (
	DefaultPage = 1
)

// Parse parses page and pageSize from query string values.
// Pages are 1-based; pageSize is clamped to [MinPageSize, MaxPageSize].
func Parse(pageStr, sizeStr string) (*Params, error) {
	page := DefaultPage
	size := constants.DefaultPageSize

	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page parameter: %w", err)
		}
		if p >= 1 {
			page = p
		}
	}

	if sizeStr != "" {
		l, err := strconv.Atoi(sizeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid pageSize parameter: %w", err)
		}
		size = Clamp(l)
	}

	return &Params{
		Page:     page,
		PageSize: size,
		Offset:   CalculateOffset(page, size),
	}, nil
}

// Clamp bounds a page size to the allowed range
func Clamp(size int) int {
	if size < constants.MinPageSize {
		return constants.MinPageSize
	}
	if size > constants.MaxPageSize {
		return constants.MaxPageSize
	}
	return size
}

// CalculateOffset calculates offset from page and limit
func CalculateOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// HasMore reports whether items remain past the given page
func HasMore(total, page, size int) bool {
	return CalculateOffset(page, size)+size < total
}
