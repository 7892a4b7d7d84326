package pagination

import (
	"math"

	"github.com/richxcame/ride-dispatch/pkg/common"
)

const (
	// DefaultLimit is the default number of items per page
	DefaultLimit = 10
	// MaxLimit is the maximum number of items per page
	MaxLimit = 50
	// DefaultPage is the first page
	DefaultPage = 1
)

// Params is a sanitised page request.
type Params struct {
	Page  int
	Limit int
}

// Offset is the number of rows to skip.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// NewParams applies defaults and bounds to a requested page and limit.
func NewParams(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit}
}

// BuildMeta creates pagination metadata for responses
func BuildMeta(p Params, total int64) *common.Pagination {
	meta := &common.Pagination{
		CurrentPage: p.Page,
		TotalRides:  total,
	}

	if p.Limit > 0 {
		meta.TotalPages = int(math.Ceil(float64(total) / float64(p.Limit)))
	}
	meta.HasNextPage = p.Page < meta.TotalPages
	meta.HasPrevPage = p.Page > 1

	return meta
}
