package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewParams(t *testing.T) {
	tests := []struct {
		name       string
		page       int
		limit      int
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", 0, 0, 1, 10, 0},
		{"negative page", -3, 5, 1, 5, 0},
		{"limit capped", 2, 500, 2, 50, 50},
		{"third page", 3, 20, 3, 20, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParams(tt.page, tt.limit)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLimit, p.Limit)
			assert.Equal(t, tt.wantOffset, p.Offset())
		})
	}
}

func TestBuildMeta(t *testing.T) {
	meta := BuildMeta(NewParams(2, 10), 25)
	assert.Equal(t, 2, meta.CurrentPage)
	assert.Equal(t, 3, meta.TotalPages)
	assert.Equal(t, int64(25), meta.TotalRides)
	assert.True(t, meta.HasNextPage)
	assert.True(t, meta.HasPrevPage)

	empty := BuildMeta(NewParams(1, 10), 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNextPage)
	assert.False(t, empty.HasPrevPage)

	last := BuildMeta(NewParams(3, 10), 25)
	assert.False(t, last.HasNextPage)
}
