package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", defaultPageLimit, 0},
		{"custom limit", "limit=20", 20, 0},
		{"custom offset", "offset=10", defaultPageLimit, 10},
		{"both", "limit=25&offset=5", 25, 5},
		{"limit exceeds max", "limit=5000", maxPageLimit, 0},
		{"negative limit uses default", "limit=-1", defaultPageLimit, 0},
		{"negative offset uses zero", "offset=-5", defaultPageLimit, 0},
		{"non-numeric", "limit=abc&offset=xyz", defaultPageLimit, 0},
		{"zero limit uses default", "limit=0", defaultPageLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/events"
			if tt.query != "" {
				url += "?" + tt.query
			}
			limit, offset := parsePagination(httptest.NewRequest("GET", url, nil))
			assert.Equal(t, tt.wantLimit, limit, "limit")
			assert.Equal(t, tt.wantOffset, offset, "offset")
		})
	}
}

func TestPaginate(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6}
	tests := []struct {
		name     string
		query    string
		want     []int
		wantMore bool
	}{
		{"first page", "limit=3", []int{0, 1, 2}, true},
		{"middle page", "limit=3&offset=3", []int{3, 4, 5}, true},
		{"last partial page", "limit=3&offset=6", []int{6}, false},
		{"offset past end", "limit=3&offset=100", []int{}, false},
		{"everything", "", items, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, meta := paginate(httptest.NewRequest("GET", "/events?"+tt.query, nil), items)
			assert.Equal(t, tt.want, page)
			assert.Equal(t, len(items), meta.TotalCount)
			assert.Equal(t, tt.wantMore, meta.HasMore)
		})
	}
}
