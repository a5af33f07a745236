package utils

import (
	"math"
	"testing"
)

func TestPaginationWindow(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		n           int
		start, end  int
	}{
		{"first page", 1, 20, 3, 0, 3},
		{"middle page", 2, 2, 5, 2, 4},
		{"last partial page", 3, 2, 5, 4, 5},
		{"just past the end", 4, 2, 6, 6, 6},
		{"far past the end", 500000000000000000, 20, 3, 3, 3},
		{"max int page", math.MaxInt, 100, 10, 10, 10},
		{"empty list", 1, 20, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PaginationQuery{Page: tt.page, Limit: tt.limit}
			start, end := p.Window(tt.n)
			if start != tt.start || end != tt.end {
				t.Errorf("Window(%d) = [%d, %d), want [%d, %d)", tt.n, start, end, tt.start, tt.end)
			}
		})
	}
}
