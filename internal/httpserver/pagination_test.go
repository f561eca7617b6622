package httpserver

import (
	"net/http/httptest"
	"testing"
)

func TestParsePageParams(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 1, 20, 0},
		{"explicit", "?page=3&limit=50", 3, 50, 100},
		{"zero limit clamps to 1", "?limit=0", 1, 1, 0},
		{"oversized limit clamps to 100", "?limit=500", 1, 100, 0},
		{"zero page clamps to 1", "?page=0", 1, 20, 0},
		{"negative page clamps to 1", "?page=-5", 1, 20, 0},
		{"non-numeric values keep defaults", "?page=abc&limit=xyz", 1, 20, 0},
		{"boundary limit 100 accepted", "?limit=100", 1, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/instances"+tt.query, nil)
			p := ParsePageParams(r)
			if p.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", p.Page, tt.wantPage)
			}
			if p.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", p.Limit, tt.wantLimit)
			}
			if p.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", p.Offset, tt.wantOffset)
			}
		})
	}
}

func TestNewPage(t *testing.T) {
	params := PageParams{Page: 2, Limit: 10}
	page := NewPage([]string{"a", "b"}, params, 25)

	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages)
	}
	if page.TotalCount != 25 {
		t.Errorf("TotalCount = %d, want 25", page.TotalCount)
	}
	if page.Page != 2 || page.Limit != 10 {
		t.Errorf("Page/Limit = %d/%d, want 2/10", page.Page, page.Limit)
	}
}

func TestNewPageNilItems(t *testing.T) {
	page := NewPage[string](nil, PageParams{Page: 1, Limit: 20}, 0)
	if page.Items == nil {
		t.Fatal("Items should serialize as [], not null")
	}
	if page.TotalPages != 0 {
		t.Errorf("TotalPages = %d, want 0", page.TotalPages)
	}
}
