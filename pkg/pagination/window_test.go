package pagination

import (
	"math"
	"testing"
)

func TestNewWindow(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		want        Window
	}{
		{"defaults", 0, 0, Window{Page: 1, Limit: 12, Offset: 0}},
		{"second page", 2, 12, Window{Page: 2, Limit: 12, Offset: 12}},
		{"negative page", -3, 10, Window{Page: 1, Limit: 10, Offset: 0}},
		{"limit capped", 3, 500, Window{Page: 3, Limit: 100, Offset: 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewWindow(tt.page, tt.limit, DefaultLimit); got != tt.want {
				t.Errorf("NewWindow(%d, %d) = %+v, want %+v", tt.page, tt.limit, got, tt.want)
			}
		})
	}
}

func TestNewWindow_HugePage(t *testing.T) {
	for _, page := range []int{math.MaxInt / 6, math.MaxInt} {
		w := NewWindow(page, 12, 12)
		if w.Offset < 0 {
			t.Fatalf("NewWindow(%d, 12) offset = %d, want non-negative", page, w.Offset)
		}
		if w.Page <= 1 {
			t.Errorf("NewWindow(%d, 12) page = %d, want a far page, not page 1", page, w.Page)
		}
		if w.Offset != (w.Page-1)*w.Limit {
			t.Errorf("NewWindow(%d, 12) offset = %d, want (page-1)*limit", page, w.Offset)
		}
	}
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		page, limit string
		want        Window
	}{
		{"", "", Window{Page: 1, Limit: 24, Offset: 0}},
		{"3", "10", Window{Page: 3, Limit: 10, Offset: 20}},
		{"abc", "x", Window{Page: 1, Limit: 24, Offset: 0}},
		{" 2 ", "1000", Window{Page: 2, Limit: 100, Offset: 100}},
	}

	for _, tt := range tests {
		if got := ParseWindow(tt.page, tt.limit, 24); got != tt.want {
			t.Errorf("ParseWindow(%q, %q) = %+v, want %+v", tt.page, tt.limit, got, tt.want)
		}
	}
}

func TestNewPage_Math(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	// 25 items at 12 per page -> 3 pages, the last holding 1 item
	tests := []struct {
		page      int
		wantItems int
		hasNext   bool
		hasPrev   bool
	}{
		{1, 12, true, false},
		{2, 12, true, true},
		{3, 1, false, true},
		{4, 0, false, true},
	}

	for _, tt := range tests {
		w := NewWindow(tt.page, 12, DefaultLimit)
		start, end := min(w.Offset, len(items)), min(w.Offset+w.Limit, len(items))
		p := NewPage(items[start:end], w.Page, w.Limit, len(items))

		if p.TotalPages != 3 {
			t.Errorf("page %d: TotalPages = %d, want 3", tt.page, p.TotalPages)
		}
		if len(p.Items) != tt.wantItems {
			t.Errorf("page %d: len(Items) = %d, want %d", tt.page, len(p.Items), tt.wantItems)
		}
		if p.HasNext != tt.hasNext {
			t.Errorf("page %d: HasNext = %v, want %v", tt.page, p.HasNext, tt.hasNext)
		}
		if p.HasPrev != tt.hasPrev {
			t.Errorf("page %d: HasPrev = %v, want %v", tt.page, p.HasPrev, tt.hasPrev)
		}
	}
}

func TestNewPage_Bounds(t *testing.T) {
	p := NewPage([]int{1, 2, 3, 4}, 1, 3, 4)
	if len(p.Items) != 3 {
		t.Errorf("len(Items) = %d, want items trimmed to 3", len(p.Items))
	}

	empty := NewPage[int](nil, 1, 12, 0)
	if empty.Items == nil {
		t.Error("Items should be empty, not nil")
	}
	if empty.TotalPages != 0 || empty.HasNext || empty.HasPrev {
		t.Errorf("empty page = %+v, want no pages", empty.Info)
	}
}
