package pagination

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, target string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "/")

	if p.Page != 1 {
		t.Errorf("expected default page 1, got %d", p.Page)
	}
	if p.PageSize != DefaultPageSize {
		t.Errorf("expected default page size %d, got %d", DefaultPageSize, p.PageSize)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor(t, "/?page=3&page_size=50")

	if p.Page != 3 {
		t.Errorf("expected page 3, got %d", p.Page)
	}
	if p.PageSize != 50 {
		t.Errorf("expected page size 50, got %d", p.PageSize)
	}
	if p.Offset() != 100 {
		t.Errorf("expected offset 100, got %d", p.Offset())
	}
}

func TestFromContext_MaxPageSize(t *testing.T) {
	p := paramsFor(t, "/?page_size=500")

	if p.PageSize != MaxPageSize {
		t.Errorf("expected page size capped at %d, got %d", MaxPageSize, p.PageSize)
	}
}

func TestFromContext_InvalidValues(t *testing.T) {
	tests := []struct {
		target   string
		page     int
		pageSize int
	}{
		{"/?page=0", 1, DefaultPageSize},
		{"/?page=-4", 1, DefaultPageSize},
		{"/?page=abc&page_size=xyz", 1, DefaultPageSize},
		{"/?page_size=-1", 1, DefaultPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			p := paramsFor(t, tt.target)
			if p.Page != tt.page || p.PageSize != tt.pageSize {
				t.Errorf("expected (%d, %d), got (%d, %d)", tt.page, tt.pageSize, p.Page, p.PageSize)
			}
		})
	}
}

func TestParams_Window(t *testing.T) {
	p := New(2, 10)

	if p.Offset() != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset())
	}
	if p.Limit() != 10 {
		t.Errorf("expected limit 10, got %d", p.Limit())
	}
	if !p.HasPrevious() {
		t.Error("expected page 2 to have a previous page")
	}
	if !p.HasNext(21) {
		t.Error("expected next page when total=21")
	}
	if p.HasNext(20) {
		t.Error("expected no next page when total=20")
	}
}

func TestParams_TotalPages(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{0, 0},
		{1, 1},
		{10, 1},
		{11, 2},
		{100, 10},
	}
	p := New(1, 10)
	for _, tt := range tests {
		if got := p.TotalPages(tt.total); got != tt.want {
			t.Errorf("TotalPages(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestNewResponse(t *testing.T) {
	data := []string{"a", "b"}
	resp := NewResponse(data, 25, New(3, 10))

	if resp.Total != 25 {
		t.Errorf("expected total 25, got %d", resp.Total)
	}
	if resp.Page != 3 || resp.PageSize != 10 {
		t.Errorf("expected page 3 size 10, got %d %d", resp.Page, resp.PageSize)
	}
	if resp.TotalPages != 3 {
		t.Errorf("expected 3 total pages, got %d", resp.TotalPages)
	}
	if resp.HasMore {
		t.Error("expected HasMore=false on the last page")
	}
}

func TestNew_KeepsLargePageSize(t *testing.T) {
	p := New(1, 150)

	if p.PageSize != 150 {
		t.Errorf("expected page size 150 outside the HTTP edge, got %d", p.PageSize)
	}
}

func TestParams_OffsetSaturates(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		want int
	}{
		{"first page", New(1, 100), 0},
		{"ordinary", New(4, 25), 75},
		{"wraps without guard", New(math.MaxInt64/50, 100), math.MaxInt},
		{"max page", New(math.MaxInt, 2), math.MaxInt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Offset(); got != tt.want {
				t.Errorf("Offset() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParams_HugePageHasNoNext(t *testing.T) {
	p := New(math.MaxInt64/50, 100)

	if p.HasNext(3) {
		t.Error("expected no next page far past the end")
	}
	if got := New(1, math.MaxInt).TotalPages(3); got != 1 {
		t.Errorf("expected 1 page for a huge page size, got %d", got)
	}
}
