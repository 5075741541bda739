package query

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestHandler_SearchRecords(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 12; i++ {
		f.create(t, "内科", "感冒")
	}
	f.create(t, "外科", "骨折")

	h := NewHandler(f.engine)
	c, rec := newContext(echo.New(), http.MethodGet, "/api/v1/records?"+url.Values{"department": {"内科"}, "page": {"2"}, "page_size": {"5"}}.Encode(), "")
	if err := h.SearchRecords(c); err != nil {
		t.Fatalf("SearchRecords: %v", err)
	}

	var resp struct {
		Data     []map[string]any `json:"data"`
		Total    int              `json:"total"`
		Page     int              `json:"page"`
		PageSize int              `json:"page_size"`
		HasMore  bool             `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 12 || resp.Page != 2 || resp.PageSize != 5 || len(resp.Data) != 5 || !resp.HasMore {
		t.Errorf("unexpected page: total=%d page=%d size=%d items=%d more=%v",
			resp.Total, resp.Page, resp.PageSize, len(resp.Data), resp.HasMore)
	}
}

func TestHandler_CreateExport(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "内科", "感冒")
	h := NewHandler(f.engine)

	c, rec := newContext(echo.New(), http.MethodPost, "/api/v1/exports",
		`{"record_ids":["`+id+`"],"format":"excel"}`)
	if err := h.CreateExport(c); err != nil {
		t.Fatalf("CreateExport: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp exportResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.HasSuffix(resp.Name, ".xlsx") || resp.Records != 1 {
		t.Errorf("unexpected response %+v", resp)
	}

	c, rec = newContext(echo.New(), http.MethodGet, "/", "")
	c.SetParamNames("name")
	c.SetParamValues(resp.Name)
	if err := h.DownloadExport(c); err != nil {
		t.Fatalf("DownloadExport: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Errorf("expected the export file, got %d with %d bytes", rec.Code, rec.Body.Len())
	}
}

func TestHandler_CreateExport_Errors(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "内科", "感冒")
	h := NewHandler(f.engine)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"no ids", `{"format":"json"}`, http.StatusBadRequest},
		{"unsupported format", `{"record_ids":["` + id + `"],"format":"pdf"}`, http.StatusBadRequest},
		{"missing record", `{"record_ids":["R20990101000000"]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newContext(echo.New(), http.MethodPost, "/api/v1/exports", tt.body)
			expectStatus(t, h.CreateExport(c), tt.code)
		})
	}
}

func TestHandler_DownloadExport_RejectsTraversal(t *testing.T) {
	h := NewHandler(newFixture(t).engine)
	for _, name := range []string{"../secret", ".hidden", ""} {
		c, _ := newContext(echo.New(), http.MethodGet, "/", "")
		c.SetParamNames("name")
		c.SetParamValues(name)
		expectStatus(t, h.DownloadExport(c), http.StatusBadRequest)
	}
}
