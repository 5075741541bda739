package analytics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
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

func TestHandler_VisitTrend(t *testing.T) {
	h := NewHandler(newTestEngine(t, sampleSource(), NopRenderer{}))
	c, rec := newContext(http.MethodGet, "/api/v1/analytics/visit-trend?start=2024-03-01&end=2024-03-31", "")

	if err := h.serve(h.engine.VisitTrend)(c); err != nil {
		t.Fatalf("VisitTrend: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Title string `json:"title"`
		Data  struct {
			Total int `json:"total"`
			Peak  struct {
				Date string `json:"date"`
			} `json:"peak"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Title != "就诊趋势分析" || resp.Data.Total != 3 || resp.Data.Peak.Date != "2024-03-01" {
		t.Errorf("unexpected response: %s", rec.Body.String())
	}
}

func TestHandler_InvalidWindow(t *testing.T) {
	h := NewHandler(newTestEngine(t, sampleSource(), NopRenderer{}))
	c, _ := newContext(http.MethodGet, "/api/v1/analytics/diagnoses?start=2024-13-01", "")
	expectStatus(t, h.serve(h.engine.DiagnosisDistribution)(c), http.StatusBadRequest)
}

func TestHandler_SourceFailure(t *testing.T) {
	h := NewHandler(newTestEngine(t, &fakeSource{err: errors.New("down")}, NopRenderer{}))
	c, _ := newContext(http.MethodGet, "/api/v1/analytics/operations", "")
	expectStatus(t, h.serve(h.engine.OperationStatistics)(c), http.StatusInternalServerError)
}

func TestHandler_SummaryReport(t *testing.T) {
	h := NewHandler(newTestEngine(t, sampleSource(), NopRenderer{}))
	c, rec := newContext(http.MethodPost, "/api/v1/analytics/summary", `{"start":"2024-03-01","end":"2024-03-31"}`)

	if err := h.SummaryReport(c); err != nil {
		t.Fatalf("SummaryReport: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "summary_report_20240402_080000.md" {
		t.Errorf("name = %q", resp.Name)
	}
	if _, err := os.Stat(resp.Path); err != nil {
		t.Errorf("report not written: %v", err)
	}
}

func TestHandler_SummaryReportWithoutBody(t *testing.T) {
	h := NewHandler(newTestEngine(t, sampleSource(), NopRenderer{}))
	c, rec := newContext(http.MethodPost, "/api/v1/analytics/summary", "")
	if err := h.SummaryReport(c); err != nil {
		t.Fatalf("SummaryReport: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandler_SummaryReportInvalidWindow(t *testing.T) {
	h := NewHandler(newTestEngine(t, sampleSource(), NopRenderer{}))
	c, _ := newContext(http.MethodPost, "/api/v1/analytics/summary", `{"start":"2024-04-01","end":"2024-03-01"}`)
	expectStatus(t, h.SummaryReport(c), http.StatusBadRequest)
}
