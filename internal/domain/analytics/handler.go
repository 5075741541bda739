package analytics

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/ehr/medrecord/internal/platform/auth"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/analytics", auth.RequireRole(auth.RoleDoctor, auth.RoleAnalyst))
	g.GET("/visit-trend", h.serve(h.engine.VisitTrend))
	g.GET("/diagnoses", h.serve(h.engine.DiagnosisDistribution))
	g.GET("/examinations", h.serve(h.engine.ExaminationStatistics))
	g.GET("/prescriptions", h.serve(h.engine.PrescriptionPatterns))
	g.GET("/operations", h.serve(h.engine.OperationStatistics))
	g.POST("/summary", h.SummaryReport)
}

func windowFromQuery(c echo.Context) Window {
	return Window{Start: c.QueryParam("start"), End: c.QueryParam("end")}
}

func httpError(err error) error {
	if errors.Is(err, ErrInvalidWindow) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	he := echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
	he.SetInternal(err)
	return he
}

// serve adapts one analysis to GET /analytics/<name>?start=&end=.
func (h *Handler) serve(fn func(context.Context, Window) (*Result, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		res, err := fn(c.Request().Context(), windowFromQuery(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

type summaryRequest struct {
	Start string `json:"start" query:"start"`
	End   string `json:"end" query:"end"`
}

type summaryResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// SummaryReport handles POST /analytics/summary with an optional
// {"start","end"} body.
func (h *Handler) SummaryReport(c echo.Context) error {
	var req summaryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	path, err := h.engine.SummaryReport(c.Request().Context(), Window{Start: req.Start, End: req.End})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, summaryResponse{Name: filepath.Base(path), Path: path})
}
