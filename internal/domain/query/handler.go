package query

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/ehr/medrecord/internal/domain/record"
	"github.com/ehr/medrecord/internal/platform/auth"
	"github.com/ehr/medrecord/pkg/pagination"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleAnalyst))
	readGroup.GET("/records", h.SearchRecords)

	exportGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleAnalyst))
	exportGroup.POST("/exports", h.CreateExport)
	exportGroup.GET("/exports/:name", h.DownloadExport)
}

// SearchRecords handles GET /records?department=&visit_date_from=&visit_date_to=
// &diagnosis=&sort_by=&sort_order=&page=&page_size=
func (h *Handler) SearchRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	page, err := h.engine.Search(c.Request().Context(), SearchParams{
		Filter: record.Filter{
			Department:    c.QueryParam("department"),
			VisitDateFrom: c.QueryParam("visit_date_from"),
			VisitDateTo:   c.QueryParam("visit_date_to"),
			Diagnosis:     c.QueryParam("diagnosis"),
		},
		SortBy:    c.QueryParam("sort_by"),
		SortOrder: c.QueryParam("sort_order"),
		Page:      pg.Page,
		PageSize:  pg.PageSize,
	})
	if err != nil {
		return record.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page.Items, page.Total, page.Params))
}

type exportRequest struct {
	RecordIDs          []string `json:"record_ids"`
	Format             string   `json:"format"`
	IncludeAttachments bool     `json:"include_attachments"`
}

type exportResponse struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Records int    `json:"records"`
}

func (h *Handler) CreateExport(c echo.Context) error {
	var req exportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.RecordIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "record_ids is required")
	}
	if req.Format == "" {
		req.Format = string(FormatJSON)
	}

	path, err := h.engine.Export(c.Request().Context(), req.RecordIDs, req.Format, req.IncludeAttachments)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return record.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, exportResponse{
		Name:    filepath.Base(path),
		Path:    path,
		Records: len(req.RecordIDs),
	})
}

// DownloadExport serves a previously written export by file name.
func (h *Handler) DownloadExport(c echo.Context) error {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || name[0] == '.' {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid export name")
	}
	path := filepath.Join(h.engine.exportDir, name)
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "export not found")
	}
	return c.Attachment(path, name)
}
