package record

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/medrecord/internal/domain/validation"
	"github.com/ehr/medrecord/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	readGroup.GET("/records/:id", h.GetRecord)
	readGroup.GET("/records/:id/versions", h.ListVersions)
	readGroup.GET("/records/:id/versions/:version", h.GetVersion)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleDoctor))
	writeGroup.POST("/records", h.CreateRecord)
	writeGroup.PATCH("/records/:id", h.UpdateRecord)
	writeGroup.POST("/records/:id/examinations", h.AddExamination)
	writeGroup.POST("/records/:id/prescriptions", h.AddPrescription)
	writeGroup.POST("/records/:id/operations", h.AddOperation)
	writeGroup.POST("/records/:id/attachments", h.UploadAttachment)
}

// HTTPError maps domain errors onto HTTP responses: violations become 422
// with the violation list, missing records 404 and version conflicts 409.
func HTTPError(err error) error {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]any{
			"message":    "validation failed",
			"violations": verr.Violations,
		})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}

func author(c echo.Context) (string, error) {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	return uid, nil
}

func (h *Handler) CreateRecord(c echo.Context) error {
	by, err := author(c)
	if err != nil {
		return err
	}
	var f RecordFields
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.svc.CreateRecord(c.Request().Context(), f, by)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"record_id": id})
}

func (h *Handler) GetRecord(c echo.Context) error {
	includeVersions, _ := strconv.ParseBool(c.QueryParam("include_versions"))
	view, err := h.svc.GetRecord(c.Request().Context(), c.Param("id"), includeVersions)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, view)
}

// UpdateRecord applies a partial update. The optional expected_version query
// parameter turns on the optimistic version check.
func (h *Handler) UpdateRecord(c echo.Context) error {
	by, err := author(c)
	if err != nil {
		return err
	}
	expected := 0
	if v := c.QueryParam("expected_version"); v != "" {
		expected, err = strconv.Atoi(v)
		if err != nil || expected < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid expected_version")
		}
	}
	var patch RecordFields
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.UpdateRecord(c.Request().Context(), c.Param("id"), patch, by, expected)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVersions(c echo.Context) error {
	versions, err := h.svc.ListVersions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, versions)
}

func (h *Handler) GetVersion(c echo.Context) error {
	n, err := strconv.Atoi(c.Param("version"))
	if err != nil || n < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version")
	}
	v, err := h.svc.GetVersion(c.Request().Context(), c.Param("id"), n)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

// -- Child Handlers --

func (h *Handler) AddExamination(c echo.Context) error {
	by, err := author(c)
	if err != nil {
		return err
	}
	var f ExaminationFields
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.AddExamination(c.Request().Context(), c.Param("id"), f, by)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) AddPrescription(c echo.Context) error {
	by, err := author(c)
	if err != nil {
		return err
	}
	var f PrescriptionFields
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AddPrescription(c.Request().Context(), c.Param("id"), f, by)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) AddOperation(c echo.Context) error {
	by, err := author(c)
	if err != nil {
		return err
	}
	var f OperationFields
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.AddOperation(c.Request().Context(), c.Param("id"), f, by)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

// UploadAttachment accepts a multipart form with the binary in "file".
func (h *Handler) UploadAttachment(c echo.Context) error {
	by, err := author(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer src.Close()

	contentType := fh.Header.Get("Content-Type")
	if ct := c.FormValue("file_type"); ct != "" {
		contentType = ct
	}
	att, err := h.svc.UploadAttachment(c.Request().Context(), c.Param("id"), Upload{
		FileName:    fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Content:     src,
	}, by)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, att)
}
