package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/middleware"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	"github.com/noah-isme/supercurriculum-admin/internal/service"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
	"github.com/noah-isme/supercurriculum-admin/pkg/response"
)

const maxImportFileBytes = 10 << 20

type importService interface {
	ImportFile(ctx context.Context, sess *models.Session, filename string, file io.Reader) (*models.ImportReport, error)
	ImportText(ctx context.Context, sess *models.Session, text string) (*models.ImportReport, error)
	ParseDocument(ctx context.Context, sess *models.Session, req dto.DocumentImportRequest) (*models.ImportReport, error)
	ConfirmStaged(ctx context.Context, sess *models.Session) (*models.ImportReport, error)
	State(sess *models.Session) dto.ImportStateResponse
	History(ctx context.Context, sess *models.Session, limit int) ([]models.ImportReport, error)
	ExportReport(sess *models.Session, format service.ReportFormat) (*service.RenderedReport, error)
}

// ImportHandler exposes the bulk import flows.
type ImportHandler struct {
	service importService
}

// NewImportHandler constructs the handler.
func NewImportHandler(svc importService) *ImportHandler {
	return &ImportHandler{service: svc}
}

// State godoc
// @Summary Import state
// @Description Returns the reconciler state and the last report of the current session.
// @Tags Imports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/imports/report [get]
func (h *ImportHandler) State(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.State(middleware.SessionFromContext(c)))
}

// UploadCSV godoc
// @Summary Import a CSV file
// @Tags Imports
// @Accept mpfd
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /api/imports/csv [post]
func (h *ImportHandler) UploadCSV(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	if header.Size > maxImportFileBytes {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusRequestEntityTooLarge, "file too large"))
		return
	}
	if !strings.EqualFold(extension(header.Filename), ".csv") {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "only .csv files are accepted"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read file"))
		return
	}
	defer file.Close()

	report, err := h.service.ImportFile(c.Request.Context(), middleware.SessionFromContext(c), header.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// ImportStructured godoc
// @Summary Import pasted structured text
// @Description Accepts a list of topic objects or an object with a topics list.
// @Tags Imports
// @Accept json
// @Produce json
// @Param payload body dto.StructuredImportRequest true "Structured text"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /api/imports/json [post]
func (h *ImportHandler) ImportStructured(c *gin.Context) {
	var req dto.StructuredImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid import payload"))
		return
	}
	report, err := h.service.ImportText(c.Request.Context(), middleware.SessionFromContext(c), req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// ParseDocument godoc
// @Summary Parse a free-text document
// @Description Stages topics extracted by the backend. Nothing is imported until confirmed.
// @Tags Imports
// @Accept json
// @Produce json
// @Param payload body dto.DocumentImportRequest true "Document"
// @Success 200 {object} response.Envelope
// @Router /api/imports/document [post]
func (h *ImportHandler) ParseDocument(c *gin.Context) {
	var req dto.DocumentImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document payload"))
		return
	}
	report, err := h.service.ParseDocument(c.Request.Context(), middleware.SessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// Confirm godoc
// @Summary Confirm staged records
// @Tags Imports
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /api/imports/document/confirm [post]
func (h *ImportHandler) Confirm(c *gin.Context) {
	report, err := h.service.ConfirmStaged(c.Request.Context(), middleware.SessionFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// Export godoc
// @Summary Download the last report
// @Tags Imports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200
// @Failure 404 {object} response.Envelope
// @Router /api/imports/report/export [get]
func (h *ImportHandler) Export(c *gin.Context) {
	format := service.ReportFormat(strings.ToLower(strings.TrimSpace(c.Query("format"))))
	rendered, err := h.service.ExportReport(middleware.SessionFromContext(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+rendered.Filename+"\"")
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, rendered.ContentType, rendered.Body)
}

// History godoc
// @Summary Recent import reports
// @Tags Imports
// @Produce json
// @Param limit query int false "Maximum reports"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /api/imports/history [get]
func (h *ImportHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	reports, err := h.service.History(c.Request.Context(), middleware.SessionFromContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports)
}

func extension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}
