package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ResultHandler handles result reporting endpoints.
type ResultHandler struct {
	resultService     *service.ResultService
	assessmentService *service.AssessmentService
	log               zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(resultService *service.ResultService, assessmentService *service.AssessmentService, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		resultService:     resultService,
		assessmentService: assessmentService,
		log:               log.With().Str("component", "result_handler").Logger(),
	}
}

// ListResults godoc
// GET /api/v1/admin/assessments/:assessment_id/results
func (h *ResultHandler) ListResults(c *gin.Context) {
	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	items, pagination, err := h.resultService.ListByAssessment(c.Request.Context(), id, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": items}, pagination)
}

// GetSummary godoc
// GET /api/v1/admin/assessments/:assessment_id/results/summary
func (h *ResultHandler) GetSummary(c *gin.Context) {
	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	summary, err := h.resultService.Summary(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// ExportResults godoc
// GET /api/v1/admin/assessments/:assessment_id/results/export
// Downloads every attempt and per-question statistics as an xlsx workbook.
func (h *ResultHandler) ExportResults(c *gin.Context) {
	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	a, err := h.assessmentService.GetByID(c.Request.Context(), id)
	if err != nil {
		failFromError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.resultService.Export(c.Request.Context(), id, &buf); err != nil {
		h.log.Error().Err(err).Str("assessment_id", id.String()).Msg("Export failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Attachment(c, fmt.Sprintf("results-%s.xlsx", a.ID), xlsxContentType, buf.Bytes())
}
