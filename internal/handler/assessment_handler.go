package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// AssessmentHandler handles assessment management endpoints.
type AssessmentHandler struct {
	assessmentService *service.AssessmentService
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(assessmentService *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessmentService: assessmentService}
}

// authorScope returns 0 for admins allowed to manage every assessment.
func authorScope(claims *service.Claims) int {
	if claims.HasPermission(string(model.PermissionAssessmentsWriteAll)) {
		return 0
	}
	return claims.UserID
}

// ListAssessments godoc
// GET /api/v1/admin/assessments
// Lists assessments with pagination. Admins with write_all see all; others see only their own.
func (h *AssessmentHandler) ListAssessments(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	items, pagination, err := h.assessmentService.List(c.Request.Context(), authorScope(claims), page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"assessments": items}, pagination)
}

// CreateAssessment godoc
// POST /api/v1/admin/assessments
// Creates a draft assessment with its questions.
func (h *AssessmentHandler) CreateAssessment(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, err := h.assessmentService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Created(c, gin.H{"assessment": a})
}

// GetAssessment godoc
// GET /api/v1/admin/assessments/:assessment_id
func (h *AssessmentHandler) GetAssessment(c *gin.Context) {
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

	response.Success(c, http.StatusOK, gin.H{"assessment": a})
}

// PublishAssessment godoc
// POST /api/v1/admin/assessments/:assessment_id/publish
// Publishes an assessment: caches payload + answer key to Redis, changes status.
func (h *AssessmentHandler) PublishAssessment(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.assessmentService.Publish(c.Request.Context(), id, authorScope(claims)); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Assessment published successfully"})
}
