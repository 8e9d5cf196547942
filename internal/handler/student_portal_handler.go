package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// StudentPortalHandler handles student-facing REST endpoints.
type StudentPortalHandler struct {
	assessmentService *service.AssessmentService
	resultService     *service.ResultService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	assessmentService *service.AssessmentService,
	resultService *service.ResultService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		assessmentService: assessmentService,
		resultService:     resultService,
	}
}

// ListAssessments godoc
// GET /api/v1/student/assessments
// Returns every published assessment.
func (h *StudentPortalHandler) ListAssessments(c *gin.Context) {
	items, err := h.assessmentService.ListPublished(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"assessments": items})
}

// GetPaper godoc
// GET /api/v1/student/assessments/:assessment_id/paper
// Returns the assessment payload from Redis, without correct answers.
func (h *StudentPortalHandler) GetPaper(c *gin.Context) {
	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	paper, err := h.assessmentService.GetPaper(c.Request.Context(), id)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// ListAttempts godoc
// GET /api/v1/student/attempts
// Returns the caller's submitted attempts, newest first.
func (h *StudentPortalHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	items, err := h.resultService.ListByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": items})
}
