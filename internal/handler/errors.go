package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/session"
)

// failFromError maps a domain error to its HTTP status and error code.
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAssessmentNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotAssessmentAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotAssessmentAuthor)
	case errors.Is(err, service.ErrAssessmentNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrAssessmentNotDraft)
	case errors.Is(err, service.ErrAssessmentNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrAssessmentNotPublished)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	case errors.Is(err, service.ErrInvalidAssessment), errors.Is(err, session.ErrDegenerateAssessment):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidAssessment)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
