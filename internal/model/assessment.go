package model

import (
	"time"

	"github.com/google/uuid"
)

// AssessmentStatus enumerates the possible states of an assessment.
type AssessmentStatus string

const (
	AssessmentStatusDraft     AssessmentStatus = "DRAFT"
	AssessmentStatusPublished AssessmentStatus = "PUBLISHED"
	AssessmentStatusArchived  AssessmentStatus = "ARCHIVED"
)

// Assessment represents a timed quiz definition.
type Assessment struct {
	ID               uuid.UUID        `json:"id"`
	Title            string           `json:"title"`
	Subject          string           `json:"subject"`
	AuthorID         int              `json:"author_id"`
	TimeLimitMinutes int              `json:"time_limit_minutes"`
	QuestionCount    int              `json:"question_count"`
	Status           AssessmentStatus `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// CreateAssessmentRequest is the payload for creating a draft assessment with its questions.
type CreateAssessmentRequest struct {
	Title            string                  `json:"title" binding:"required,min=3,max=255"`
	Subject          string                  `json:"subject" binding:"required,min=2,max=100"`
	TimeLimitMinutes int                     `json:"time_limit_minutes" binding:"required,min=1,max=480"`
	Questions        []CreateQuestionRequest `json:"questions" binding:"required,min=1,max=500,dive"`
}

// AssessmentPayload is the Redis-cached paper sent to students (no correct answers).
type AssessmentPayload struct {
	AssessmentID     uuid.UUID            `json:"assessment_id"`
	Title            string               `json:"title"`
	Subject          string               `json:"subject"`
	TimeLimitMinutes int                  `json:"time_limit_minutes"`
	Questions        []QuestionForStudent `json:"questions"`
}
