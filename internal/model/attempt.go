package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is a persisted, submitted assessment session.
type Attempt struct {
	ID             uuid.UUID `json:"id"`
	AssessmentID   uuid.UUID `json:"assessment_id"`
	UserID         int       `json:"user_id"`
	Score          int       `json:"score"`
	CorrectCount   int       `json:"correct_count"`
	TotalQuestions int       `json:"total_questions"`
	AutoSubmitted  bool      `json:"auto_submitted"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// AttemptAnswer is one captured answer of an attempt.
type AttemptAnswer struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	QuestionID uuid.UUID `json:"question_id"`
	OptionID   string    `json:"option_id"`
	IsCorrect  bool      `json:"is_correct"`
}

// ResultSummary aggregates the attempts of one assessment.
type ResultSummary struct {
	AssessmentID  uuid.UUID `json:"assessment_id"`
	Attempts      int       `json:"attempts"`
	AverageScore  float64   `json:"average_score"`
	MinScore      int       `json:"min_score"`
	MaxScore      int       `json:"max_score"`
	AutoSubmitted int       `json:"auto_submitted"`
}

// QuestionStat is the per-question correctness rate used by the export.
type QuestionStat struct {
	QuestionID uuid.UUID `json:"question_id"`
	OrderNum   int       `json:"order_num"`
	Text       string    `json:"text"`
	Answered   int       `json:"answered"`
	Correct    int       `json:"correct"`
}
