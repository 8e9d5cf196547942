package model

import (
	"github.com/google/uuid"
)

// Option is a selectable answer, stored as JSONB on the question row.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question represents a single assessment question.
type Question struct {
	ID            uuid.UUID `json:"id"`
	AssessmentID  uuid.UUID `json:"assessment_id"`
	Text          string    `json:"text"`
	Options       []Option  `json:"options"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	OrderNum      int       `json:"order_num"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Options  []Option  `json:"options"`
	OrderNum int       `json:"order_num"`
}

// OptionRequest is one option inside CreateQuestionRequest.
type OptionRequest struct {
	ID   string `json:"id" binding:"required,max=10"`
	Text string `json:"text" binding:"required,max=1000"`
}

// CreateQuestionRequest is the payload for one question of a new assessment.
type CreateQuestionRequest struct {
	Text          string          `json:"text" binding:"required,min=1,max=2000"`
	Options       []OptionRequest `json:"options" binding:"required,min=2,max=10,dive"`
	CorrectAnswer string          `json:"correct_answer" binding:"omitempty,max=10"`
}
