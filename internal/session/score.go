package session

import (
	"math"
	"time"
)

// Result is the read-only outcome of a submitted session.
type Result struct {
	AttemptID     string            `json:"attempt_id"`
	AssessmentID  string            `json:"assessment_id"`
	UserID        int               `json:"user_id"`
	Score         int               `json:"score"`
	Correct       int               `json:"correct"`
	Total         int               `json:"total"`
	Answers       map[string]string `json:"answers"`
	Questions     []Question        `json:"questions"`
	AutoSubmitted bool              `json:"auto_submitted"`
	SubmittedAt   time.Time         `json:"submitted_at"`
}

// Outcome is the per-question correctness shown on the results screen.
type Outcome struct {
	QuestionID    string `json:"question_id"`
	Selected      string `json:"selected,omitempty"`
	CorrectAnswer string `json:"correct_answer,omitempty"`
	IsCorrect     bool   `json:"is_correct"`
}

// Outcomes lists one entry per question in assessment order.
func (r Result) Outcomes() []Outcome {
	out := make([]Outcome, len(r.Questions))
	for i, q := range r.Questions {
		selected := r.Answers[q.ID]
		out[i] = Outcome{
			QuestionID:    q.ID,
			Selected:      selected,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     isCorrect(q, selected),
		}
	}
	return out
}

// Score counts correct answers and converts them to a 0..100 percentage.
// Unanswered questions count as incorrect.
func Score(questions []Question, answers map[string]string) (correct, score int, err error) {
	if len(questions) == 0 {
		return 0, 0, ErrDegenerateAssessment
	}
	for _, q := range questions {
		if isCorrect(q, answers[q.ID]) {
			correct++
		}
	}
	score = int(math.Round(100 * float64(correct) / float64(len(questions))))
	return correct, score, nil
}

// A question without a correct answer can never be answered correctly.
func isCorrect(q Question, selected string) bool {
	return q.CorrectAnswer != "" && selected == q.CorrectAnswer
}
