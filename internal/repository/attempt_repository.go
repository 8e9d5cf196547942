package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const attemptColumns = `id, assessment_id, user_id, score, correct_count,
	total_questions, auto_submitted, submitted_at`

// AttemptRepository reads persisted attempts. Writes go through the result worker.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (model.Attempt, error) {
	var a model.Attempt
	err := row.Scan(&a.ID, &a.AssessmentID, &a.UserID, &a.Score, &a.CorrectCount,
		&a.TotalQuestions, &a.AutoSubmitted, &a.SubmittedAt)
	return a, err
}

// ListByAssessment retrieves the attempts of one assessment, newest first.
// perPage <= 0 returns every attempt.
func (r *AttemptRepository) ListByAssessment(ctx context.Context, assessmentID uuid.UUID, page, perPage int) ([]model.Attempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE assessment_id = $1`, assessmentID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE assessment_id = $1 ORDER BY submitted_at DESC`
	args := []any{assessmentID}
	if perPage > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, perPage, (page-1)*perPage)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// ListByUser retrieves a student's attempt history, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE user_id = $1 ORDER BY submitted_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Summary aggregates the attempts of one assessment.
func (r *AttemptRepository) Summary(ctx context.Context, assessmentID uuid.UUID) (*model.ResultSummary, error) {
	s := &model.ResultSummary{AssessmentID: assessmentID}
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(score), 0)::float8,
		        COALESCE(MIN(score), 0),
		        COALESCE(MAX(score), 0),
		        COUNT(*) FILTER (WHERE auto_submitted)
		 FROM attempts WHERE assessment_id = $1`, assessmentID,
	).Scan(&s.Attempts, &s.AverageScore, &s.MinScore, &s.MaxScore, &s.AutoSubmitted)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// QuestionStats counts answers and correct answers per question.
func (r *AttemptRepository) QuestionStats(ctx context.Context, assessmentID uuid.UUID) ([]model.QuestionStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.order_num, q.question_text,
		        COUNT(aa.question_id),
		        COUNT(aa.question_id) FILTER (WHERE aa.is_correct)
		 FROM questions q
		 LEFT JOIN attempt_answers aa ON aa.question_id = q.id
		 WHERE q.assessment_id = $1
		 GROUP BY q.id, q.order_num, q.question_text
		 ORDER BY q.order_num`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QuestionStat
	for rows.Next() {
		var s model.QuestionStat
		if err := rows.Scan(&s.QuestionID, &s.OrderNum, &s.Text, &s.Answered, &s.Correct); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
