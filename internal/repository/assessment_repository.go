package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const assessmentColumns = `id, title, subject, author_id, time_limit_minutes,
	question_count, status, created_at, updated_at`

// AssessmentRepository handles assessment data access.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

func scanAssessment(row pgx.Row) (*model.Assessment, error) {
	a := &model.Assessment{}
	err := row.Scan(&a.ID, &a.Title, &a.Subject, &a.AuthorID, &a.TimeLimitMinutes,
		&a.QuestionCount, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an assessment by its UUID.
func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	return scanAssessment(r.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id))
}

// ListByAuthorPaginated retrieves assessments filtered by author with pagination.
// Pass authorID=0 to list all assessments.
func (r *AssessmentRepository) ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.Assessment, int, error) {
	where := ""
	args := []any{}
	if authorID > 0 {
		where = ` WHERE author_id = $1`
		args = append(args, authorID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM assessments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM assessments%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		assessmentColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// ListPublished retrieves every assessment students can currently take.
func (r *AssessmentRepository) ListPublished(ctx context.Context) ([]model.Assessment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE status = $1 ORDER BY title`,
		model.AssessmentStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CreateWithQuestions inserts a draft assessment and its ordered questions in
// one transaction. IDs are assigned here so questions can be bulk copied.
func (r *AssessmentRepository) CreateWithQuestions(ctx context.Context, a *model.Assessment, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.QuestionCount = len(questions)

	err = tx.QueryRow(ctx,
		`INSERT INTO assessments (id, title, subject, author_id, time_limit_minutes, question_count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		a.ID, a.Title, a.Subject, a.AuthorID, a.TimeLimitMinutes, a.QuestionCount, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}

	rows := make([][]any, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		q.AssessmentID = a.ID
		q.OrderNum = i + 1

		opts, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		rows = append(rows, []any{q.ID, q.AssessmentID, q.Text, opts, q.CorrectAnswer, q.OrderNum})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"id", "assessment_id", "question_text", "options", "correct_option", "order_num"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy questions: %w", err)
	}

	return tx.Commit(ctx)
}

// UpdateStatus changes the status of an assessment.
func (r *AssessmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AssessmentStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assessments SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
