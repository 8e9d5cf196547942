package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/notify"
)

// ResultStore writes submitted results. Both methods must be idempotent on attempt ID.
type ResultStore interface {
	InsertBatch(ctx context.Context, batch []*notify.ResultMessage) error
	InsertOne(ctx context.Context, msg *notify.ResultMessage) error
}

// ErrInvalidResult marks a result that no retry can persist.
var ErrInvalidResult = errors.New("invalid result")

// invalid wraps data exceptions (22xxx) and integrity violations (23xxx) as
// ErrInvalidResult; everything else may succeed on retry.
func invalid(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")) {
		return fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}
	return err
}

// PgResultStore persists attempts and their answers in PostgreSQL.
type PgResultStore struct {
	pool *pgxpool.Pool
}

// NewPgResultStore creates a new PgResultStore.
func NewPgResultStore(pool *pgxpool.Pool) *PgResultStore {
	return &PgResultStore{pool: pool}
}

type parsedResult struct {
	msg          *notify.ResultMessage
	attemptID    uuid.UUID
	assessmentID uuid.UUID
}

func parse(msg *notify.ResultMessage) (parsedResult, error) {
	attemptID, err := uuid.Parse(msg.AttemptID)
	if err != nil {
		return parsedResult{}, fmt.Errorf("%w: attempt id: %w", ErrInvalidResult, err)
	}
	assessmentID, err := uuid.Parse(msg.AssessmentID)
	if err != nil {
		return parsedResult{}, fmt.Errorf("%w: assessment id: %w", ErrInvalidResult, err)
	}
	return parsedResult{msg: msg, attemptID: attemptID, assessmentID: assessmentID}, nil
}

// InsertBatch writes every attempt with one UNNEST insert and copies the
// answers of the attempts that were actually new.
func (s *PgResultStore) InsertBatch(ctx context.Context, batch []*notify.ResultMessage) error {
	n := len(batch)
	ids := make([]uuid.UUID, 0, n)
	assessments := make([]uuid.UUID, 0, n)
	users := make([]int, 0, n)
	scores := make([]int, 0, n)
	corrects := make([]int, 0, n)
	totals := make([]int, 0, n)
	autos := make([]bool, 0, n)
	submitted := make([]time.Time, 0, n)
	byID := make(map[uuid.UUID]*notify.ResultMessage, n)

	for _, m := range batch {
		p, err := parse(m)
		if err != nil {
			// Fallback handles the bad message individually.
			return err
		}
		ids = append(ids, p.attemptID)
		assessments = append(assessments, p.assessmentID)
		users = append(users, m.UserID)
		scores = append(scores, m.Score)
		corrects = append(corrects, m.Correct)
		totals = append(totals, m.Total)
		autos = append(autos, m.AutoSubmitted)
		submitted = append(submitted, m.SubmittedAt)
		byID[p.attemptID] = m
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `
		INSERT INTO attempts (id, assessment_id, user_id, score, correct_count,
		                      total_questions, auto_submitted, submitted_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::int[],
			$4::int[],
			$5::int[],
			$6::int[],
			$7::bool[],
			$8::timestamptz[]
		)
		ON CONFLICT (id) DO NOTHING
		RETURNING id`,
		ids, assessments, users, scores, corrects, totals, autos, submitted,
	)
	if err != nil {
		return fmt.Errorf("insert attempts: %w", err)
	}
	inserted, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("insert attempts: %w", err)
	}

	answerRows := make([][]interface{}, 0, n*8)
	for _, id := range inserted {
		rows, err := answerRowsOf(id, byID[id])
		if err != nil {
			return err
		}
		answerRows = append(answerRows, rows...)
	}

	if len(answerRows) > 0 {
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"attempt_answers"},
			[]string{"attempt_id", "question_id", "option_id", "is_correct"},
			pgx.CopyFromRows(answerRows),
		); err != nil {
			return fmt.Errorf("copy answers: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// InsertOne writes a single attempt. A duplicate attempt ID is not an error.
func (s *PgResultStore) InsertOne(ctx context.Context, msg *notify.ResultMessage) error {
	p, err := parse(msg)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`INSERT INTO attempts (id, assessment_id, user_id, score, correct_count,
		                       total_questions, auto_submitted, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		p.attemptID, p.assessmentID, msg.UserID, msg.Score, msg.Correct,
		msg.Total, msg.AutoSubmitted, msg.SubmittedAt,
	)
	if err != nil {
		return invalid(fmt.Errorf("insert attempt: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	rows, err := answerRowsOf(p.attemptID, msg)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := tx.Exec(ctx,
			`INSERT INTO attempt_answers (attempt_id, question_id, option_id, is_correct)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (attempt_id, question_id) DO NOTHING`,
			r...,
		); err != nil {
			return invalid(fmt.Errorf("insert answer: %w", err))
		}
	}

	return tx.Commit(ctx)
}

func answerRowsOf(attemptID uuid.UUID, msg *notify.ResultMessage) ([][]interface{}, error) {
	out := make([][]interface{}, 0, len(msg.Answers))
	for _, a := range msg.Answers {
		qID, err := uuid.Parse(a.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("%w: question id: %w", ErrInvalidResult, err)
		}
		out = append(out, []interface{}{attemptID, qID, a.OptionID, a.IsCorrect})
	}
	return out, nil
}
