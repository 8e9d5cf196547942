package service

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/xuri/excelize/v2"
)

type attemptStore interface {
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID, page, perPage int) ([]model.Attempt, int, error)
	ListByUser(ctx context.Context, userID int) ([]model.Attempt, error)
	Summary(ctx context.Context, assessmentID uuid.UUID) (*model.ResultSummary, error)
	QuestionStats(ctx context.Context, assessmentID uuid.UUID) ([]model.QuestionStat, error)
}

const (
	sheetAttempts  = "Attempts"
	sheetQuestions = "Questions"
)

// ResultService reads persisted attempts for reporting.
type ResultService struct {
	attemptRepo attemptStore
	log         zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(attemptRepo attemptStore, log zerolog.Logger) *ResultService {
	return &ResultService{
		attemptRepo: attemptRepo,
		log:         log.With().Str("component", "result_service").Logger(),
	}
}

// ListByAssessment returns one page of attempts for an assessment.
func (s *ResultService) ListByAssessment(ctx context.Context, assessmentID uuid.UUID, page, perPage int) ([]model.Attempt, *response.Pagination, error) {
	page, perPage, _ = response.Paginate(page, perPage, 20)

	items, total, err := s.attemptRepo.ListByAssessment(ctx, assessmentID, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	if items == nil {
		items = []model.Attempt{}
	}

	return items, response.NewPagination(page, perPage, total), nil
}

// ListByUser returns a student's attempt history.
func (s *ResultService) ListByUser(ctx context.Context, userID int) ([]model.Attempt, error) {
	items, err := s.attemptRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Attempt{}
	}
	return items, nil
}

// Summary aggregates the attempts of an assessment.
func (s *ResultService) Summary(ctx context.Context, assessmentID uuid.UUID) (*model.ResultSummary, error) {
	return s.attemptRepo.Summary(ctx, assessmentID)
}

// Export writes an xlsx workbook with every attempt and per-question statistics.
func (s *ResultService) Export(ctx context.Context, assessmentID uuid.UUID, w io.Writer) error {
	attempts, _, err := s.attemptRepo.ListByAssessment(ctx, assessmentID, 1, 0)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}
	stats, err := s.attemptRepo.QuestionStats(ctx, assessmentID)
	if err != nil {
		return fmt.Errorf("question stats: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetAttempts); err != nil {
		return err
	}
	header := []interface{}{"Attempt ID", "User ID", "Score", "Correct", "Total", "Auto Submitted", "Submitted At"}
	if err := f.SetSheetRow(sheetAttempts, "A1", &header); err != nil {
		return err
	}
	for i, a := range attempts {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			a.ID.String(), a.UserID, a.Score, a.CorrectCount, a.TotalQuestions,
			a.AutoSubmitted, a.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(sheetAttempts, cell, &row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(sheetQuestions); err != nil {
		return err
	}
	header = []interface{}{"No", "Question", "Answered", "Correct", "Correct %"}
	if err := f.SetSheetRow(sheetQuestions, "A1", &header); err != nil {
		return err
	}
	for i, q := range stats {
		rate := 0.0
		if len(attempts) > 0 {
			rate = float64(q.Correct) * 100 / float64(len(attempts))
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{q.OrderNum, q.Text, q.Answered, q.Correct, rate}
		if err := f.SetSheetRow(sheetQuestions, cell, &row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	s.log.Info().
		Str("assessment_id", assessmentID.String()).
		Int("attempts", len(attempts)).
		Msg("Results exported")
	return nil
}
