package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/xuri/excelize/v2"
)

type memAttempts struct {
	attempts []model.Attempt
	stats    []model.QuestionStat
}

func (m *memAttempts) ListByAssessment(_ context.Context, _ uuid.UUID, page, perPage int) ([]model.Attempt, int, error) {
	if perPage <= 0 {
		return m.attempts, len(m.attempts), nil
	}
	start := (page - 1) * perPage
	if start >= len(m.attempts) {
		return nil, len(m.attempts), nil
	}
	return m.attempts[start:min(start+perPage, len(m.attempts))], len(m.attempts), nil
}

func (m *memAttempts) ListByUser(_ context.Context, userID int) ([]model.Attempt, error) {
	var out []model.Attempt
	for _, a := range m.attempts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAttempts) Summary(_ context.Context, id uuid.UUID) (*model.ResultSummary, error) {
	return &model.ResultSummary{AssessmentID: id, Attempts: len(m.attempts)}, nil
}

func (m *memAttempts) QuestionStats(context.Context, uuid.UUID) ([]model.QuestionStat, error) {
	return m.stats, nil
}

func TestExportWritesWorkbook(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store := &memAttempts{
		attempts: []model.Attempt{
			{ID: uuid.New(), UserID: 1, Score: 40, CorrectCount: 2, TotalQuestions: 5, SubmittedAt: at},
			{ID: uuid.New(), UserID: 2, Score: 100, CorrectCount: 5, TotalQuestions: 5, AutoSubmitted: true, SubmittedAt: at},
		},
		stats: []model.QuestionStat{{OrderNum: 1, Text: "2 + 2", Answered: 2, Correct: 1}},
	}
	svc := NewResultService(store, zerolog.Nop())

	var buf bytes.Buffer
	if err := svc.Export(context.Background(), uuid.New(), &buf); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetAttempts)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][2] != "40" || rows[2][5] != "TRUE" {
		t.Fatalf("unexpected attempt rows: %v", rows[1:])
	}

	qrows, err := f.GetRows(sheetQuestions)
	if err != nil {
		t.Fatal(err)
	}
	if len(qrows) != 2 || qrows[1][4] != "50" {
		t.Fatalf("unexpected question rows: %v", qrows)
	}
}

func TestListByAssessmentClampsPaging(t *testing.T) {
	store := &memAttempts{}
	for i := 0; i < 3; i++ {
		store.attempts = append(store.attempts, model.Attempt{ID: uuid.New()})
	}
	svc := NewResultService(store, zerolog.Nop())

	items, p, err := svc.ListByAssessment(context.Background(), uuid.New(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Page != 1 || p.PerPage != 20 || len(items) != 3 || p.TotalPages != 1 {
		t.Fatalf("unexpected page: %+v (%d items)", p, len(items))
	}

	history, err := svc.ListByUser(context.Background(), 99)
	if err != nil || history == nil || len(history) != 0 {
		t.Fatalf("expected empty non-nil history, got %v %v", history, err)
	}
}
