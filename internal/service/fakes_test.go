package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-assessment/internal/model"
)

type memStore struct {
	mu          sync.Mutex
	assessments map[uuid.UUID]*model.Assessment
	questions   map[uuid.UUID][]model.Question
	reads       int
	updateErr   error
}

func newMemStore() *memStore {
	return &memStore{
		assessments: map[uuid.UUID]*model.Assessment{},
		questions:   map[uuid.UUID][]model.Question{},
	}
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	a, ok := m.assessments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListByAuthorPaginated(_ context.Context, authorID, limit, offset int) ([]model.Assessment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Assessment
	for _, a := range m.assessments {
		if authorID == 0 || a.AuthorID == authorID {
			out = append(out, *a)
		}
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return out[offset:end], total, nil
}

func (m *memStore) ListPublished(_ context.Context) ([]model.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Assessment
	for _, a := range m.assessments {
		if a.Status == model.AssessmentStatusPublished {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) CreateWithQuestions(_ context.Context, a *model.Assessment, questions []model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.QuestionCount = len(questions)
	a.CreatedAt = time.Now()
	for i := range questions {
		questions[i].AssessmentID = a.ID
	}
	cp := *a
	m.assessments[a.ID] = &cp
	m.questions[a.ID] = questions
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.AssessmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	a, ok := m.assessments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Status = status
	return nil
}

func (m *memStore) ListByAssessment(_ context.Context, id uuid.UUID) ([]model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	return m.questions[id], nil
}

func (m *memStore) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// manualTicker fires only when the test sends on ch.
type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}
