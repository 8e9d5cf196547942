package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/session"
)

type assessmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error)
	ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.Assessment, int, error)
	ListPublished(ctx context.Context) ([]model.Assessment, error)
	CreateWithQuestions(ctx context.Context, a *model.Assessment, questions []model.Question) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.AssessmentStatus) error
}

type questionStore interface {
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.Question, error)
}

// AssessmentService handles assessment business logic and Redis caching.
type AssessmentService struct {
	assessmentRepo assessmentStore
	questionRepo   questionStore
	rdb            *redis.Client
	log            zerolog.Logger
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(
	assessmentRepo assessmentStore,
	questionRepo questionStore,
	rdb *redis.Client,
	log zerolog.Logger,
) *AssessmentService {
	return &AssessmentService{
		assessmentRepo: assessmentRepo,
		questionRepo:   questionRepo,
		rdb:            rdb,
		log:            log.With().Str("component", "assessment_service").Logger(),
	}
}

// GetByID retrieves an assessment by its UUID.
func (s *AssessmentService) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	a, err := s.assessmentRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssessmentNotFound
	}
	return a, err
}

// List retrieves assessments, filtered by author unless authorID is 0.
func (s *AssessmentService) List(ctx context.Context, authorID, page, perPage int) ([]model.Assessment, *response.Pagination, error) {
	page, perPage, offset := response.Paginate(page, perPage, 10)

	items, total, err := s.assessmentRepo.ListByAuthorPaginated(ctx, authorID, perPage, offset)
	if err != nil {
		return nil, nil, err
	}
	if items == nil {
		items = []model.Assessment{}
	}

	return items, response.NewPagination(page, perPage, total), nil
}

// ListPublished returns every assessment a student can take.
func (s *AssessmentService) ListPublished(ctx context.Context) ([]model.Assessment, error) {
	items, err := s.assessmentRepo.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Assessment{}
	}
	return items, nil
}

// Create stores a new DRAFT assessment with its questions in request order.
func (s *AssessmentService) Create(ctx context.Context, authorID int, req *model.CreateAssessmentRequest) (*model.Assessment, error) {
	a := &model.Assessment{
		Title:            req.Title,
		Subject:          req.Subject,
		AuthorID:         authorID,
		TimeLimitMinutes: req.TimeLimitMinutes,
		Status:           model.AssessmentStatusDraft,
	}

	questions := make([]model.Question, len(req.Questions))
	for i, qr := range req.Questions {
		opts := make([]model.Option, len(qr.Options))
		for j, o := range qr.Options {
			opts[j] = model.Option{ID: o.ID, Text: o.Text}
		}
		questions[i] = model.Question{
			ID:            uuid.New(),
			Text:          qr.Text,
			Options:       opts,
			CorrectAnswer: qr.CorrectAnswer,
			OrderNum:      i + 1,
		}
	}

	// Reject anything a session could not be built from.
	if err := toSessionAssessment(a, questions).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAssessment, err)
	}

	if err := s.assessmentRepo.CreateWithQuestions(ctx, a, questions); err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}

	s.log.Info().
		Str("assessment_id", a.ID.String()).
		Int("questions", len(questions)).
		Msg("Assessment created")
	return a, nil
}

// Publish changes status to PUBLISHED and caches the payload + answer key in Redis.
// authorID 0 skips the author check.
func (s *AssessmentService) Publish(ctx context.Context, id uuid.UUID, authorID int) error {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if authorID != 0 && a.AuthorID != authorID {
		return ErrNotAssessmentAuthor
	}
	if a.Status != model.AssessmentStatusDraft {
		return ErrAssessmentNotDraft
	}

	a.Status = model.AssessmentStatusPublished
	if _, err := s.warmCache(ctx, a); err != nil {
		return err
	}

	if err := s.assessmentRepo.UpdateStatus(ctx, id, model.AssessmentStatusPublished); err != nil {
		// A cached paper is takeable, so it must not outlive a draft.
		if evictErr := s.evictCache(context.WithoutCancel(ctx), id.String()); evictErr != nil {
			s.log.Error().Err(evictErr).Str("assessment_id", id.String()).Msg("Cannot evict cache of unpublished assessment")
		}
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("assessment_id", id.String()).Msg("Assessment published")
	return nil
}

// evictCache removes everything warmCache wrote for id.
func (s *AssessmentService) evictCache(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, config.CacheKey.AssessmentPayloadKey(id), config.CacheKey.AssessmentAnswerKey(id))
	pipe.SRem(ctx, config.CacheKey.AssessmentPublishedSet(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// cachedAssessment is everything LoadForSession needs, as stored in Redis.
type cachedAssessment struct {
	payload *model.AssessmentPayload
	key     map[string]string
}

// warmCache loads questions from PostgreSQL and writes the student payload,
// the answer key hash and the published-set entry in one pipeline.
func (s *AssessmentService) warmCache(ctx context.Context, a *model.Assessment) (*cachedAssessment, error) {
	questions, err := s.questionRepo.ListByAssessment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	studentQuestions := make([]model.QuestionForStudent, len(questions))
	answerKey := make(map[string]string, len(questions))
	for i, q := range questions {
		studentQuestions[i] = model.QuestionForStudent{
			ID:       q.ID,
			Text:     q.Text,
			Options:  q.Options,
			OrderNum: q.OrderNum,
		}
		answerKey[q.ID.String()] = q.CorrectAnswer
	}

	payload := &model.AssessmentPayload{
		AssessmentID:     a.ID,
		Title:            a.Title,
		Subject:          a.Subject,
		TimeLimitMinutes: a.TimeLimitMinutes,
		Questions:        studentQuestions,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	id := a.ID.String()
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.AssessmentPayloadKey(id), payloadJSON, 0)
	pipe.Del(ctx, config.CacheKey.AssessmentAnswerKey(id))
	pipe.HSet(ctx, config.CacheKey.AssessmentAnswerKey(id), answerKey)
	pipe.SAdd(ctx, config.CacheKey.AssessmentPublishedSet(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("assessment_id", id).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return &cachedAssessment{payload: payload, key: answerKey}, nil
}

// PrewarmAllCaches loads all published assessments into Redis on startup.
func (s *AssessmentService) PrewarmAllCaches(ctx context.Context) error {
	items, err := s.assessmentRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published assessments: %w", err)
	}

	if len(items) == 0 {
		s.log.Info().Msg("No published assessments to prewarm")
		return nil
	}

	warmed := 0
	for i := range items {
		if _, err := s.warmCache(ctx, &items[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("assessment_id", items[i].ID.String()).
				Msg("Failed to warm assessment, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(items)).
		Msg("Prewarming complete")
	return nil
}

// load returns the cached assessment, falling back to PostgreSQL and
// re-caching on a miss. Only PUBLISHED assessments are ever returned.
func (s *AssessmentService) load(ctx context.Context, id uuid.UUID) (*cachedAssessment, error) {
	key := id.String()

	pipe := s.rdb.Pipeline()
	payloadCmd := pipe.Get(ctx, config.CacheKey.AssessmentPayloadKey(key))
	keyCmd := pipe.HGetAll(ctx, config.CacheKey.AssessmentAnswerKey(key))
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read cache: %w", err)
	}

	if data, err := payloadCmd.Bytes(); err == nil && len(keyCmd.Val()) > 0 {
		var payload model.AssessmentPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &cachedAssessment{payload: &payload, key: keyCmd.Val()}, nil
	}

	// Cache miss: PostgreSQL is the source of truth.
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AssessmentStatusPublished {
		return nil, ErrAssessmentNotPublished
	}

	s.log.Info().Str("assessment_id", key).Msg("Cache miss, self-healing from database")
	return s.warmCache(ctx, a)
}

// GetPaper returns the student-facing assessment without correct answers.
func (s *AssessmentService) GetPaper(ctx context.Context, id uuid.UUID) (*model.AssessmentPayload, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.payload, nil
}

// LoadForSession builds the session input for a published assessment.
func (s *AssessmentService) LoadForSession(ctx context.Context, id uuid.UUID) (session.Assessment, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return session.Assessment{}, err
	}

	out := session.Assessment{
		ID:               c.payload.AssessmentID.String(),
		Title:            c.payload.Title,
		Subject:          c.payload.Subject,
		TimeLimitMinutes: c.payload.TimeLimitMinutes,
		Questions:        make([]session.Question, len(c.payload.Questions)),
	}
	for i, q := range c.payload.Questions {
		out.Questions[i] = session.Question{
			ID:            q.ID.String(),
			Text:          q.Text,
			Options:       toSessionOptions(q.Options),
			CorrectAnswer: c.key[q.ID.String()],
		}
	}
	return out, nil
}

func toSessionAssessment(a *model.Assessment, questions []model.Question) session.Assessment {
	out := session.Assessment{
		ID:               a.ID.String(),
		Title:            a.Title,
		Subject:          a.Subject,
		TimeLimitMinutes: a.TimeLimitMinutes,
		Questions:        make([]session.Question, len(questions)),
	}
	for i, q := range questions {
		out.Questions[i] = session.Question{
			ID:            q.ID.String(),
			Text:          q.Text,
			Options:       toSessionOptions(q.Options),
			CorrectAnswer: q.CorrectAnswer,
		}
	}
	return out
}

func toSessionOptions(opts []model.Option) []session.Option {
	out := make([]session.Option, len(opts))
	for i, o := range opts {
		out[i] = session.Option{ID: o.ID, Text: o.Text}
	}
	return out
}
