package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/notify"
	"github.com/stemsi/exstem-assessment/internal/session"
)

// AssessmentSource provides the session input for an assessment ID.
type AssessmentSource interface {
	LoadForSession(ctx context.Context, id uuid.UUID) (session.Assessment, error)
}

// AttemptHooks connect a running attempt to its view. Every hook is optional.
type AttemptHooks struct {
	// OnTick receives a snapshot after every countdown tick.
	OnTick func(session.State)
	// OnResult receives the result once, before it is forwarded for persistence.
	OnResult func(session.Result)
	// OnNotifyFailure receives an error wrapping session.ErrNotificationFailure.
	OnNotifyFailure func(error)
}

// AttemptService opens live assessment sessions.
type AttemptService struct {
	source        AssessmentSource
	notifier      notify.Notifier
	tick          time.Duration
	notifyTimeout time.Duration
	log           zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(source AssessmentSource, notifier notify.Notifier, cfg *config.Config, log zerolog.Logger) *AttemptService {
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AttemptService{
		source:        source,
		notifier:      notifier,
		tick:          cfg.SessionTick,
		notifyTimeout: timeout,
		log:           log.With().Str("component", "attempt_service").Logger(),
	}
}

// Attempt is one live session with its event loop.
type Attempt struct {
	ID     string
	runner *session.Runner

	svc     *AttemptService
	hooks   AttemptHooks
	log     zerolog.Logger
	pending sync.WaitGroup
}

// Open loads the assessment and prepares a session for userID with the
// full time limit. The countdown starts when Run is called.
func (s *AttemptService) Open(ctx context.Context, assessmentID uuid.UUID, userID int, hooks AttemptHooks, opts ...session.RunnerOption) (*Attempt, error) {
	a, err := s.source.LoadForSession(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	att := &Attempt{
		ID:    uuid.New().String(),
		svc:   s,
		hooks: hooks,
	}
	att.log = s.log.With().
		Str("attempt_id", att.ID).
		Str("assessment_id", a.ID).
		Int("user_id", userID).
		Logger()

	sess, err := session.New(a, session.Config{
		AttemptID: att.ID,
		UserID:    userID,
		OnSubmit:  att.onSubmit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAssessment, err)
	}

	runnerOpts := []session.RunnerOption{session.WithInterval(s.tick)}
	if hooks.OnTick != nil {
		runnerOpts = append(runnerOpts, session.WithTickHook(hooks.OnTick))
	}
	att.runner = session.NewRunner(sess, append(runnerOpts, opts...)...)

	return att, nil
}

// Run drives the countdown until submission or ctx cancellation.
func (a *Attempt) Run(ctx context.Context) error {
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	a.log.Info().Int("remaining_seconds", a.runner.Session().Remaining()).Msg("Attempt started")
	err := a.runner.Run(ctx)
	a.log.Info().Str("status", string(a.runner.Session().Status())).Msg("Attempt stopped")
	return err
}

// Do runs fn on the attempt's event loop.
func (a *Attempt) Do(ctx context.Context, fn func(*session.Session) error) error {
	return a.runner.Do(ctx, fn)
}

// Session exposes the underlying session for read-only queries.
func (a *Attempt) Session() *session.Session {
	return a.runner.Session()
}

// Done is closed once Run has returned.
func (a *Attempt) Done() <-chan struct{} {
	return a.runner.Done()
}

// Wait blocks until the result notification, if any, has finished.
func (a *Attempt) Wait() {
	a.pending.Wait()
}

func (a *Attempt) onSubmit(res session.Result) {
	metrics.ObserveSubmission(res.Score, res.AutoSubmitted)
	a.log.Info().
		Int("score", res.Score).
		Int("correct", res.Correct).
		Int("total", res.Total).
		Bool("auto_submitted", res.AutoSubmitted).
		Msg("Attempt submitted")

	if a.hooks.OnResult != nil {
		a.hooks.OnResult(res)
	}

	// The notification must outlive the view, so it is detached from it.
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.svc.notifyTimeout)
		defer cancel()

		if err := a.svc.notifier.Notify(ctx, res); err != nil {
			metrics.NotificationFailures.Inc()
			a.log.Warn().Err(err).Msg("Result notification failed")
			if a.hooks.OnNotifyFailure != nil {
				a.hooks.OnNotifyFailure(fmt.Errorf("%w: %w", session.ErrNotificationFailure, err))
			}
		}
	}()
}
