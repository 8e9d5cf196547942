// Package session implements a single timed attempt at an assessment:
// navigation, answer capture, review flags, the countdown and scoring.
package session

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// LowTimeThreshold is the remaining time under which the view warns the taker.
const LowTimeThreshold = 300

// Option is one selectable answer of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is immutable for the lifetime of a session.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []Option `json:"options"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

func (q Question) hasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Assessment is the input a session is built from.
type Assessment struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Subject          string     `json:"subject"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	Questions        []Question `json:"questions"`
}

// Validate checks the assessment invariants a session relies on.
func (a Assessment) Validate() error {
	if len(a.Questions) == 0 {
		return ErrDegenerateAssessment
	}
	if a.TimeLimitMinutes <= 0 {
		return fmt.Errorf("%w: time limit must be positive, got %d", ErrInvalidInput, a.TimeLimitMinutes)
	}

	seen := make(map[string]struct{}, len(a.Questions))
	for _, q := range a.Questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question without id", ErrInvalidInput)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidInput, q.ID)
		}
		seen[q.ID] = struct{}{}

		opts := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			if _, dup := opts[o.ID]; dup {
				return fmt.Errorf("%w: duplicate option id %q in question %q", ErrInvalidInput, o.ID, q.ID)
			}
			opts[o.ID] = struct{}{}
		}
		if q.CorrectAnswer != "" && !q.hasOption(q.CorrectAnswer) {
			return fmt.Errorf("%w: correct answer %q is not an option of question %q", ErrInvalidInput, q.CorrectAnswer, q.ID)
		}
	}
	return nil
}

// Status is the submission state of a session.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitting Status = "SUBMITTING"
	StatusSubmitted  Status = "SUBMITTED"
)

// Config carries everything a session needs from its owner.
type Config struct {
	AttemptID string
	UserID    int
	// OnSubmit receives the result exactly once.
	OnSubmit func(Result)
	Now      func() time.Time
}

// State is a point-in-time snapshot for rendering.
type State struct {
	AssessmentID      string            `json:"assessment_id"`
	CurrentIndex      int               `json:"current_index"`
	CurrentQuestionID string            `json:"current_question_id"`
	TotalQuestions    int               `json:"total_questions"`
	Answers           map[string]string `json:"answers"`
	Flagged           []string          `json:"flagged"`
	RemainingSeconds  int               `json:"remaining_seconds"`
	Progress          int               `json:"progress"`
	LowTime           bool              `json:"low_time"`
	Status            Status            `json:"status"`
}

// Session is one attempt at an assessment. All methods are safe for
// concurrent use, but a Runner is expected to be the only caller.
type Session struct {
	mu sync.Mutex

	assessment Assessment
	index      map[string]int
	cfg        Config

	current   int
	answers   map[string]string
	flagged   map[string]struct{}
	remaining int
	status    Status
	result    *Result
}

// New starts a session with the full time limit on the clock.
func New(a Assessment, cfg Config) (*Session, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	index := make(map[string]int, len(a.Questions))
	for i, q := range a.Questions {
		index[q.ID] = i
	}

	return &Session{
		assessment: a,
		index:      index,
		cfg:        cfg,
		answers:    make(map[string]string),
		flagged:    make(map[string]struct{}),
		remaining:  a.TimeLimitMinutes * 60,
		status:     StatusInProgress,
	}, nil
}

// Assessment returns the assessment the session was built from.
func (s *Session) Assessment() Assessment {
	return s.assessment
}

// SelectAnswer records optionID as the answer to questionID, replacing any
// previous answer.
func (s *Session) SelectAnswer(questionID, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress {
		return ErrSessionClosed
	}
	i, ok := s.index[questionID]
	if !ok {
		return fmt.Errorf("%w: unknown question %q", ErrInvalidInput, questionID)
	}
	if !s.assessment.Questions[i].hasOption(optionID) {
		return fmt.Errorf("%w: unknown option %q for question %q", ErrInvalidInput, optionID, questionID)
	}

	s.answers[questionID] = optionID
	return nil
}

// ToggleFlag marks or unmarks a question for review.
func (s *Session) ToggleFlag(questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress {
		return ErrSessionClosed
	}
	if _, ok := s.index[questionID]; !ok {
		return fmt.Errorf("%w: unknown question %q", ErrInvalidInput, questionID)
	}

	if _, on := s.flagged[questionID]; on {
		delete(s.flagged, questionID)
	} else {
		s.flagged[questionID] = struct{}{}
	}
	return nil
}

// Next moves to the following question. It stays put on the last one.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress {
		return ErrSessionClosed
	}
	if s.current < len(s.assessment.Questions)-1 {
		s.current++
	}
	return nil
}

// Previous moves to the preceding question. It stays put on the first one.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress {
		return ErrSessionClosed
	}
	if s.current > 0 {
		s.current--
	}
	return nil
}

// GoTo jumps straight to the question at index.
func (s *Session) GoTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress {
		return ErrSessionClosed
	}
	if index < 0 || index >= len(s.assessment.Questions) {
		return fmt.Errorf("%w: question index %d out of range", ErrInvalidInput, index)
	}
	s.current = index
	return nil
}

// Tick consumes one second of the countdown. When the clock reaches zero the
// session submits itself and Tick reports true.
func (s *Session) Tick() bool {
	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return false
	}
	s.remaining--
	if s.remaining > 0 {
		s.mu.Unlock()
		return false
	}
	s.remaining = 0
	res, first := s.submitLocked(true)
	s.mu.Unlock()

	if first {
		s.emit(res)
	}
	return first
}

// Submit scores the session and hands the result to the owner. Only the
// first call scores; later calls return the stored result and false.
func (s *Session) Submit() (Result, bool) {
	s.mu.Lock()
	res, first := s.submitLocked(false)
	s.mu.Unlock()

	if first {
		s.emit(res)
	}
	return res, first
}

func (s *Session) submitLocked(auto bool) (Result, bool) {
	if s.status != StatusInProgress {
		if s.result != nil {
			return *s.result, false
		}
		return Result{}, false
	}
	s.status = StatusSubmitting

	// New rejects empty assessments, so scoring cannot fail here.
	correct, score, _ := Score(s.assessment.Questions, s.answers)

	res := Result{
		AttemptID:     s.cfg.AttemptID,
		AssessmentID:  s.assessment.ID,
		UserID:        s.cfg.UserID,
		Score:         score,
		Correct:       correct,
		Total:         len(s.assessment.Questions),
		Answers:       copyAnswers(s.answers),
		Questions:     s.assessment.Questions,
		AutoSubmitted: auto,
		SubmittedAt:   s.cfg.Now(),
	}
	s.result = &res
	s.status = StatusSubmitted
	return res, true
}

func (s *Session) emit(res Result) {
	if s.cfg.OnSubmit != nil {
		s.cfg.OnSubmit(res)
	}
}

// Result returns the submitted result, if any.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Status reports the submission state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Remaining reports the seconds left on the clock.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// CurrentIndex reports the position of the question on screen.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Answers returns a copy of the captured answers.
func (s *Session) Answers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyAnswers(s.answers)
}

// IsFlagged reports whether questionID is marked for review.
func (s *Session) IsFlagged(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, on := s.flagged[questionID]
	return on
}

// Progress is the position through the assessment as a percentage.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// LowTime reports whether fewer than five minutes remain.
func (s *Session) LowTime() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining < LowTimeThreshold
}

// Snapshot captures the whole session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	flagged := make([]string, 0, len(s.flagged))
	for id := range s.flagged {
		flagged = append(flagged, id)
	}
	sort.Slice(flagged, func(i, j int) bool { return s.index[flagged[i]] < s.index[flagged[j]] })

	return State{
		AssessmentID:      s.assessment.ID,
		CurrentIndex:      s.current,
		CurrentQuestionID: s.assessment.Questions[s.current].ID,
		TotalQuestions:    len(s.assessment.Questions),
		Answers:           copyAnswers(s.answers),
		Flagged:           flagged,
		RemainingSeconds:  s.remaining,
		Progress:          s.progressLocked(),
		LowTime:           s.remaining < LowTimeThreshold,
		Status:            s.status,
	}
}

func (s *Session) progressLocked() int {
	return int(math.Round(100 * float64(s.current+1) / float64(len(s.assessment.Questions))))
}

func copyAnswers(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
