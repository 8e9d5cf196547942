package session

import (
	"errors"
	"testing"
	"time"
)

func opts(ids ...string) []Option {
	out := make([]Option, len(ids))
	for i, id := range ids {
		out[i] = Option{ID: id, Text: "option " + id}
	}
	return out
}

func newAssessment(minutes int, keys ...string) Assessment {
	a := Assessment{ID: "asm-1", Title: "Aljabar", Subject: "Matematika", TimeLimitMinutes: minutes}
	for i, key := range keys {
		a.Questions = append(a.Questions, Question{
			ID:            string(rune('1' + i)),
			Text:          "question",
			Options:       opts("a", "b", "c", "d"),
			CorrectAnswer: key,
		})
	}
	return a
}

func mustNew(t *testing.T, a Assessment, cfg Config) *Session {
	t.Helper()
	s, err := New(a, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRejectsBrokenAssessments(t *testing.T) {
	tests := []struct {
		name string
		a    Assessment
		want error
	}{
		{name: "no questions", a: Assessment{ID: "x", TimeLimitMinutes: 10}, want: ErrDegenerateAssessment},
		{name: "zero time limit", a: newAssessment(0, "a"), want: ErrInvalidInput},
		{name: "duplicate question", a: func() Assessment {
			a := newAssessment(5, "a", "b")
			a.Questions[1].ID = a.Questions[0].ID
			return a
		}(), want: ErrInvalidInput},
		{name: "duplicate option", a: func() Assessment {
			a := newAssessment(5, "a")
			a.Questions[0].Options = opts("a", "a")
			return a
		}(), want: ErrInvalidInput},
		{name: "key not an option", a: newAssessment(5, "z"), want: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.a, Config{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNewStartsClockAtTimeLimit(t *testing.T) {
	s := mustNew(t, newAssessment(30, "a"), Config{})
	if got := s.Remaining(); got != 1800 {
		t.Fatalf("expected 1800 seconds, got %d", got)
	}
	if s.Status() != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", s.Status())
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	calls := 0
	s := mustNew(t, newAssessment(10, "a", "b"), Config{OnSubmit: func(Result) { calls++ }})
	_ = s.SelectAnswer("1", "a")

	first, ok := s.Submit()
	if !ok {
		t.Fatal("first submit should score")
	}
	second, ok := s.Submit()
	if ok {
		t.Fatal("second submit should be a no-op")
	}
	if calls != 1 {
		t.Fatalf("expected one emission, got %d", calls)
	}
	if first.Score != second.Score || first.Score != 50 {
		t.Fatalf("expected stored score 50, got %d and %d", first.Score, second.Score)
	}
	if s.Status() != StatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", s.Status())
	}
}

func TestManualSubmitThenExpiryDoesNotRescore(t *testing.T) {
	calls := 0
	s := mustNew(t, newAssessment(1, "a"), Config{OnSubmit: func(Result) { calls++ }})
	for i := 0; i < 59; i++ {
		s.Tick()
	}
	if _, ok := s.Submit(); !ok {
		t.Fatal("manual submit should score")
	}
	if s.Tick() {
		t.Fatal("tick after submission must not submit again")
	}
	if calls != 1 {
		t.Fatalf("expected one emission, got %d", calls)
	}
	if s.Remaining() != 1 {
		t.Fatalf("countdown must freeze after submission, got %d", s.Remaining())
	}
}

func TestScoring(t *testing.T) {
	t.Run("two of five", func(t *testing.T) {
		s := mustNew(t, newAssessment(10, "a", "b", "c", "d", "a"), Config{})
		_ = s.SelectAnswer("1", "a")
		_ = s.SelectAnswer("2", "c")
		_ = s.SelectAnswer("3", "c")
		res, _ := s.Submit()
		if res.Score != 40 || res.Correct != 2 || res.Total != 5 {
			t.Fatalf("expected 40%% (2/5), got %d%% (%d/%d)", res.Score, res.Correct, res.Total)
		}
	})

	t.Run("unanswered counts as wrong", func(t *testing.T) {
		s := mustNew(t, newAssessment(10, "a", "c", "b"), Config{})
		_ = s.SelectAnswer("1", "a")
		_ = s.SelectAnswer("2", "b")
		res, _ := s.Submit()
		if res.Score != 33 {
			t.Fatalf("expected 33, got %d", res.Score)
		}
	})

	t.Run("ungraded question never correct", func(t *testing.T) {
		a := newAssessment(10, "a", "")
		s := mustNew(t, a, Config{})
		_ = s.SelectAnswer("1", "a")
		_ = s.SelectAnswer("2", "a")
		res, _ := s.Submit()
		if res.Correct != 1 || res.Score != 50 {
			t.Fatalf("expected 1 correct and 50, got %d and %d", res.Correct, res.Score)
		}
	})

	t.Run("rounds to nearest", func(t *testing.T) {
		_, score, err := Score(newAssessment(1, "a", "a", "a").Questions, map[string]string{"1": "a", "2": "a"})
		if err != nil {
			t.Fatal(err)
		}
		if score != 67 {
			t.Fatalf("expected 67, got %d", score)
		}
	})

	t.Run("empty assessment", func(t *testing.T) {
		if _, _, err := Score(nil, nil); !errors.Is(err, ErrDegenerateAssessment) {
			t.Fatalf("expected ErrDegenerateAssessment, got %v", err)
		}
	})
}

func TestCountdown(t *testing.T) {
	var got *Result
	s := mustNew(t, newAssessment(1, "a", "b"), Config{OnSubmit: func(r Result) { got = &r }})

	for m := 1; m <= 59; m++ {
		if s.Tick() {
			t.Fatalf("submitted early at tick %d", m)
		}
		if want := 60 - m; s.Remaining() != want {
			t.Fatalf("after %d ticks expected %d, got %d", m, want, s.Remaining())
		}
	}
	if !s.Tick() {
		t.Fatal("the 60th tick must submit")
	}
	if s.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", s.Remaining())
	}

	for i := 0; i < 5; i++ {
		s.Tick()
	}
	if s.Remaining() != 0 {
		t.Fatalf("remaining must not go below zero, got %d", s.Remaining())
	}

	if got == nil {
		t.Fatal("result was not emitted")
	}
	if got.Score != 0 || len(got.Answers) != 0 || !got.AutoSubmitted {
		t.Fatalf("unexpected auto-submit result: %+v", got)
	}
	if s.Status() != StatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", s.Status())
	}
}

func TestNavigationClamps(t *testing.T) {
	s := mustNew(t, newAssessment(5, "a", "b", "c"), Config{})

	if err := s.Previous(); err != nil {
		t.Fatal(err)
	}
	if s.CurrentIndex() != 0 {
		t.Fatalf("expected 0, got %d", s.CurrentIndex())
	}

	for i := 0; i < 5; i++ {
		if err := s.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if s.CurrentIndex() != 2 {
		t.Fatalf("expected 2, got %d", s.CurrentIndex())
	}
	if s.Progress() != 100 {
		t.Fatalf("expected 100%% progress, got %d", s.Progress())
	}

	if err := s.GoTo(1); err != nil {
		t.Fatal(err)
	}
	if s.Progress() != 67 {
		t.Fatalf("expected 67%% progress, got %d", s.Progress())
	}
	if err := s.GoTo(3); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestToggleFlag(t *testing.T) {
	s := mustNew(t, newAssessment(5, "a", "b"), Config{})

	if err := s.ToggleFlag("2"); err != nil {
		t.Fatal(err)
	}
	if !s.IsFlagged("2") {
		t.Fatal("expected question 2 flagged")
	}
	if err := s.ToggleFlag("2"); err != nil {
		t.Fatal(err)
	}
	if s.IsFlagged("2") || len(s.Snapshot().Flagged) != 0 {
		t.Fatal("double toggle must restore the original flags")
	}
	if err := s.ToggleFlag("9"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	_ = s.ToggleFlag("1")
	res, _ := s.Submit()
	if res.Score != 0 {
		t.Fatalf("flags must not affect score, got %d", res.Score)
	}
}

func TestSelectAnswer(t *testing.T) {
	s := mustNew(t, newAssessment(5, "b"), Config{})

	_ = s.SelectAnswer("1", "a")
	_ = s.SelectAnswer("1", "b")
	_ = s.SelectAnswer("1", "b")
	if got := s.Answers(); len(got) != 1 || got["1"] != "b" {
		t.Fatalf("expected only the latest answer, got %v", got)
	}

	if err := s.SelectAnswer("7", "a"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown question, got %v", err)
	}
	if err := s.SelectAnswer("1", "z"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown option, got %v", err)
	}
}

func TestMutatorsRejectAfterSubmit(t *testing.T) {
	s := mustNew(t, newAssessment(5, "a", "b"), Config{})
	s.Submit()

	checks := map[string]error{
		"select":   s.SelectAnswer("1", "a"),
		"flag":     s.ToggleFlag("1"),
		"next":     s.Next(),
		"previous": s.Previous(),
		"goto":     s.GoTo(0),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrSessionClosed) {
			t.Errorf("%s: expected ErrSessionClosed, got %v", name, err)
		}
	}
}

func TestLowTime(t *testing.T) {
	s := mustNew(t, newAssessment(6, "a"), Config{})
	for i := 0; i < 60; i++ {
		s.Tick()
	}
	if s.LowTime() {
		t.Fatal("exactly five minutes left is not low time")
	}
	s.Tick()
	if !s.LowTime() || !s.Snapshot().LowTime {
		t.Fatal("expected low time under five minutes")
	}
}

func TestResultCarriesConfig(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s := mustNew(t, newAssessment(5, "a", "b"), Config{
		AttemptID: "att-9",
		UserID:    42,
		Now:       func() time.Time { return at },
	})
	_ = s.SelectAnswer("2", "b")
	res, _ := s.Submit()

	if res.AttemptID != "att-9" || res.UserID != 42 || res.AssessmentID != "asm-1" {
		t.Fatalf("identity not carried: %+v", res)
	}
	if !res.SubmittedAt.Equal(at) || res.AutoSubmitted {
		t.Fatalf("unexpected submission metadata: %+v", res)
	}

	outcomes := res.Outcomes()
	if len(outcomes) != 2 || outcomes[0].IsCorrect || !outcomes[1].IsCorrect {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
	if outcomes[0].Selected != "" || outcomes[0].CorrectAnswer != "a" {
		t.Fatalf("unexpected first outcome: %+v", outcomes[0])
	}
}
