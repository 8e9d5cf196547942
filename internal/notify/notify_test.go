package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-assessment/internal/session"
)

func sampleResult() session.Result {
	return session.Result{
		AttemptID:    "att-1",
		AssessmentID: "asm-1",
		UserID:       7,
		Score:        50,
		Correct:      1,
		Total:        2,
		Answers:      map[string]string{"q1": "a"},
		Questions: []session.Question{
			{ID: "q1", Options: []session.Option{{ID: "a"}, {ID: "b"}}, CorrectAnswer: "a"},
			{ID: "q2", Options: []session.Option{{ID: "a"}, {ID: "b"}}, CorrectAnswer: "b"},
		},
		SubmittedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestNewResultMessageSkipsUnanswered(t *testing.T) {
	msg := NewResultMessage(sampleResult())
	if len(msg.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(msg.Answers))
	}
	if a := msg.Answers[0]; a.QuestionID != "q1" || a.OptionID != "a" || !a.IsCorrect {
		t.Fatalf("unexpected answer: %+v", a)
	}
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	q := NewRedisQueue(rdb, "persist_results_queue")
	if err := q.Notify(context.Background(), sampleResult()); err != nil {
		t.Fatal(err)
	}

	items, err := mr.List("persist_results_queue")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 queued item, got %d", len(items))
	}

	var msg ResultMessage
	if err := json.Unmarshal([]byte(items[0]), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.AttemptID != "att-1" || msg.Score != 50 || msg.UserID != 7 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestRedisQueueReportsFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	q := NewRedisQueue(rdb, "persist_results_queue")
	if err := q.Notify(context.Background(), sampleResult()); err == nil {
		t.Fatal("expected an error with redis down")
	}
}

type recordingPublisher struct {
	topic   string
	payload []byte
	err     error
}

func (p *recordingPublisher) Publish(topic string, payload []byte) error {
	p.topic, p.payload = topic, payload
	return p.err
}

func TestEventBus(t *testing.T) {
	pub := &recordingPublisher{}
	if err := NewEventBus(pub, "assessment.attempt.submitted").Notify(context.Background(), sampleResult()); err != nil {
		t.Fatal(err)
	}
	if pub.topic != "assessment.attempt.submitted" || len(pub.payload) == 0 {
		t.Fatalf("unexpected publish: %q %s", pub.topic, pub.payload)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewEventBus(pub, "t").Notify(ctx, sampleResult()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	calls := 0
	f := Fanout{
		Func(func(context.Context, session.Result) error { calls++; return errA }),
		Func(func(context.Context, session.Result) error { calls++; return nil }),
	}

	err := f.Notify(context.Background(), sampleResult())
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error to contain errA, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("every notifier must be called, got %d", calls)
	}
	if err := (Fanout{}).Notify(context.Background(), sampleResult()); err != nil {
		t.Fatalf("empty fanout must succeed, got %v", err)
	}
}
