// Package notify hands submitted results to the persistence collaborators.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-assessment/internal/session"
)

// Notifier delivers a submitted result somewhere durable.
type Notifier interface {
	Notify(ctx context.Context, res session.Result) error
}

// AnswerRecord is one graded answer inside a ResultMessage.
type AnswerRecord struct {
	QuestionID string `json:"question_id"`
	OptionID   string `json:"option_id"`
	IsCorrect  bool   `json:"is_correct"`
}

// ResultMessage is the wire form of a submitted result. Unanswered
// questions are omitted from Answers.
type ResultMessage struct {
	AttemptID     string         `json:"attempt_id"`
	AssessmentID  string         `json:"assessment_id"`
	UserID        int            `json:"user_id"`
	Score         int            `json:"score"`
	Correct       int            `json:"correct"`
	Total         int            `json:"total"`
	AutoSubmitted bool           `json:"auto_submitted"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	Answers       []AnswerRecord `json:"answers"`
}

// NewResultMessage flattens res in question order.
func NewResultMessage(res session.Result) ResultMessage {
	msg := ResultMessage{
		AttemptID:     res.AttemptID,
		AssessmentID:  res.AssessmentID,
		UserID:        res.UserID,
		Score:         res.Score,
		Correct:       res.Correct,
		Total:         res.Total,
		AutoSubmitted: res.AutoSubmitted,
		SubmittedAt:   res.SubmittedAt,
		Answers:       make([]AnswerRecord, 0, len(res.Answers)),
	}
	for _, o := range res.Outcomes() {
		if o.Selected == "" {
			continue
		}
		msg.Answers = append(msg.Answers, AnswerRecord{
			QuestionID: o.QuestionID,
			OptionID:   o.Selected,
			IsCorrect:  o.IsCorrect,
		})
	}
	return msg
}

// RedisQueue pushes results onto a Redis list drained by the result worker.
type RedisQueue struct {
	rdb   *redis.Client
	queue string
}

// NewRedisQueue creates a RedisQueue writing to queue.
func NewRedisQueue(rdb *redis.Client, queue string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queue: queue}
}

func (q *RedisQueue) Notify(ctx context.Context, res session.Result) error {
	data, err := json.Marshal(NewResultMessage(res))
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("push result: %w", err)
	}
	return nil
}

// Publisher is the part of the event bus EventBus needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// EventBus announces results on a topic for downstream consumers.
type EventBus struct {
	pub   Publisher
	topic string
}

// NewEventBus creates an EventBus publishing to topic.
func NewEventBus(pub Publisher, topic string) *EventBus {
	return &EventBus{pub: pub, topic: topic}
}

func (b *EventBus) Notify(ctx context.Context, res session.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NewResultMessage(res))
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return b.pub.Publish(b.topic, data)
}

// Fanout calls every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, res session.Result) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, res session.Result) error

func (f Func) Notify(ctx context.Context, res session.Result) error {
	return f(ctx, res)
}
