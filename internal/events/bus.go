// Package events carries domain events over watermill, either in-process
// or through Kafka when brokers are configured.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
)

// ErrNoSubscriber is returned by Subscribe when the bus is publish-only.
var ErrNoSubscriber = errors.New("event bus has no local subscriber")

// Bus publishes raw payloads to topics.
type Bus struct {
	pub message.Publisher
	sub message.Subscriber
	log zerolog.Logger
}

// NewInProcessBus creates a bus backed by a Go channel pub/sub.
func NewInProcessBus(log zerolog.Logger) *Bus {
	log = log.With().Str("component", "event_bus").Logger()
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, NewLogger(log))
	return &Bus{pub: ch, sub: ch, log: log}
}

// NewKafkaBus creates a publish-only bus writing to the given brokers.
func NewKafkaBus(brokers []string, log zerolog.Logger) (*Bus, error) {
	log = log.With().Str("component", "event_bus").Logger()
	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, NewLogger(log))
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	return &Bus{pub: pub, log: log}, nil
}

// New picks Kafka when brokers are configured and the in-process bus otherwise.
func New(brokers []string, log zerolog.Logger) (*Bus, error) {
	if len(brokers) == 0 {
		return NewInProcessBus(log), nil
	}
	return NewKafkaBus(brokers, log)
}

// Publish sends payload as a single message with a fresh UUID.
func (b *Bus) Publish(topic string, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe streams messages of topic until ctx is done. Each message must be acked.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if b.sub == nil {
		return nil, ErrNoSubscriber
	}
	return b.sub.Subscribe(ctx, topic)
}

// Consume runs fn for every message of topic until ctx is done. Messages
// are acked on success and nacked otherwise.
func (b *Bus) Consume(ctx context.Context, topic string, fn func(payload []byte) error) error {
	msgs, err := b.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if err := fn(msg.Payload); err != nil {
			b.log.Warn().Err(err).Str("topic", topic).Str("uuid", msg.UUID).Msg("Handler failed, nacking")
			msg.Nack()
			continue
		}
		msg.Ack()
	}
	return nil
}

// Close releases the underlying publisher. The in-process bus shares one
// value for both sides, so closing the publisher also stops subscriptions.
func (b *Bus) Close() error {
	return b.pub.Close()
}
