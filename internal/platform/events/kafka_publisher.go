package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tiffinbox/api/internal/platform/requestctx"
	"github.com/tiffinbox/api/internal/services"
)

const (
	eventVersion   = 1
	headerType     = "x-event-type"
	headerVersion  = "x-event-version"
	defaultTopic   = "order.events"
	defaultProduce = "tiffinbox-api"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes order events to Kafka.
type KafkaPublisher struct {
	writer   messageWriter
	producer string
	now      func() time.Time
	newID    func() string
}

// PublisherOption customises a KafkaPublisher.
type PublisherOption func(*KafkaPublisher)

// WithProducerName sets the producer recorded on every envelope.
func WithProducerName(name string) PublisherOption {
	return func(p *KafkaPublisher) {
		if name != "" {
			p.producer = name
		}
	}
}

// NewKafkaPublisher builds an asynchronous publisher for topic. Delivery failures are logged by
// the writer's completion callback since order events are not part of the request outcome.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger, opts ...PublisherOption) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: at least one kafka broker is required")
	}
	if topic == "" {
		topic = defaultTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        true,
		Completion: func(messages []kafkago.Message, err error) {
			if err != nil {
				logger.Warn("events: kafka delivery failed", zap.Int("messages", len(messages)), zap.String("topic", topic), zap.Error(err))
			}
		},
	}
	return newKafkaPublisher(writer, opts...), nil
}

func newKafkaPublisher(writer messageWriter, opts ...PublisherOption) *KafkaPublisher {
	p := &KafkaPublisher{
		writer:   writer,
		producer: defaultProduce,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishOrderEvent implements services.OrderEventPublisher.
func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if event.Type == "" || event.OrderID == "" {
		return errors.New("events: event type and order id are required")
	}
	payload, err := json.Marshal(OrderEventPayload{
		OrderID:        event.OrderID,
		UserID:         event.UserID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		FinalPrice:     event.FinalPrice,
	})
	if err != nil {
		return fmt.Errorf("events: encode payload: %w", err)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = p.now()
	}
	envelope, err := json.Marshal(Envelope{
		EventID:       p.newID(),
		EventType:     event.Type,
		EventVersion:  eventVersion,
		OccurredAt:    occurredAt.UTC(),
		Producer:      p.producer,
		TraceID:       requestctx.TraceID(ctx),
		CorrelationID: event.OrderID,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("events: encode envelope: %w", err)
	}

	msg := kafkago.Message{
		Key:   PartitionKey(event.OrderID),
		Value: envelope,
		Time:  occurredAt.UTC(),
		Headers: []kafkago.Header{
			{Key: headerType, Value: []byte(event.Type)},
			{Key: headerVersion, Value: []byte(strconv.Itoa(eventVersion))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
