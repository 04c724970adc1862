// Package kafka wraps segmentio/kafka-go with the envelope, retry and
// dead-letter conventions used across services.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/dreamscape/service-voyage/pkg/cloudevent"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Header keys set on produced and dead-lettered messages.
const (
	HeaderEventType         = "ce_type"
	HeaderCorrelationID     = "correlation_id"
	HeaderDLQError          = "x-dlq-error"
	HeaderDLQAttempts       = "x-dlq-attempts"
	HeaderDLQOriginalTopic  = "x-dlq-original-topic"
	HeaderDLQOriginalOffset = "x-dlq-original-offset"
	HeaderDLQFailedAt       = "x-dlq-failed-at"
)

// Producer publishes envelopes to Kafka topics.
type Producer struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// NewProducer creates a Producer. The topic is chosen per message.
func NewProducer(brokers []string, logger *zap.Logger) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		logger: logger,
	}
}

// PublishEvent writes evt to topic. The envelope subject is used as the
// partition key so events for one booking stay ordered.
func (p *Producer) PublishEvent(ctx context.Context, topic string, evt cloudevent.Event) error {
	value, err := evt.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(evt.Subject),
		Value: value,
		Headers: []kafkago.Header{
			{Key: HeaderEventType, Value: []byte(evt.Type)},
		},
	}
	if evt.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: HeaderCorrelationID, Value: []byte(evt.CorrelationID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to %s: %w", topic, err)
	}

	p.logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("event_type", evt.Type),
		zap.String("event_id", evt.ID),
	)
	return nil
}

// WriteMessages writes raw messages; used for dead-letter replay.
func (p *Producer) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
