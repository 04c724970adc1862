package events

import (
	"context"
	"fmt"

	"github.com/dreamscape/service-voyage/internal/application"
	"github.com/dreamscape/service-voyage/pkg/cloudevent"
	"github.com/dreamscape/service-voyage/pkg/events"
	"github.com/dreamscape/service-voyage/pkg/kafka"
	"github.com/dreamscape/service-voyage/pkg/mq"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/dreamscape/service-voyage/internal/events"

// PaymentHandler applies payment events to bookings.
type PaymentHandler interface {
	HandlePaymentInitiated(ctx context.Context, evt events.PaymentInitiatedEvent, correlationID string) (application.Outcome, error)
	HandlePaymentCompleted(ctx context.Context, evt events.PaymentCompletedEvent, correlationID string) (application.Outcome, error)
	HandlePaymentFailed(ctx context.Context, evt events.PaymentFailedEvent, correlationID string) (application.Outcome, error)
}

// PaymentEventConsumer decodes payment events from the bus and hands them to
// the lifecycle handler. It is transport neutral; Kafka and RabbitMQ both feed
// HandleEvent.
type PaymentEventConsumer struct {
	handler PaymentHandler
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewPaymentEventConsumer creates a new PaymentEventConsumer.
func NewPaymentEventConsumer(handler PaymentHandler, logger *zap.Logger) *PaymentEventConsumer {
	return &PaymentEventConsumer{
		handler: handler,
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
	}
}

// StartKafka consumes payment events from Kafka. This blocks until the context is cancelled.
func (c *PaymentEventConsumer) StartKafka(ctx context.Context, consumer *kafka.Consumer) error {
	return consumer.Consume(ctx, c.HandleKafkaMessage)
}

// StartRabbit consumes payment events from RabbitMQ. This blocks until the context is cancelled.
func (c *PaymentEventConsumer) StartRabbit(ctx context.Context, consumer *mq.Consumer) error {
	return consumer.Run(ctx, c.HandleEvent)
}

// HandleKafkaMessage adapts a Kafka message to HandleEvent.
func (c *PaymentEventConsumer) HandleKafkaMessage(ctx context.Context, msg kafkago.Message) error {
	return c.HandleEvent(ctx, msg.Value)
}

// HandleEvent processes one raw envelope. A nil return acknowledges it, a
// plain error asks for redelivery and a kafka.Poison error dead-letters it.
func (c *PaymentEventConsumer) HandleEvent(ctx context.Context, raw []byte) error {
	evt, err := cloudevent.Parse(raw)
	if err != nil {
		c.logger.Error("failed to parse cloud event from payment topic",
			zap.Error(err),
			zap.ByteString("raw", raw),
		)
		return kafka.Poison(err)
	}

	ctx, span := c.tracer.Start(ctx, evt.Type,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", evt.ID),
			attribute.String("cloudevents.event_type", evt.Type),
			attribute.String("correlation_id", evt.CorrelationID),
		),
	)
	defer span.End()

	outcome, err := c.dispatch(ctx, evt)
	span.SetAttributes(attribute.String("outcome", outcome.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome.String())
	}

	switch outcome {
	case application.OutcomeAck:
		return nil
	case application.OutcomePoison:
		return kafka.Poison(err)
	default:
		if err == nil {
			err = fmt.Errorf("event %s asked for retry", evt.ID)
		}
		return err
	}
}

func (c *PaymentEventConsumer) dispatch(ctx context.Context, evt cloudevent.Event) (application.Outcome, error) {
	switch evt.Type {
	case events.PaymentInitiated:
		var data events.PaymentInitiatedEvent
		if err := c.decode(evt, &data); err != nil {
			return application.OutcomePoison, err
		}
		return c.handler.HandlePaymentInitiated(ctx, data, evt.CorrelationID)

	case events.PaymentCompleted:
		var data events.PaymentCompletedEvent
		if err := c.decode(evt, &data); err != nil {
			return application.OutcomePoison, err
		}
		return c.handler.HandlePaymentCompleted(ctx, data, evt.CorrelationID)

	case events.PaymentFailed:
		var data events.PaymentFailedEvent
		if err := c.decode(evt, &data); err != nil {
			return application.OutcomePoison, err
		}
		return c.handler.HandlePaymentFailed(ctx, data, evt.CorrelationID)

	default:
		c.logger.Debug("ignoring unhandled payment event type",
			zap.String("type", evt.Type),
		)
		return application.OutcomeAck, nil
	}
}

func (c *PaymentEventConsumer) decode(evt cloudevent.Event, v interface{}) error {
	if err := evt.ParseData(v); err != nil {
		c.logger.Error("failed to parse payment event data",
			zap.String("event_type", evt.Type),
			zap.String("event_id", evt.ID),
			zap.Error(err),
		)
		return err
	}
	if ref := bookingReferenceOf(v); ref == "" {
		err := fmt.Errorf("%s event %s has no bookingId", evt.Type, evt.ID)
		c.logger.Error("payment event without booking reference", zap.Error(err))
		return err
	}
	return nil
}

func bookingReferenceOf(v interface{}) string {
	switch data := v.(type) {
	case *events.PaymentInitiatedEvent:
		return data.BookingID
	case *events.PaymentCompletedEvent:
		return data.BookingID
	case *events.PaymentFailedEvent:
		return data.BookingID
	default:
		return ""
	}
}
