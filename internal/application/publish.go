package application

import (
	"context"
	"fmt"

	bookingDomain "github.com/dreamscape/service-voyage/internal/domain/booking"
	"github.com/dreamscape/service-voyage/pkg/cloudevent"
	"github.com/dreamscape/service-voyage/pkg/events"
	"go.uber.org/zap"
)

// EventSource identifies this service in every envelope it emits.
const EventSource = "service-voyage"

// EventPublisher emits envelopes onto the bus.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, evt cloudevent.Event) error
}

// publishBookingEvent emits a booking event and swallows any failure after
// logging it. The state change that triggered it has already been committed.
func publishBookingEvent(
	ctx context.Context,
	publisher EventPublisher,
	logger *zap.Logger,
	eventType, reference, correlationID string,
	data interface{},
) {
	evt, err := cloudevent.New(EventSource, eventType, data)
	if err != nil {
		logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.String("booking_ref", reference),
			zap.Error(err),
		)
		return
	}
	evt = evt.WithSubject(reference).WithCorrelationID(correlationID)

	if err := publisher.PublishEvent(ctx, events.TopicBookingEvents, evt); err != nil {
		logger.Error("failed to publish event",
			zap.String("topic", events.TopicBookingEvents),
			zap.String("event_type", eventType),
			zap.String("booking_ref", reference),
			zap.String("correlation_id", correlationID),
			zap.Error(fmt.Errorf("%w: %v", bookingDomain.ErrPublishFailure, err)),
		)
	}
}
