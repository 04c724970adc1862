package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func dlqMessage() kafkago.Message {
	return kafkago.Message{
		Topic: "payment.events.dlq",
		Key:   []byte("BK-100"),
		Value: []byte(`{"type":"payment.completed"}`),
		Headers: []kafkago.Header{
			{Key: HeaderEventType, Value: []byte("payment.completed")},
			{Key: HeaderCorrelationID, Value: []byte("corr-1")},
			{Key: HeaderDLQError, Value: []byte("booking not found")},
			{Key: HeaderDLQAttempts, Value: []byte("5")},
			{Key: HeaderDLQOriginalTopic, Value: []byte("payment.events")},
			{Key: HeaderDLQOriginalOffset, Value: []byte("42")},
			{Key: HeaderDLQFailedAt, Value: []byte("2026-03-14T09:30:00Z")},
		},
	}
}

func TestNewDeadLetter(t *testing.T) {
	d := NewDeadLetter(dlqMessage())

	assert.Equal(t, "booking not found", d.Error)
	assert.Equal(t, 5, d.Attempts)
	assert.Equal(t, "payment.events", d.OriginalTopic)
	assert.Equal(t, int64(42), d.OriginalOffset)
	assert.True(t, d.FailedAt.Equal(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, "payment.completed", d.EventType())
}

func TestNewDeadLetter_MissingHeaders(t *testing.T) {
	d := NewDeadLetter(kafkago.Message{Value: []byte("{}")})

	assert.Empty(t, d.Error)
	assert.Zero(t, d.Attempts)
	assert.True(t, d.FailedAt.IsZero())
}

func TestReplayMessage(t *testing.T) {
	msg := NewDeadLetter(dlqMessage()).ReplayMessage("fallback")

	assert.Equal(t, "payment.events", msg.Topic)
	assert.Equal(t, []byte("BK-100"), msg.Key)
	assert.Equal(t, []kafkago.Header{
		{Key: HeaderEventType, Value: []byte("payment.completed")},
		{Key: HeaderCorrelationID, Value: []byte("corr-1")},
	}, msg.Headers)

	bare := NewDeadLetter(kafkago.Message{Value: []byte("{}")}).ReplayMessage("payment.events")
	assert.Equal(t, "payment.events", bare.Topic)
	assert.Empty(t, bare.Headers)
}
