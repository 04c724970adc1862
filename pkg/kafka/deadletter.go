package kafka

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// DeadLetter is a message read back from a dead-letter topic together with
// the failure metadata the consumer attached to it.
type DeadLetter struct {
	Message        kafkago.Message
	Error          string
	Attempts       int
	OriginalTopic  string
	OriginalOffset int64
	FailedAt       time.Time
}

// NewDeadLetter decodes the dead-letter headers of msg. Missing or malformed
// headers leave the matching field zero.
func NewDeadLetter(msg kafkago.Message) DeadLetter {
	d := DeadLetter{
		Message:       msg,
		Error:         HeaderValue(msg, HeaderDLQError),
		OriginalTopic: HeaderValue(msg, HeaderDLQOriginalTopic),
	}
	d.Attempts, _ = strconv.Atoi(HeaderValue(msg, HeaderDLQAttempts))
	d.OriginalOffset, _ = strconv.ParseInt(HeaderValue(msg, HeaderDLQOriginalOffset), 10, 64)
	d.FailedAt, _ = time.Parse(time.RFC3339, HeaderValue(msg, HeaderDLQFailedAt))
	return d
}

// EventType returns the envelope type recorded when the message was first produced.
func (d DeadLetter) EventType() string {
	return HeaderValue(d.Message, HeaderEventType)
}

// ReplayMessage rebuilds the original message for re-publication. The
// dead-letter headers are dropped so a second failure records fresh ones.
func (d DeadLetter) ReplayMessage(fallbackTopic string) kafkago.Message {
	topic := d.OriginalTopic
	if topic == "" {
		topic = fallbackTopic
	}

	headers := make([]kafkago.Header, 0, len(d.Message.Headers))
	for _, h := range d.Message.Headers {
		if strings.HasPrefix(h.Key, "x-dlq-") {
			continue
		}
		headers = append(headers, h)
	}

	return kafkago.Message{
		Topic:   topic,
		Key:     d.Message.Key,
		Value:   d.Message.Value,
		Headers: headers,
	}
}

// DeadLetterReader reads a dead-letter topic for operator tooling.
type DeadLetterReader struct {
	reader *kafkago.Reader
}

// NewDeadLetterReader creates a reader for topic within groupID. Offsets only
// move when Commit is called.
func NewDeadLetterReader(brokers []string, topic, groupID string) *DeadLetterReader {
	return &DeadLetterReader{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     brokers,
			GroupID:     groupID,
			Topic:       topic,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafkago.FirstOffset,
		}),
	}
}

// Read fetches up to limit dead letters. It stops early once no message
// arrives within idle.
func (r *DeadLetterReader) Read(ctx context.Context, limit int, idle time.Duration) ([]DeadLetter, error) {
	var letters []DeadLetter
	for limit <= 0 || len(letters) < limit {
		fetchCtx, cancel := context.WithTimeout(ctx, idle)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return letters, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return letters, nil
			}
			return letters, err
		}
		letters = append(letters, NewDeadLetter(msg))
	}
	return letters, nil
}

// Commit marks the given dead letters as handled.
func (r *DeadLetterReader) Commit(ctx context.Context, letters ...DeadLetter) error {
	if len(letters) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(letters))
	for i, d := range letters {
		msgs[i] = d.Message
	}
	return r.reader.CommitMessages(ctx, msgs...)
}

// Close closes the underlying reader.
func (r *DeadLetterReader) Close() error {
	return r.reader.Close()
}
