package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one message. A nil return commits the offset.
// Errors are retried with backoff; wrap with Poison to skip straight to the dead-letter topic.
type HandlerFunc func(ctx context.Context, msg kafkago.Message) error

// Poison marks err as non-retryable.
func Poison(err error) error {
	return backoff.Permanent(err)
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Brokers        []string
	GroupID        string
	Topic          string
	DLQTopic       string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads a topic within a consumer group and commits each message
// only after it was handled or dead-lettered.
type Consumer struct {
	reader *kafkago.Reader
	dlq    messageWriter
	cfg    ConsumerConfig
	logger *zap.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}

	c := &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafkago.FirstOffset,
		}),
		cfg:    cfg,
		logger: logger.With(zap.String("topic", cfg.Topic), zap.String("group_id", cfg.GroupID)),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafkago.Writer{
			Addr:                   kafkago.TCP(cfg.Brokers...),
			Topic:                  cfg.DLQTopic,
			RequiredAcks:           kafkago.RequireAll,
			AllowAutoTopicCreation: true,
		}
	}
	return c
}

// Consume blocks until ctx is cancelled or the reader fails.
func (c *Consumer) Consume(ctx context.Context, handler HandlerFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := c.process(ctx, msg, handler); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to commit offset",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// process runs handler with bounded retries. It returns an error only when the
// message must not be committed: the context ended or dead-lettering failed.
func (c *Consumer) process(ctx context.Context, msg kafkago.Message, handler HandlerFunc) error {
	attempts := 0
	op := func() error {
		attempts++
		return handler(ctx, msg)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxAttempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.logger.Warn("handler failed, retrying",
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.deadLetter(ctx, msg, err, attempts)
}

func (c *Consumer) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	return b
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafkago.Message, cause error, attempts int) error {
	if c.dlq == nil {
		c.logger.Error("dropping message after failed handling, no dead-letter topic configured",
			zap.Int64("offset", msg.Offset),
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)
		return nil
	}

	headers := append([]kafkago.Header{}, msg.Headers...)
	headers = append(headers,
		kafkago.Header{Key: HeaderDLQError, Value: []byte(cause.Error())},
		kafkago.Header{Key: HeaderDLQAttempts, Value: []byte(strconv.Itoa(attempts))},
		kafkago.Header{Key: HeaderDLQOriginalTopic, Value: []byte(msg.Topic)},
		kafkago.Header{Key: HeaderDLQOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafkago.Header{Key: HeaderDLQFailedAt, Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)

	if err := c.dlq.WriteMessages(ctx, kafkago.Message{Key: msg.Key, Value: msg.Value, Headers: headers}); err != nil {
		return fmt.Errorf("failed to dead-letter offset %d: %w", msg.Offset, errors.Join(err, cause))
	}

	c.logger.Error("message dead-lettered",
		zap.Int64("offset", msg.Offset),
		zap.Int("attempts", attempts),
		zap.String("dlq_topic", c.cfg.DLQTopic),
		zap.Error(cause),
	)
	return nil
}

// Close closes the reader and the dead-letter writer.
func (c *Consumer) Close() error {
	err := c.reader.Close()
	if c.dlq != nil {
		err = errors.Join(err, c.dlq.Close())
	}
	return err
}

// HeaderValue returns the value of the first header named key.
func HeaderValue(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
