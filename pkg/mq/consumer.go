package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one delivery body. Wrap errors with backoff.Permanent
// (or kafka.Poison) to dead-letter without retrying.
type HandlerFunc func(ctx context.Context, body []byte) error

// ConsumerConfig configures queue topology and redelivery.
type ConsumerConfig struct {
	URL            string
	Exchange       string
	Queue          string
	Bindings       []string
	DLXName        string
	DLXQueue       string
	Prefetch       int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ServiceName    string
}

// Consumer consumes a durable queue bound to a topic exchange.
type Consumer struct {
	cfg    ConsumerConfig
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
}

// NewConsumer dials RabbitMQ and declares the queue, its bindings and the
// dead-letter exchange.
func NewConsumer(cfg ConsumerConfig, logger *zap.Logger) (*Consumer, error) {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c := &Consumer{cfg: cfg, conn: conn, ch: ch, logger: logger.With(zap.String("queue", cfg.Queue))}
	if err := c.declare(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) declare() error {
	args := amqp.Table{}
	if c.cfg.DLXName != "" {
		if err := c.ch.ExchangeDeclare(c.cfg.DLXName, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dlx: %w", err)
		}
		if _, err := c.ch.QueueDeclare(c.cfg.DLXQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dlq: %w", err)
		}
		if err := c.ch.QueueBind(c.cfg.DLXQueue, "#", c.cfg.DLXName, false, nil); err != nil {
			return fmt.Errorf("bind dlq: %w", err)
		}
		args["x-dead-letter-exchange"] = c.cfg.DLXName
	}

	if err := c.ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := c.ch.QueueDeclare(c.cfg.Queue, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range c.cfg.Bindings {
		if err := c.ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled. Deliveries are handled one at a time:
// acked on success, nacked without requeue (to the DLX) once retries are spent.
func (c *Consumer) Run(ctx context.Context, handler HandlerFunc) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.ServiceName, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d, handler)
		}
	}
}

// acker settles a delivery. amqp.Delivery satisfies it.
type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// disposition is how a delivery was settled.
type disposition int

const (
	dispositionAck disposition = iota
	dispositionRequeue
	dispositionDeadLetter
)

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler HandlerFunc) {
	log := c.logger.With(
		zap.String("routing_key", d.RoutingKey),
		zap.String("message_id", d.MessageId),
	)
	c.process(ctx, d, d.Body, handler, log)
}

// process runs handler with bounded retries and settles the delivery: ack on
// success, requeue when ctx ended mid-retry, nack to the DLX otherwise.
func (c *Consumer) process(ctx context.Context, d acker, body []byte, handler HandlerFunc, log *zap.Logger) disposition {
	attempts := 0
	op := func() error {
		attempts++
		return handler(ctx, body)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxAttempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Warn("handler failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})

	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack delivery", zap.Error(ackErr))
		}
		return dispositionAck
	case ctx.Err() != nil:
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error("failed to requeue delivery", zap.Error(nackErr))
		}
		return dispositionRequeue
	default:
		log.Error("delivery dead-lettered",
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("failed to dead-letter delivery", zap.Error(nackErr))
		}
		return dispositionDeadLetter
	}
}

func (c *Consumer) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	return b
}

// Close closes the channel and the connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
