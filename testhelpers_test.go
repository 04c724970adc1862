//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/dreamscape/service-voyage/internal/application"
	bookingDomain "github.com/dreamscape/service-voyage/internal/domain/booking"
	bookingEvents "github.com/dreamscape/service-voyage/internal/events"
	"github.com/dreamscape/service-voyage/internal/repository"
	"github.com/dreamscape/service-voyage/migrations"
	"github.com/dreamscape/service-voyage/pkg/cloudevent"
	"github.com/dreamscape/service-voyage/pkg/database"
	"github.com/dreamscape/service-voyage/pkg/events"
	"github.com/dreamscape/service-voyage/pkg/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	postgresmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const testDLQTopic = "payment.events.dlq"

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	DatabaseURL  string
	KafkaBrokers []string
	Cleanup      func()
}

// bookingStack holds wired-up booking service components.
type bookingStack struct {
	Repo            *repository.GormBookingRepository
	Lifecycle       *application.LifecycleHandler
	Consumer        *bookingEvents.PaymentEventConsumer
	KafkaConsumer   *kafka.Consumer
	CleanupProducer func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers, applies the
// schema migrations and returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	pgContainer, err := postgresmodule.Run(ctx, "postgres:16-alpine",
		postgresmodule.WithDatabase("test_voyage"),
		postgresmodule.WithUsername("test"),
		postgresmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")

	dbURL, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dbURL), &gorm.Config{})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(dbURL, migrations.FS, logger))

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	// Pre-create required topics.
	createTopics(t, kafkaBrokers, events.TopicBookingEvents, events.TopicPaymentEvents, testDLQTopic)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		DatabaseURL:  dbURL,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupBookingStack wires up the payment-event side of the service.
func setupBookingStack(t *testing.T, db *gorm.DB, brokers []string) *bookingStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	bookingRepo := repository.NewGormBookingRepository(db)
	producer := kafka.NewProducer(brokers, logger)
	lifecycle := application.NewLifecycleHandler(bookingRepo, producer, application.LifecycleConfig{
		FailureStatus:      bookingDomain.StatusCancelled,
		MaxConflictRetries: application.DefaultMaxConflictRetries,
	}, logger)

	groupID := fmt.Sprintf("test-voyage-%s", uuid.New().String()[:8])
	kc := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          events.TopicPaymentEvents,
		DLQTopic:       testDLQTopic,
		MaxAttempts:    2,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
	}, logger)

	return &bookingStack{
		Repo:            bookingRepo,
		Lifecycle:       lifecycle,
		Consumer:        bookingEvents.NewPaymentEventConsumer(lifecycle, logger),
		KafkaConsumer:   kc,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// seedBooking creates a booking and walks it to the given status through the
// same conditional writes the service uses.
func seedBooking(t *testing.T, repo *repository.GormBookingRepository, userID string, status bookingDomain.BookingStatus) *bookingDomain.Booking {
	t.Helper()
	ctx := context.Background()

	bk, err := bookingDomain.NewBooking(userID, bookingDomain.TypeFlight, decimal.NewFromInt(250), "EUR")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, bk))

	steps := []func(*bookingDomain.Booking) (bookingDomain.StatusChange, error){
		func(b *bookingDomain.Booking) (bookingDomain.StatusChange, error) { return b.SubmitForPayment(time.Now()) },
		func(b *bookingDomain.Booking) (bookingDomain.StatusChange, error) { return b.MarkPaymentPending("P-seed", time.Now()) },
		func(b *bookingDomain.Booking) (bookingDomain.StatusChange, error) { return b.Confirm("P-seed", time.Now()) },
	}
	for _, step := range steps {
		if bk.Status() == status {
			break
		}
		change, err := step(bk)
		require.NoError(t, err)
		require.NoError(t, repo.ConditionalUpdateStatus(ctx, bk.ID(), change))
	}
	require.Equal(t, status, bk.Status(), "seed cannot reach %s", status)
	return bk
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType, subject, correlationID string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := cloudevent.New(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, ce.WithSubject(subject).WithCorrelationID(correlationID))
	require.NoError(t, err, "failed to publish event")
}

// waitForBookingStatus polls the bookings table until the status matches.
func waitForBookingStatus(t *testing.T, db *gorm.DB, reference string, expectedStatus string, timeout time.Duration) repository.BookingModel {
	t.Helper()
	var result repository.BookingModel
	require.Eventually(t, func() bool {
		var model repository.BookingModel
		err := db.Where("reference = ?", reference).First(&model).Error
		if err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "booking did not transition to %s", expectedStatus)
	return result
}

// readOne reads from a Kafka topic until match accepts a message.
func readOne(t *testing.T, brokers []string, topic string, timeout time.Duration, match func(kafkago.Message) bool) kafkago.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for a matching message on topic %q", topic)
			}
			continue
		}
		if match(msg) {
			return msg
		}
	}
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) cloudevent.Event {
	t.Helper()
	msg := readOne(t, brokers, topic, timeout, func(msg kafkago.Message) bool {
		ce, err := cloudevent.Parse(msg.Value)
		return err == nil && ce.Type == expectedType
	})
	ce, err := cloudevent.Parse(msg.Value)
	require.NoError(t, err)
	return ce
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
