package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamscape/service-voyage/internal/application"
	"github.com/dreamscape/service-voyage/internal/config"
	bookingDomain "github.com/dreamscape/service-voyage/internal/domain/booking"
	bookingEvents "github.com/dreamscape/service-voyage/internal/events"
	"github.com/dreamscape/service-voyage/internal/handler"
	"github.com/dreamscape/service-voyage/internal/repository"
	"github.com/dreamscape/service-voyage/migrations"
	"github.com/dreamscape/service-voyage/pkg/auth"
	"github.com/dreamscape/service-voyage/pkg/database"
	"github.com/dreamscape/service-voyage/pkg/events"
	"github.com/dreamscape/service-voyage/pkg/health"
	"github.com/dreamscape/service-voyage/pkg/kafka"
	"github.com/dreamscape/service-voyage/pkg/logger"
	"github.com/dreamscape/service-voyage/pkg/middleware"
	"github.com/dreamscape/service-voyage/pkg/mq"
	"github.com/dreamscape/service-voyage/pkg/obs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "service-voyage"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("bus_driver", cfg.BusDriver),
		zap.String("failure_status", cfg.FailureStatus),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.AppEnv)
	if err != nil {
		log.Fatal("failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	// Connect to database
	db, err := database.Connect(cfg.DBConfig, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.BookingModel{}); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), migrations.FS, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		cfg.JWTConfig.AccessTokenTTL,
		cfg.JWTConfig.RefreshTokenTTL,
	)

	// Initialize event publisher
	var publisher application.EventPublisher
	switch cfg.BusDriver {
	case config.BusRabbitMQ:
		rabbitPublisher, err := mq.NewPublisher(cfg.RabbitConfig.URL, cfg.RabbitConfig.BookingExchange)
		if err != nil {
			log.Fatal("failed to connect rabbitmq publisher", zap.Error(err))
		}
		defer func() { _ = rabbitPublisher.Close() }()
		publisher = rabbitPublisher
	default:
		kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
		defer func() { _ = kafkaProducer.Close() }()
		publisher = kafkaProducer
	}

	// Initialize repositories
	bookingRepo := repository.NewGormBookingRepository(db)

	// Initialize application services
	bookingService := application.NewBookingService(bookingRepo, publisher, log)

	failureStatus, err := bookingDomain.ParseFailureStatus(cfg.FailureStatus)
	if err != nil {
		log.Fatal("invalid failure status", zap.Error(err))
	}
	lifecycle := application.NewLifecycleHandler(bookingRepo, publisher, application.LifecycleConfig{
		FailureStatus:      failureStatus,
		MaxConflictRetries: cfg.MaxConflictRetries,
	}, log.Named("lifecycle"))

	paymentConsumer := bookingEvents.NewPaymentEventConsumer(lifecycle, log.Named("payment-consumer"))

	// Initialize HTTP handlers
	bookingHandler := handler.NewBookingHandler(bookingService)
	adminBookingHandler := handler.NewAdminBookingHandler(bookingService)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, serviceName)
	healthHandler.RegisterRoutes(router)

	// Register routes
	bookingHandler.RegisterRoutes(&router.RouterGroup, jwtManager)
	adminBookingHandler.RegisterRoutes(&router.RouterGroup, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("starting payment event consumer", zap.String("driver", cfg.BusDriver))
		err := runConsumer(gctx, cfg, paymentConsumer, log)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("payment consumer: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down " + serviceName + "...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server forced shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error(serviceName+" stopped with error", zap.Error(err))
		return
	}
	log.Info(serviceName + " stopped")
}

// runConsumer starts the payment consumer on the configured transport and
// blocks until ctx is cancelled.
func runConsumer(ctx context.Context, cfg *config.ServiceConfig, consumer *bookingEvents.PaymentEventConsumer, log *zap.Logger) error {
	switch cfg.BusDriver {
	case config.BusRabbitMQ:
		rabbit, err := mq.NewConsumer(mq.ConsumerConfig{
			URL:      cfg.RabbitConfig.URL,
			Exchange: cfg.RabbitConfig.PaymentExchange,
			Queue:    cfg.RabbitConfig.Queue,
			Bindings: []string{
				events.PaymentInitiated,
				events.PaymentCompleted,
				events.PaymentFailed,
			},
			DLXName:     cfg.RabbitConfig.DLXName,
			DLXQueue:    cfg.RabbitConfig.DLXQueue,
			Prefetch:    cfg.RabbitConfig.Prefetch,
			MaxAttempts: cfg.RabbitConfig.MaxAttempts,
			ServiceName: serviceName,
		}, log)
		if err != nil {
			return err
		}
		defer func() { _ = rabbit.Close() }()
		return consumer.StartRabbit(ctx, rabbit)

	default:
		kc := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:     cfg.KafkaConfig.Brokers,
			GroupID:     cfg.KafkaGroupID,
			Topic:       events.TopicPaymentEvents,
			DLQTopic:    cfg.KafkaConfig.DLQTopic,
			MaxAttempts: cfg.KafkaConfig.MaxAttempts,
		}, log)
		defer func() { _ = kc.Close() }()
		return consumer.StartKafka(ctx, kc)
	}
}
