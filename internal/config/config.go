package config

import (
	"fmt"
	"strings"

	"github.com/dreamscape/service-voyage/pkg/config"
)

// Event bus drivers.
const (
	BusKafka    = "kafka"
	BusRabbitMQ = "rabbitmq"
)

// ServiceConfig holds all configuration for the booking service.
type ServiceConfig struct {
	Port         string
	AppEnv       string
	DBConfig     config.DatabaseConfig
	JWTConfig    config.JWTConfig
	KafkaConfig  config.KafkaConfig
	RabbitConfig config.RabbitConfig

	// BusDriver selects the transport for payment and booking events.
	BusDriver string
	// KafkaGroupID is the consumer group reading payment events.
	KafkaGroupID string

	// FailureStatus is "cancelled" or "failed".
	FailureStatus      string
	MaxConflictRetries int

	OTLPEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("VOYAGE")
	if err != nil {
		return nil, err
	}

	kafkaCfg := config.LoadKafkaConfig(v)
	cfg := &ServiceConfig{
		Port:               config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:             config.GetAppEnv(v),
		DBConfig:           config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:          config.LoadJWTConfig(v),
		KafkaConfig:        kafkaCfg,
		RabbitConfig:       config.LoadRabbitConfig(v),
		BusDriver:          strings.ToLower(config.GetString(v, "BUS_DRIVER", BusKafka)),
		KafkaGroupID:       kafkaCfg.GroupPrefix + "service-voyage-payments",
		FailureStatus:      strings.ToLower(config.GetString(v, "FAILURE_STATUS", "cancelled")),
		MaxConflictRetries: config.GetInt(v, "MAX_CONFLICT_RETRIES", 3),
		OTLPEndpoint:       config.GetString(v, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *ServiceConfig) Validate() error {
	switch c.BusDriver {
	case BusKafka, BusRabbitMQ:
	default:
		return fmt.Errorf("unsupported bus driver %q", c.BusDriver)
	}
	if c.FailureStatus != "cancelled" && c.FailureStatus != "failed" {
		return fmt.Errorf("failure status must be cancelled or failed, got %q", c.FailureStatus)
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("max conflict retries must not be negative")
	}
	if c.JWTConfig.Secret == "" && c.AppEnv != "development" {
		return fmt.Errorf("JWT secret is required outside development")
	}
	return nil
}
