package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VOYAGE_APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, BusKafka, cfg.BusDriver)
	assert.Equal(t, "cancelled", cfg.FailureStatus)
	assert.Equal(t, 3, cfg.MaxConflictRetries)
	assert.Equal(t, "payment.events.dlq", cfg.KafkaConfig.DLQTopic)
	assert.Equal(t, 5, cfg.KafkaConfig.MaxAttempts)
	assert.Equal(t, 5, cfg.RabbitConfig.MaxAttempts)
	assert.Equal(t, "service-voyage-payments", cfg.KafkaGroupID)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("VOYAGE_APP_ENV", "production")
	t.Setenv("VOYAGE_JWT_SECRET", "s3cret")
	t.Setenv("VOYAGE_SERVICE_PORT", "9090")
	t.Setenv("VOYAGE_BUS_DRIVER", "RabbitMQ")
	t.Setenv("VOYAGE_FAILURE_STATUS", "failed")
	t.Setenv("VOYAGE_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("VOYAGE_KAFKA_GROUP_PREFIX", "eu-")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, BusRabbitMQ, cfg.BusDriver)
	assert.Equal(t, "failed", cfg.FailureStatus)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaConfig.Brokers)
	assert.Equal(t, "eu-service-voyage-payments", cfg.KafkaGroupID)
}

func TestValidate(t *testing.T) {
	valid := ServiceConfig{AppEnv: "development", BusDriver: BusKafka, FailureStatus: "cancelled"}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.BusDriver = "nats"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.FailureStatus = "rejected"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.AppEnv = "production"
	assert.Error(t, bad.Validate())
}
