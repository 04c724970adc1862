package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetString_PrefixThenBareThenDefault(t *testing.T) {
	v, err := Load("TESTSVC")
	require.NoError(t, err)

	assert.Equal(t, "fallback", GetString(v, "SOME_KEY", "fallback"))

	t.Setenv("SOME_KEY", "bare")
	assert.Equal(t, "bare", GetString(v, "SOME_KEY", "fallback"))

	t.Setenv("TESTSVC_SOME_KEY", "prefixed")
	assert.Equal(t, "prefixed", GetString(v, "SOME_KEY", "fallback"))
}

func TestTypedGetters(t *testing.T) {
	v, err := Load("TESTSVC")
	require.NoError(t, err)

	t.Setenv("TESTSVC_ATTEMPTS", "7")
	t.Setenv("TESTSVC_BAD_INT", "seven")
	t.Setenv("TESTSVC_TTL", "90s")

	assert.Equal(t, 7, GetInt(v, "ATTEMPTS", 1))
	assert.Equal(t, 1, GetInt(v, "BAD_INT", 1))
	assert.Equal(t, 90*time.Second, GetDuration(v, "TTL", time.Minute))
	assert.Equal(t, time.Minute, GetDuration(v, "MISSING_TTL", time.Minute))
}

func TestGetServicePort(t *testing.T) {
	v, err := Load("TESTSVC")
	require.NoError(t, err)

	assert.Equal(t, ":8080", GetServicePort(v, "SERVICE_PORT"))
	t.Setenv("TESTSVC_SERVICE_PORT", "9000")
	assert.Equal(t, ":9000", GetServicePort(v, "SERVICE_PORT"))
}

func TestDatabaseConfig(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "voyage", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=voyage sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/voyage?sslmode=disable", cfg.DatabaseURL())
}

func TestLoadKafkaConfig(t *testing.T) {
	v, err := Load("TESTSVC")
	require.NoError(t, err)
	t.Setenv("TESTSVC_KAFKA_BROKERS", "a:9092,,b:9092 ")

	cfg := LoadKafkaConfig(v)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers)
	assert.Equal(t, "payment.events.dlq", cfg.DLQTopic)
	assert.Equal(t, 5, cfg.MaxAttempts)
}

func TestLoadRabbitConfig(t *testing.T) {
	v, err := Load("TESTSVC")
	require.NoError(t, err)

	assert.Equal(t, 5, LoadRabbitConfig(v).MaxAttempts)

	t.Setenv("TESTSVC_KAFKA_MAX_ATTEMPTS", "9")
	t.Setenv("TESTSVC_RABBIT_MAX_ATTEMPTS", "2")
	cfg := LoadRabbitConfig(v)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 8, cfg.Prefetch)
	assert.Equal(t, 9, LoadKafkaConfig(v).MaxAttempts)
}
