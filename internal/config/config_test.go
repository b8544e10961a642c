package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/task-insights/internal/domain"
)

// clearEnv blanks every variable Load reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"HTTP_PORT", "LOG_LEVEL", "READ_TIMEOUT", "WRITE_TIMEOUT", "SHUTDOWN_TIMEOUT",
		"RABBITMQ_HOST", "RABBITMQ_PORT", "RABBITMQ_USER", "RABBITMQ_PASSWORD", "TASK_QUEUE",
		"BROKER_CONNECT_ATTEMPTS", "BROKER_RETRY_DELAY", "BROKER_HEARTBEAT", "BROKER_BLOCKED_TIMEOUT",
		"POSTGRES_HOST", "DB_CONNECT_TIMEOUT",
		"NACK_RATE_LIMIT", "NACK_BURST", "REDELIVERY_LIMIT", "DEAD_LETTER_QUEUE", "REDIS_ADDR",
		"REDELIVERY_TTL", "QUEUE_SAMPLE_SCHEDULE",
		EnvMessagingConnString, EnvStoreConnString,
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)

	assert.Empty(t, cfg.Broker.URL)
	assert.Equal(t, "rabbitmq", cfg.Broker.Host)
	assert.Equal(t, 5672, cfg.Broker.Port)
	assert.Equal(t, "guest", cfg.Broker.Username)
	assert.Equal(t, "guest", cfg.Broker.Password)
	assert.Equal(t, "task_created", cfg.Broker.Queue)
	assert.Equal(t, 5, cfg.Broker.ConnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.Broker.RetryDelay)
	assert.Equal(t, 600*time.Second, cfg.Broker.Heartbeat)
	assert.Equal(t, 300*time.Second, cfg.Broker.BlockedTimeout)

	assert.Equal(t, "postgres", cfg.Store.Host)
	assert.Equal(t, 5432, cfg.Store.Port)
	assert.Equal(t, "notetakerdb", cfg.Store.Database)
	assert.Equal(t, "postgres", cfg.Store.User)
	assert.Equal(t, "postgres", cfg.Store.Password)

	assert.Equal(t, 0, cfg.Worker.RedeliveryLimit)
	assert.Equal(t, "task_created.dead", cfg.Worker.DeadLetterQueue)
	assert.Equal(t, "@every 15s", cfg.Worker.QueueSampleSchedule)
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("RABBITMQ_HOST", "mq.local")
	t.Setenv("BROKER_RETRY_DELAY", "250ms")
	t.Setenv("POSTGRES_HOST", "db.local")
	t.Setenv("REDELIVERY_LIMIT", "3")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mq.local", cfg.Broker.Host)
	assert.Equal(t, 250*time.Millisecond, cfg.Broker.RetryDelay)
	assert.Equal(t, "db.local", cfg.Store.Host)
	assert.Equal(t, 3, cfg.Worker.RedeliveryLimit)
	assert.Equal(t, "redis:6379", cfg.Worker.RedisAddr)
}

func TestLoad_OrchestratorConnectionStrings(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvMessagingConnString, "amqp://user:pw@broker:5672/")
	t.Setenv(EnvStoreConnString, "Host=pg;Port=6543;Database=tasks;Username=app;Password=secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "amqp://user:pw@broker:5672/", cfg.Broker.URL)
	assert.Equal(t, StoreConfig{
		Host:           "pg",
		Port:           6543,
		Database:       "tasks",
		User:           "app",
		Password:       "secret",
		ConnectTimeout: 10 * time.Second,
	}, cfg.Store)
}

func TestLoad_InvalidStoreConnStringFailsFast(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStoreConnString, "Port=5432;Username=app")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConnString))
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non numeric port", "HTTP_PORT", "eighty"},
		{"unknown log level", "LOG_LEVEL", "verbose"},
		{"zero connect attempts", "BROKER_CONNECT_ATTEMPTS", "0"},
		{"negative redelivery limit", "REDELIVERY_LIMIT", "-1"},
		{"bad redis address", "REDIS_ADDR", "not an address"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_BoundedRedeliveryUsesDefaultDeadLetterQueue(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDELIVERY_LIMIT", "5")
	t.Setenv("DEAD_LETTER_QUEUE", "")

	// An empty env value falls back to the default queue name.
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "task_created.dead", cfg.Worker.DeadLetterQueue)
}
