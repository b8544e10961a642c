package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Environment variable names the orchestrator injects for full connection strings.
const (
	EnvMessagingConnString = "ConnectionStrings__messaging"
	EnvStoreConnString     = "ConnectionStrings__notetakerdb"
)

// Config holds all runtime configuration loaded from environment variables.
// It is read once at startup and validated eagerly.
type Config struct {
	// Server
	HTTPPort        string        `validate:"required,numeric"`
	LogLevel        string        `validate:"oneof=debug info warn error"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	Broker BrokerConfig
	Store  StoreConfig
	Worker WorkerConfig
}

// BrokerConfig describes how to reach RabbitMQ. URL wins over the host form when set.
type BrokerConfig struct {
	URL      string `validate:"omitempty,url"`
	Host     string `validate:"required_without=URL"`
	Port     int    `validate:"gt=0,lt=65536"`
	Username string
	Password string

	Queue           string        `validate:"required"`
	ConnectAttempts int           `validate:"gte=1"`
	RetryDelay      time.Duration `validate:"gte=0"`
	Heartbeat       time.Duration `validate:"gte=0"`
	BlockedTimeout  time.Duration `validate:"gte=0"`
}

// WorkerConfig tunes the consumer loop and its redelivery policy.
type WorkerConfig struct {
	// Failed deliveries are nacked at most NackRate times per second.
	NackRate  float64 `validate:"gt=0"`
	NackBurst int     `validate:"gte=1"`

	// RedeliveryLimit of 0 keeps redelivering failed messages forever.
	RedeliveryLimit int           `validate:"gte=0"`
	DeadLetterQueue string        `validate:"required_unless=RedeliveryLimit 0"`
	RedisAddr       string        `validate:"omitempty,hostname_port"`
	RedeliveryTTL   time.Duration `validate:"gt=0"`

	QueueSampleSchedule string `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.BindEnv("broker_url", EnvMessagingConnString); err != nil {
		return nil, fmt.Errorf("bind %s: %w", EnvMessagingConnString, err)
	}
	if err := v.BindEnv("store_conn_string", EnvStoreConnString); err != nil {
		return nil, fmt.Errorf("bind %s: %w", EnvStoreConnString, err)
	}

	store, err := loadStore(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:        v.GetString("http_port"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		ReadTimeout:     v.GetDuration("read_timeout"),
		WriteTimeout:    v.GetDuration("write_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),

		Broker: BrokerConfig{
			URL:             strings.TrimSpace(v.GetString("broker_url")),
			Host:            v.GetString("rabbitmq_host"),
			Port:            v.GetInt("rabbitmq_port"),
			Username:        v.GetString("rabbitmq_user"),
			Password:        v.GetString("rabbitmq_password"),
			Queue:           v.GetString("task_queue"),
			ConnectAttempts: v.GetInt("broker_connect_attempts"),
			RetryDelay:      v.GetDuration("broker_retry_delay"),
			Heartbeat:       v.GetDuration("broker_heartbeat"),
			BlockedTimeout:  v.GetDuration("broker_blocked_timeout"),
		},

		Store: store,

		Worker: WorkerConfig{
			NackRate:            v.GetFloat64("nack_rate_limit"),
			NackBurst:           v.GetInt("nack_burst"),
			RedeliveryLimit:     v.GetInt("redelivery_limit"),
			DeadLetterQueue:     v.GetString("dead_letter_queue"),
			RedisAddr:           v.GetString("redis_addr"),
			RedeliveryTTL:       v.GetDuration("redelivery_ttl"),
			QueueSampleSchedule: v.GetString("queue_sample_schedule"),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", "8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_timeout", 5*time.Second)
	v.SetDefault("write_timeout", 10*time.Second)
	v.SetDefault("shutdown_timeout", 30*time.Second)

	v.SetDefault("rabbitmq_host", "rabbitmq")
	v.SetDefault("rabbitmq_port", 5672)
	v.SetDefault("rabbitmq_user", "guest")
	v.SetDefault("rabbitmq_password", "guest")
	v.SetDefault("task_queue", "task_created")
	v.SetDefault("broker_connect_attempts", 5)
	v.SetDefault("broker_retry_delay", 5*time.Second)
	v.SetDefault("broker_heartbeat", 600*time.Second)
	v.SetDefault("broker_blocked_timeout", 300*time.Second)

	v.SetDefault("postgres_host", "postgres")
	v.SetDefault("db_connect_timeout", 10*time.Second)

	v.SetDefault("nack_rate_limit", 10.0)
	v.SetDefault("nack_burst", 1)
	v.SetDefault("redelivery_limit", 0)
	v.SetDefault("dead_letter_queue", "task_created.dead")
	v.SetDefault("redelivery_ttl", 24*time.Hour)
	v.SetDefault("queue_sample_schedule", "@every 15s")
}

// loadStore prefers the orchestrator's connection string and falls back
// to the static defaults when it is absent.
func loadStore(v *viper.Viper) (StoreConfig, error) {
	var (
		store StoreConfig
		err   error
	)
	if cs := strings.TrimSpace(v.GetString("store_conn_string")); cs != "" {
		store, err = ParseStoreConnString(cs)
		if err != nil {
			return StoreConfig{}, err
		}
	} else {
		store = DefaultStoreConfig(v.GetString("postgres_host"))
	}
	store.ConnectTimeout = v.GetDuration("db_connect_timeout")
	return store, nil
}
