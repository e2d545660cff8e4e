package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "LEDGERPAY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "LEDGERPAY_APP_ENV"
	EnvPort      = "LEDGERPAY_APP_PORT"
	EnvDBDSN     = "LEDGERPAY_DB_DSN"
	EnvRedisURL  = "LEDGERPAY_REDIS_URL"
	EnvRabbitURL = "LEDGERPAY_RABBIT_URL"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Rabbit       RabbitConfig
	Outbox       OutboxConfig
	Inbox        InboxConfig
	Idempotency  IdempotencyConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEDGERPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"LEDGERPAY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LEDGERPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEDGERPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEDGERPAY_SERVICE_KIND" default:"payments-api"`
}

type DBConfig struct {
	DSN string `envconfig:"LEDGERPAY_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"LEDGERPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEDGERPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEDGERPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEDGERPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEDGERPAY_REDIS_URL"`
	Address      string        `envconfig:"LEDGERPAY_REDIS_ADDR"`
	Password     string        `envconfig:"LEDGERPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEDGERPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEDGERPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEDGERPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEDGERPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEDGERPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEDGERPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type RabbitConfig struct {
	URL      string `envconfig:"LEDGERPAY_RABBIT_URL"`
	Host     string `envconfig:"LEDGERPAY_RABBIT_HOST" default:"rabbitmq"`
	Port     int    `envconfig:"LEDGERPAY_RABBIT_PORT" default:"5672"`
	Username string `envconfig:"LEDGERPAY_RABBIT_USERNAME" default:"guest"`
	Password string `envconfig:"LEDGERPAY_RABBIT_PASSWORD" default:"guest"`
	VHost    string `envconfig:"LEDGERPAY_RABBIT_VHOST" default:"/"`

	ExchangeName string        `envconfig:"LEDGERPAY_RABBIT_EXCHANGE" default:"ledgerpay.events"`
	Heartbeat    time.Duration `envconfig:"LEDGERPAY_RABBIT_HEARTBEAT" default:"10s"`
}

// AMQPURL returns the explicit URL when set, otherwise one assembled
// from the host/port/credential fields.
func (r RabbitConfig) AMQPURL() string {
	if r.URL != "" {
		return r.URL
	}
	u := &url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.Username, r.Password),
		Host:   fmt.Sprintf("%s:%d", r.Host, r.Port),
		Path:   r.VHost,
	}
	return u.String()
}

type OutboxConfig struct {
	BatchSize    int           `envconfig:"LEDGERPAY_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"LEDGERPAY_OUTBOX_POLL_INTERVAL" default:"2s"`
}

type InboxConfig struct {
	PrefetchCount int           `envconfig:"LEDGERPAY_INBOX_PREFETCH" default:"10"`
	RetryLimit    int           `envconfig:"LEDGERPAY_INBOX_RETRY_LIMIT" default:"3"`
	RetryDelay    time.Duration `envconfig:"LEDGERPAY_INBOX_RETRY_DELAY" default:"5s"`
}

type IdempotencyConfig struct {
	CacheTTL time.Duration `envconfig:"LEDGERPAY_IDEMPOTENCY_CACHE_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LEDGERPAY_AUTO_MIGRATE" default:"false"`
}
