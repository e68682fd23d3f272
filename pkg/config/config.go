package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix scopes every environment variable consumed by the platform.
const EnvPrefix = "SHOPWORKS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Cache        CacheConfig
	Checkout     CheckoutConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPWORKS_APP_ENV" default:"dev"`
	Port         string `envconfig:"SHOPWORKS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SHOPWORKS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPWORKS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHOPWORKS_AUTO_MIGRATE" default:"false"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPWORKS_DB_DSN"`
	Driver string `envconfig:"SHOPWORKS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SHOPWORKS_DB_HOST"`
	Port     int    `envconfig:"SHOPWORKS_DB_PORT" default:"5432"`
	User     string `envconfig:"SHOPWORKS_DB_USER"`
	Password string `envconfig:"SHOPWORKS_DB_PASSWORD"`
	Name     string `envconfig:"SHOPWORKS_DB_NAME"`
	SSLMode  string `envconfig:"SHOPWORKS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPWORKS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPWORKS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPWORKS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPWORKS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either SHOPWORKS_DB_DSN or host/user/name settings are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPWORKS_REDIS_URL"`
	Address      string        `envconfig:"SHOPWORKS_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPWORKS_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPWORKS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPWORKS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPWORKS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPWORKS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPWORKS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPWORKS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CacheConfig carries per-namespace TTLs for the two-tier cache.
type CacheConfig struct {
	ProductTTL  time.Duration `envconfig:"SHOPWORKS_CACHE_PRODUCT_TTL" default:"1h"`
	CategoryTTL time.Duration `envconfig:"SHOPWORKS_CACHE_CATEGORY_TTL" default:"1h"`
	CartTTL     time.Duration `envconfig:"SHOPWORKS_CACHE_CART_TTL" default:"15m"`
	SessionTTL  time.Duration `envconfig:"SHOPWORKS_CACHE_SESSION_TTL" default:"24h"`
	SearchTTL   time.Duration `envconfig:"SHOPWORKS_CACHE_SEARCH_TTL" default:"30m"`
	OrderTTL    time.Duration `envconfig:"SHOPWORKS_CACHE_ORDER_TTL" default:"1h"`
	LocalSweep  time.Duration `envconfig:"SHOPWORKS_CACHE_LOCAL_SWEEP" default:"1m"`
}

// CheckoutConfig bounds the checkout transaction.
type CheckoutConfig struct {
	TxTimeout time.Duration `envconfig:"SHOPWORKS_CHECKOUT_TX_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SHOPWORKS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic    string `envconfig:"SHOPWORKS_PUBSUB_DOMAIN_TOPIC" default:"shopworks-domain-events"`
	EmulatorHost   string `envconfig:"SHOPWORKS_PUBSUB_EMULATOR_HOST"`
	CreateMissing  bool   `envconfig:"SHOPWORKS_PUBSUB_CREATE_MISSING" default:"false"`
	PublishTimeout int    `envconfig:"SHOPWORKS_PUBSUB_PUBLISH_TIMEOUT_SECONDS" default:"15"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHOPWORKS_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHOPWORKS_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHOPWORKS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}
