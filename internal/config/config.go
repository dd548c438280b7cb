package config

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/ecojiaflow/ecolojia/internal/searchsync"
	pkgconfig "github.com/ecojiaflow/ecolojia/pkg/config"
	"github.com/ecojiaflow/ecolojia/pkg/database"
	"github.com/ecojiaflow/ecolojia/pkg/middleware"
)

// Search engine names accepted by SEARCH_ENGINE.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Config holds all configuration for the catalog service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort            int           `env:"CATALOG_HTTP_PORT" envDefault:"8080"`
	RequestTimeout      time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	AdminRequestTimeout time.Duration `env:"ADMIN_REQUEST_TIMEOUT" envDefault:"10m"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	StrictValidation    bool          `env:"CATALOG_STRICT_VALIDATION" envDefault:"false"`
	CORSAllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"catalog"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"catalog_secret"`
	PostgresDB   string `env:"CATALOG_DB_NAME" envDefault:"catalog"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Search index
	SearchEngine          string   `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURLs     []string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUser     string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string   `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchIndex    string   `env:"ELASTICSEARCH_INDEX" envDefault:"products"`
	ElasticsearchRefresh  string   `env:"ELASTICSEARCH_REFRESH" envDefault:"false"`
	ReindexPageSize       int      `env:"REINDEX_PAGE_SIZE" envDefault:"500"`

	// Circuit breaker around the index client
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`
	BreakerOpenTimeout  time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`

	// Index sync
	SyncMode          string        `env:"SYNC_MODE" envDefault:"queue"`
	SyncTimeout       time.Duration `env:"SYNC_TIMEOUT" envDefault:"2s"`
	SyncQueueSize     int           `env:"SYNC_QUEUE_SIZE" envDefault:"1024"`
	SyncWorkers       int           `env:"SYNC_WORKERS" envDefault:"4"`
	SyncMaxAttempts   int           `env:"SYNC_MAX_ATTEMPTS" envDefault:"5"`
	SyncBaseBackoff   time.Duration `env:"SYNC_BASE_BACKOFF" envDefault:"100ms"`
	SyncMaxBackoff    time.Duration `env:"SYNC_MAX_BACKOFF" envDefault:"10s"`
	SyncRatePerSecond float64       `env:"SYNC_RATE_PER_SECOND" envDefault:"0"`
	SyncBurst         int           `env:"SYNC_BURST" envDefault:"1"`

	// Kafka
	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID      string        `env:"KAFKA_GROUP_ID" envDefault:"catalog-search-sync"`
	KafkaMaxRetries   int           `env:"KAFKA_MAX_RETRIES" envDefault:"3"`
	KafkaRetryBackoff time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"500ms"`

	// Redis (Kafka consumer idempotency)
	RedisHost      string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Admin and pprof endpoints (IP allowlist in CIDR notation)
	AdminAllowedCIDRs []string `env:"ADMIN_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load catalog config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom is Load over an explicit environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environ); err != nil {
		return nil, fmt.Errorf("load catalog config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	switch c.SearchEngine {
	case EngineElasticsearch:
		if len(c.ElasticsearchURLs) == 0 {
			return fmt.Errorf("ELASTICSEARCH_URL is required when SEARCH_ENGINE=%s", EngineElasticsearch)
		}
	case EngineMemory:
	default:
		return fmt.Errorf("SEARCH_ENGINE must be %q or %q, got %q", EngineElasticsearch, EngineMemory, c.SearchEngine)
	}
	switch c.ElasticsearchRefresh {
	case "true", "false", "wait_for":
	default:
		return fmt.Errorf("ELASTICSEARCH_REFRESH must be true, false or wait_for, got %q", c.ElasticsearchRefresh)
	}
	mode, err := searchsync.ParseMode(c.SyncMode)
	if err != nil {
		return err
	}
	if mode == searchsync.ModeKafka && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when SYNC_MODE=kafka")
	}
	if c.RequestTimeout <= 0 || c.AdminRequestTimeout <= 0 {
		return fmt.Errorf("HTTP_REQUEST_TIMEOUT and ADMIN_REQUEST_TIMEOUT must be positive")
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("SYNC_TIMEOUT must be positive, got %s", c.SyncTimeout)
	}
	if c.SyncQueueSize < 1 || c.SyncWorkers < 1 || c.SyncMaxAttempts < 1 {
		return fmt.Errorf("SYNC_QUEUE_SIZE, SYNC_WORKERS and SYNC_MAX_ATTEMPTS must be at least 1")
	}
	if c.SyncRatePerSecond < 0 {
		return fmt.Errorf("SYNC_RATE_PER_SECOND must not be negative, got %f", c.SyncRatePerSecond)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1.0 {
		return fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0, 1], got %f", c.BreakerFailureRatio)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	for _, cidr := range c.AdminAllowedCIDRs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("ADMIN_ALLOWED_CIDRS: %w", err)
		}
	}
	return nil
}

// Mode returns the parsed sync mode. Load has already validated it.
func (c *Config) Mode() searchsync.Mode {
	mode, _ := searchsync.ParseMode(c.SyncMode)
	return mode
}

// Postgres returns the connection and pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:        c.RedisHost,
		Port:        c.RedisPort,
		Password:    c.RedisPassword,
		DB:          c.RedisDB,
		DialTimeout: 2 * time.Second,
	}
}

// Queue returns the sync queue settings.
func (c *Config) Queue() searchsync.QueueConfig {
	return searchsync.QueueConfig{
		Size:           c.SyncQueueSize,
		Workers:        c.SyncWorkers,
		MaxAttempts:    c.SyncMaxAttempts,
		AttemptTimeout: c.SyncTimeout,
		BaseBackoff:    c.SyncBaseBackoff,
		MaxBackoff:     c.SyncMaxBackoff,
		RatePerSecond:  c.SyncRatePerSecond,
		Burst:          c.SyncBurst,
	}
}

// CORS returns the CORS middleware settings.
func (c *Config) CORS() middleware.CORSConfig {
	return middleware.CORSConfig{AllowedOrigins: c.CORSAllowedOrigins}
}
