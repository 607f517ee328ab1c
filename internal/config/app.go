package config

import "time"

// DatabaseConfig holds Postgres connection settings, grounded on the
// shape source-manager/internal/bootstrap/database.go expects.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
}

// RedisConfig holds optional Redis Streams settings for the StreamReporter.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled" env:"REDIS_ENABLED"`
	Addr    string `yaml:"addr" env:"REDIS_ADDR"`
	Pass    string `yaml:"password" env:"REDIS_PASSWORD"`
	DB      int    `yaml:"db" env:"REDIS_DB"`
}

// BreakerConfig mirrors internal/breaker.Config for YAML/env loading.
type BreakerConfig struct {
	FailureThreshold           int           `yaml:"failure_threshold" env:"BREAKER_FAILURE_THRESHOLD"`
	SuccessThreshold           int           `yaml:"success_threshold" env:"BREAKER_SUCCESS_THRESHOLD"`
	RecoveryTimeout            time.Duration `yaml:"recovery_timeout" env:"BREAKER_RECOVERY_TIMEOUT"`
	RateLimitBackoffMultiplier float64       `yaml:"rate_limit_backoff_multiplier" env:"BREAKER_RATE_LIMIT_BACKOFF_MULTIPLIER"`
	MaxRecoveryTimeout         time.Duration `yaml:"max_recovery_timeout" env:"BREAKER_MAX_RECOVERY_TIMEOUT"`
}

// RetryConfig mirrors internal/retry.Config for YAML/env loading.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"RETRY_MAX_RETRIES"`
	MaxDelay   time.Duration `yaml:"max_delay" env:"RETRY_MAX_DELAY"`
}

// LoggingConfig configures internal/obslog.
type LoggingConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

// ExtractorConfig configures the LLM client.
type ExtractorConfig struct {
	APIKey         string        `yaml:"-" env:"ANTHROPIC_API_KEY"`
	MaxRetries     int           `yaml:"max_retries" env:"EXTRACTOR_MAX_RETRIES"`
	MaxTokens      int64         `yaml:"max_tokens" env:"EXTRACTOR_MAX_TOKENS"`
	Temperature    float64       `yaml:"temperature" env:"EXTRACTOR_TEMPERATURE"`
	ExtractTimeout time.Duration `yaml:"extract_timeout" env:"EXTRACTOR_TIMEOUT"`
}

// FetcherConfig configures internal/fetcher.
type FetcherConfig struct {
	UserAgent    string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	Timeout      time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT"`
	PerHostDelay time.Duration `yaml:"per_host_delay" env:"FETCHER_PER_HOST_DELAY"`
}

// SchemaRegistryConfig configures internal/schemareg.
type SchemaRegistryConfig struct {
	Dir string `yaml:"dir" env:"SCHEMA_REGISTRY_DIR"`
}

// WorkerConfig holds cmd/worker's top-level settings.
type WorkerConfig struct {
	Database      DatabaseConfig       `yaml:"database"`
	Redis         RedisConfig          `yaml:"redis"`
	Breaker       BreakerConfig        `yaml:"breaker"`
	Retry         RetryConfig          `yaml:"retry"`
	Logging       LoggingConfig        `yaml:"logging"`
	Extractor     ExtractorConfig      `yaml:"extractor"`
	Fetcher       FetcherConfig        `yaml:"fetcher"`
	SchemaReg     SchemaRegistryConfig `yaml:"schema_registry"`
	WorkerCount   int                  `yaml:"worker_count" env:"WORKER_COUNT"`
	WorkerIDPrefix string              `yaml:"worker_id_prefix" env:"WORKER_ID_PREFIX"`
	PollInterval  time.Duration        `yaml:"poll_interval" env:"WORKER_POLL_INTERVAL"`
	PyroscopeAddr string               `yaml:"pyroscope_addr" env:"PYROSCOPE_SERVER_ADDR"`
	SkipUnchanged bool                 `yaml:"skip_unchanged" env:"PIPELINE_SKIP_UNCHANGED"`
}

// SetDefaults fills in the worker config's zero-valued fields with the
// spec's stated defaults.
func (c *WorkerConfig) SetDefaults() {
	if c.WorkerCount == 0 {
		c.WorkerCount = 1
	}
	if c.WorkerIDPrefix == "" {
		c.WorkerIDPrefix = "ares-worker"
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 2
	}
	if c.Breaker.RecoveryTimeout == 0 {
		c.Breaker.RecoveryTimeout = 30 * time.Second
	}
	if c.Breaker.RateLimitBackoffMultiplier == 0 {
		c.Breaker.RateLimitBackoffMultiplier = 2.0
	}
	if c.Breaker.MaxRecoveryTimeout == 0 {
		c.Breaker.MaxRecoveryTimeout = 300 * time.Second
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 60 * time.Minute
	}
	if c.Extractor.MaxRetries == 0 {
		c.Extractor.MaxRetries = 2
	}
	if c.Extractor.MaxTokens == 0 {
		c.Extractor.MaxTokens = 4096
	}
	if c.Extractor.ExtractTimeout == 0 {
		c.Extractor.ExtractTimeout = 120 * time.Second
	}
	if c.Fetcher.UserAgent == "" {
		c.Fetcher.UserAgent = "ares-scraper/1.0"
	}
	if c.Fetcher.Timeout == 0 {
		c.Fetcher.Timeout = 30 * time.Second
	}
	if c.Fetcher.PerHostDelay == 0 {
		c.Fetcher.PerHostDelay = 2 * time.Second
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// ServerConfig holds cmd/server's top-level settings.
type ServerConfig struct {
	Database    DatabaseConfig `yaml:"database"`
	Logging     LoggingConfig  `yaml:"logging"`
	ListenAddr  string         `yaml:"listen_addr" env:"SERVER_LISTEN_ADDR"`
	BearerToken string         `yaml:"-" env:"SERVER_BEARER_TOKEN"`
}

// SetDefaults fills in the server config's zero-valued fields.
func (c *ServerConfig) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
}
