package config

import (
	"fmt"
	"net"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/jobs"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "KBSEARCH"

type Config struct {
	Host  string `envconfig:"HOST" default:""`
	Port  string `envconfig:"PORT" default:"3000"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Vendor knowledge base
	AppKey            string        `envconfig:"APP_KEY"`
	AppSecret         string        `envconfig:"APP_SECRET"`
	APIURL            string        `envconfig:"API_URL"`
	BatchSize         int           `envconfig:"BATCH_SIZE" default:"1000"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	RequestsPerSecond float64       `envconfig:"REQUESTS_PER_SECOND" default:"5"`
	MaxPages          int           `envconfig:"MAX_PAGES" default:"10000"`

	// Sync and local snapshot
	SyncInterval  string        `envconfig:"SYNC_INTERVAL" default:"0 * * * *"`
	CacheTimeout  time.Duration `envconfig:"CACHE_TIMEOUT" default:"40m"`
	DataFile      string        `envconfig:"DATA_FILE" default:"data/knowledge.json"`
	WatchSnapshot bool          `envconfig:"WATCH_SNAPSHOT" default:"true"`

	// Search
	MinSimilarity     float64       `envconfig:"MIN_SIMILARITY" default:"0.3"`
	MaxResults        int           `envconfig:"MAX_RESULTS" default:"10"`
	HotQuestionsLimit int           `envconfig:"HOT_QUESTIONS_LIMIT" default:"5"`
	QueryCacheTTL     time.Duration `envconfig:"QUERY_CACHE_TTL" default:"5m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	if _, err := jobs.ParseSchedule(c.SyncInterval); err != nil {
		return fmt.Errorf("%s_SYNC_INTERVAL: %w", envPrefix, err)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("%s_MIN_SIMILARITY must be between 0 and 1, got %g", envPrefix, c.MinSimilarity)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%s_BATCH_SIZE must be positive, got %d", envPrefix, c.BatchSize)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("%s_MAX_RESULTS must be positive, got %d", envPrefix, c.MaxResults)
	}
	if c.CacheTimeout <= 0 {
		return fmt.Errorf("%s_CACHE_TIMEOUT must be positive, got %s", envPrefix, c.CacheTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s_REQUEST_TIMEOUT must be positive, got %s", envPrefix, c.RequestTimeout)
	}
	return nil
}

// HasCredentials reports whether the vendor app key and secret are set.
func (c *Config) HasCredentials() bool {
	return c.AppKey != "" && c.AppSecret != ""
}

// HasSentry reports whether error reporting is configured.
func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}
