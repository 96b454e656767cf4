package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"defilens/pkg/errors"
)

type Config struct {
	App           AppConfig
	Server        ServerConfig
	Upstream      UpstreamConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Split         SplitConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"defilens"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UpstreamConfig points at the DefiLlama-compatible data APIs the split
// pipeline aggregates from
type UpstreamConfig struct {
	BaseURL           string        `envconfig:"UPSTREAM_BASE_URL" default:"https://api.llama.fi"`
	DimensionsBaseURL string        `envconfig:"UPSTREAM_DIMENSIONS_BASE_URL" default:"https://api.llama.fi"`
	StablecoinsURL    string        `envconfig:"UPSTREAM_STABLECOINS_URL" default:"https://stablecoins.llama.fi"`
	RequestTimeout    time.Duration `envconfig:"UPSTREAM_REQUEST_TIMEOUT" default:"30s"`
	RateLimitPerSec   float64       `envconfig:"UPSTREAM_RATE_LIMIT_PER_SEC" default:"20"`
	RateLimitBurst    int           `envconfig:"UPSTREAM_RATE_LIMIT_BURST" default:"40"`
}

type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type CacheConfig struct {
	CategoryTTL    time.Duration `envconfig:"CACHE_CATEGORY_TTL" default:"1h"`
	SplitResultTTL time.Duration `envconfig:"CACHE_SPLIT_RESULT_TTL" default:"10m"`
}

// SplitConfig bounds the top-N selection
type SplitConfig struct {
	DefaultLimit int `envconfig:"SPLIT_DEFAULT_LIMIT" default:"5"`
	MaxLimit     int `envconfig:"SPLIT_MAX_LIMIT" default:"20"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for all background workers
type WorkerConfig struct {
	CategoryRefreshInterval time.Duration `envconfig:"WORKER_CATEGORY_REFRESH_INTERVAL" default:"30m"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if cfg.Split.DefaultLimit < 1 {
		cfg.Split.DefaultLimit = 1
	}
	if cfg.Split.MaxLimit < cfg.Split.DefaultLimit {
		cfg.Split.MaxLimit = cfg.Split.DefaultLimit
	}

	return &cfg, nil
}
