// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/diewo77/go-crudgate/gate"
	"github.com/diewo77/go-crudgate/internal/crud"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Crud     CrudConfig
	Gate     GateConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds connection settings. Driver is "postgres" or "sqlite";
// Path is only used by sqlite.
type DatabaseConfig struct {
	Driver     string        `envconfig:"DB_DRIVER" default:"postgres"`
	Host       string        `envconfig:"DB_HOST" default:"localhost"`
	Port       int           `envconfig:"DB_PORT" default:"5432"`
	User       string        `envconfig:"DB_USER" default:"crudgate"`
	Password   string        `envconfig:"DB_PASSWORD" default:"crudgate"`
	DBName     string        `envconfig:"DB_NAME" default:"crudgate"`
	SSLMode    string        `envconfig:"DB_SSLMODE" default:"disable"`
	Path       string        `envconfig:"DB_PATH" default:"crudgate.db"`
	Retries    int           `envconfig:"DB_CONNECT_RETRIES" default:"5"`
	RetryDelay time.Duration `envconfig:"DB_CONNECT_RETRY_DELAY" default:"2s"`
}

// RedisConfig holds the result cache settings. An empty URL disables caching.
type RedisConfig struct {
	URL string `envconfig:"REDIS_URL"`
}

// CrudConfig holds the record service defaults.
type CrudConfig struct {
	Limit         int           `envconfig:"CRUD_LIMIT" default:"100000"`
	MaxQueryLimit int           `envconfig:"CRUD_MAX_QUERY_LIMIT" default:"100000"`
	CacheExpire   time.Duration `envconfig:"CRUD_CACHE_EXPIRE" default:"300s"`
	LogCreate     bool          `envconfig:"CRUD_LOG_CREATE" default:"true"`
	LogUpdate     bool          `envconfig:"CRUD_LOG_UPDATE" default:"true"`
	LogRead       bool          `envconfig:"CRUD_LOG_READ" default:"false"`
	LogDelete     bool          `envconfig:"CRUD_LOG_DELETE" default:"true"`
}

// GateConfig holds the authorization settings.
type GateConfig struct {
	CollectionCategories []string      `envconfig:"GATE_COLLECTION_CATEGORIES" default:"collection,table"`
	ResourceCacheSize    int           `envconfig:"GATE_RESOURCE_CACHE_SIZE" default:"256"`
	ResourceCacheTTL     time.Duration `envconfig:"GATE_RESOURCE_CACHE_TTL" default:"5m"`
}

// LogConfig selects the log level and output format ("text" or "json").
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

// MetricsConfig selects where command metrics are pushed. An empty PushURL
// disables pushing.
type MetricsConfig struct {
	PushURL string `envconfig:"METRICS_PUSH_URL"`
	Job     string `envconfig:"METRICS_JOB" default:"crudgate"`
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Options converts the settings into record service options.
func (c CrudConfig) Options() crud.Options {
	return crud.Options{
		Limit:         c.Limit,
		MaxQueryLimit: c.MaxQueryLimit,
		CacheExpire:   c.CacheExpire,
		LogCreate:     c.LogCreate,
		LogUpdate:     c.LogUpdate,
		LogRead:       c.LogRead,
		LogDelete:     c.LogDelete,
	}
}

// Options converts the settings into gate options.
func (g GateConfig) Options(logger logrus.FieldLogger) []gate.Option {
	return []gate.Option{
		gate.WithCollectionCategories(g.CollectionCategories...),
		gate.WithLogger(logger),
	}
}

// NewLogger builds a logrus logger writing to stderr.
func (l LogConfig) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	switch strings.ToLower(l.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("config: unknown log format %q", l.Format)
	}
	return logger, nil
}

// Load reads a .env file when present, then the environment.
// Unset variables take the defaults above.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
