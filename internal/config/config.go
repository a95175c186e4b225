// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileEnvVar names the variable holding an optional YAML config path.
const FileEnvVar = "GRAPH_CONFIG_FILE"

// Config is the full service configuration.
type Config struct {
	Ledger    LedgerConfig    `yaml:"ledger" envPrefix:"GRAPH_LEDGER_"`
	Profile   ProfileConfig   `yaml:"profile" envPrefix:"GRAPH_PROFILE_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"GRAPH_STORE_"`
	HTTP      HTTPConfig      `yaml:"http" envPrefix:"GRAPH_HTTP_"`
	Log       LogConfig       `yaml:"log" envPrefix:"GRAPH_LOG_"`
	Recommend RecommendConfig `yaml:"recommend" envPrefix:"GRAPH_RECOMMEND_"`
	Mutation  MutationConfig  `yaml:"mutation" envPrefix:"GRAPH_MUTATION_"`
	Watch     WatchConfig     `yaml:"watch" envPrefix:"GRAPH_WATCH_"`
}

// LedgerConfig configures the ledger RPC and WebSocket clients.
type LedgerConfig struct {
	RPCURL     string        `yaml:"rpc_url" env:"RPC_URL" validate:"required,url"`
	WSURL      string        `yaml:"ws_url" env:"WS_URL" validate:"omitempty,url"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES" validate:"gte=0,lte=10"`
	RateLimit  float64       `yaml:"rate_limit" env:"RATE_LIMIT" validate:"gte=0"`
	RateBurst  int           `yaml:"rate_burst" env:"RATE_BURST" validate:"gte=0"`
	PageSize   int           `yaml:"page_size" env:"PAGE_SIZE" validate:"gte=1,lte=50"`
	MaxPages   int           `yaml:"max_pages" env:"MAX_PAGES" validate:"gte=1"`

	BreakerThreshold float64       `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD" validate:"gt=0,lte=1"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout" env:"BREAKER_TIMEOUT" validate:"gt=0"`
	BreakerMinCalls  uint32        `yaml:"breaker_min_calls" env:"BREAKER_MIN_CALLS"`

	// Owner and SignerKey enable writes. Both or neither.
	Owner     string `yaml:"owner" env:"OWNER" validate:"required_with=SignerKey"`
	SignerKey string `yaml:"signer_key" env:"SIGNER_KEY" validate:"required_with=Owner"`
}

// ProfileConfig configures the profile metadata resolver.
type ProfileConfig struct {
	BaseURL  string        `yaml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" validate:"gte=0"`
}

// StoreConfig selects and configures the snapshot store.
type StoreConfig struct {
	Backend       string `yaml:"backend" env:"BACKEND" validate:"oneof=memory postgres clickhouse sqlite"`
	PostgresDSN   string `yaml:"postgres_dsn" env:"POSTGRES_DSN" validate:"required_if=Backend postgres"`
	ClickhouseDSN string `yaml:"clickhouse_dsn" env:"CLICKHOUSE_DSN" validate:"required_if=Backend clickhouse"`
	SQLitePath    string `yaml:"sqlite_path" env:"SQLITE_PATH" validate:"required_if=Backend sqlite"`
	RetentionDays int    `yaml:"retention_days" env:"RETENTION_DAYS" validate:"gte=1"`
	AutoMigrate   bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// HTTPConfig configures the API and metrics listeners.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR" validate:"required"`
	MetricsAddr     string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=json console text"`
}

// RecommendConfig tunes the recommendation engine.
type RecommendConfig struct {
	TargetCount     int   `yaml:"target_count" env:"TARGET_COUNT" validate:"gte=1,lte=100"`
	SeedConcurrency int   `yaml:"seed_concurrency" env:"SEED_CONCURRENCY" validate:"gte=1,lte=64"`
	RandSeed        int64 `yaml:"rand_seed" env:"RAND_SEED"` // 0 seeds from the clock
}

// MutationConfig tunes the mutation orchestrator.
type MutationConfig struct {
	VerifyBeforeMutate bool `yaml:"verify_before_mutate" env:"VERIFY_BEFORE_MUTATE"`
}

// WatchConfig lists accounts the server watches for live changes.
type WatchConfig struct {
	Accounts []string `yaml:"accounts" env:"ACCOUNTS" envSeparator:"," validate:"dive,required"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Timeout:          15 * time.Second,
			MaxRetries:       3,
			RateLimit:        20,
			RateBurst:        10,
			PageSize:         50,
			MaxPages:         10_000,
			BreakerThreshold: 0.6,
			BreakerTimeout:   30 * time.Second,
			BreakerMinCalls:  10,
		},
		Profile: ProfileConfig{
			Timeout:  5 * time.Second,
			CacheTTL: 10 * time.Minute,
		},
		Store: StoreConfig{
			Backend:       "memory",
			RetentionDays: 60,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Recommend: RecommendConfig{
			TargetCount:     25,
			SeedConcurrency: 4,
		},
	}
}

// Load builds the configuration. path may be empty; when empty the
// GRAPH_CONFIG_FILE variable is consulted.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnvVar)
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	c.Ledger.SignerKey = strings.TrimSpace(c.Ledger.SignerKey)
}

var validate = validator.New()

// Validate checks field constraints and reports every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// CanWrite reports whether a signer is configured.
func (c *Config) CanWrite() bool {
	return c.Ledger.Owner != "" && c.Ledger.SignerKey != ""
}
