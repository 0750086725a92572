// Package config defines the top-level configuration for the scoring engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AMLSENTRY_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Ingest   IngestConfig   `toml:"ingest"`
	Reasoner ReasonerConfig `toml:"reasoner"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the rule thresholds. Zero values fall back to the
// rulebook defaults at wiring time, so a config file only needs the
// thresholds it actually changes.
type EngineConfig struct {
	SmallAmountMax      float64  `toml:"small_amount_max"`
	SmallAmountWindow   duration `toml:"small_amount_window"`
	StructuringMinCount int      `toml:"structuring_min_count"`

	CounterpartyWindow      duration `toml:"counterparty_window"`
	RepeatedCounterpartyMin int      `toml:"repeated_counterparty_min"`

	RapidMaxAccountAgeDays int     `toml:"rapid_max_account_age_days"`
	RapidMinAmount         float64 `toml:"rapid_min_amount"`

	UnusualVolumeMultiplier    float64 `toml:"unusual_volume_multiplier"`
	DormantMinAgeDays          int     `toml:"dormant_min_age_days"`
	HighAmountMedianMultiplier float64 `toml:"high_amount_median_multiplier"`
	HighDTIMin                 float64 `toml:"high_dti_min"`
	SanctionScoreMin           float64 `toml:"sanction_score_min"`

	// ReferenceDate anchors account-age computations, format "2006-01-02".
	ReferenceDate string `toml:"reference_date"`

	HighRiskMCCs          []string `toml:"high_risk_mccs"`
	HighRiskJurisdictions []string `toml:"high_risk_jurisdictions"`
	HighRiskChannels      []string `toml:"high_risk_channels"`
}

// IngestConfig holds the raw input file locations. Cards and users are
// optional enrichment joins.
type IngestConfig struct {
	TransactionsPath string `toml:"transactions_path"`
	CardsPath        string `toml:"cards_path"`
	UsersPath        string `toml:"users_path"`
}

// ReasonerConfig holds the external reasoning service parameters.
type ReasonerConfig struct {
	URL     string   `toml:"url"`
	Timeout duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for run archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds scoring pipeline parallelism parameters.
type PipelineConfig struct {
	// EntityWorkers bounds the entity aggregation pool.
	EntityWorkers int `toml:"entity_workers"`
	// ReasoningWorkers bounds concurrent calls to the reasoning service.
	ReasoningWorkers int `toml:"reasoning_workers"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`

	// RateLimit caps requests per client IP per rate_limit_window.
	// Zero disables rate limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			SmallAmountMax:             10_000,
			SmallAmountWindow:          duration{24 * time.Hour},
			StructuringMinCount:        3,
			CounterpartyWindow:         duration{72 * time.Hour},
			RepeatedCounterpartyMin:    5,
			RapidMaxAccountAgeDays:     30,
			RapidMinAmount:             5_000,
			UnusualVolumeMultiplier:    5,
			DormantMinAgeDays:          300,
			HighAmountMedianMultiplier: 3,
			HighDTIMin:                 0.8,
			SanctionScoreMin:           0.9,
			ReferenceDate:              "2025-01-01",
			HighRiskMCCs:               []string{"4829", "6011", "6051", "6211"},
			HighRiskJurisdictions:      []string{"IR", "KP", "SY", "RU"},
			HighRiskChannels:           []string{"crypto", "offshore"},
		},
		Ingest: IngestConfig{
			TransactionsPath: "data/transactions.csv",
			CardsPath:        "data/cards.csv",
			UsersPath:        "data/users.csv",
		},
		Reasoner: ReasonerConfig{
			URL:     "http://localhost:8080/reason",
			Timeout: duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "amlsentry",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "amlsentry-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			EntityWorkers:    8,
			ReasoningWorkers: 4,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       0,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"run.completed", "run.failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. "score" runs one
// batch and exits, "server" only serves the API, "full" does both.
var validModes = map[string]bool{
	"score":  true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: score, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.SmallAmountMax <= 0 {
		errs = append(errs, "engine: small_amount_max must be > 0")
	}
	if c.Engine.StructuringMinCount < 1 {
		errs = append(errs, "engine: structuring_min_count must be >= 1")
	}
	if c.Engine.ReferenceDate != "" {
		if _, err := time.Parse("2006-01-02", c.Engine.ReferenceDate); err != nil {
			errs = append(errs, fmt.Sprintf("engine: reference_date %q is not YYYY-MM-DD", c.Engine.ReferenceDate))
		}
	}
	if c.Engine.HighDTIMin <= 0 || c.Engine.HighDTIMin >= 10 {
		errs = append(errs, fmt.Sprintf("engine: high_dti_min %v is out of range", c.Engine.HighDTIMin))
	}

	// Ingest — the transactions file is required for scoring modes.
	if c.Mode == "score" || c.Mode == "full" {
		if c.Ingest.TransactionsPath == "" {
			errs = append(errs, "ingest: transactions_path must not be empty for mode "+c.Mode)
		}
	}

	// Reasoner
	if c.Reasoner.URL == "" {
		errs = append(errs, "reasoner: url must not be empty")
	}
	if c.Reasoner.Timeout.Duration < 0 {
		errs = append(errs, "reasoner: timeout must not be negative")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Pipeline
	if c.Pipeline.EntityWorkers < 1 {
		errs = append(errs, "pipeline: entity_workers must be >= 1")
	}
	if c.Pipeline.ReasoningWorkers < 1 {
		errs = append(errs, "pipeline: reasoning_workers must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
