package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AMLSENTRY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AMLSENTRY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setFloat64(&cfg.Engine.SmallAmountMax, "AMLSENTRY_ENGINE_SMALL_AMOUNT_MAX")
	setInt(&cfg.Engine.StructuringMinCount, "AMLSENTRY_ENGINE_STRUCTURING_MIN_COUNT")
	setInt(&cfg.Engine.RepeatedCounterpartyMin, "AMLSENTRY_ENGINE_REPEATED_COUNTERPARTY_MIN")
	setFloat64(&cfg.Engine.HighDTIMin, "AMLSENTRY_ENGINE_HIGH_DTI_MIN")
	setStr(&cfg.Engine.ReferenceDate, "AMLSENTRY_ENGINE_REFERENCE_DATE")
	setStringSlice(&cfg.Engine.HighRiskMCCs, "AMLSENTRY_ENGINE_HIGH_RISK_MCCS")
	setStringSlice(&cfg.Engine.HighRiskJurisdictions, "AMLSENTRY_ENGINE_HIGH_RISK_JURISDICTIONS")
	setStringSlice(&cfg.Engine.HighRiskChannels, "AMLSENTRY_ENGINE_HIGH_RISK_CHANNELS")

	// ── Ingest ──
	setStr(&cfg.Ingest.TransactionsPath, "AMLSENTRY_INGEST_TRANSACTIONS_PATH")
	setStr(&cfg.Ingest.CardsPath, "AMLSENTRY_INGEST_CARDS_PATH")
	setStr(&cfg.Ingest.UsersPath, "AMLSENTRY_INGEST_USERS_PATH")

	// ── Reasoner ──
	setStr(&cfg.Reasoner.URL, "AMLSENTRY_REASONER_URL")
	setDuration(&cfg.Reasoner.Timeout, "AMLSENTRY_REASONER_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AMLSENTRY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AMLSENTRY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AMLSENTRY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AMLSENTRY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AMLSENTRY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AMLSENTRY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AMLSENTRY_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AMLSENTRY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AMLSENTRY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AMLSENTRY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AMLSENTRY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AMLSENTRY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AMLSENTRY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AMLSENTRY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AMLSENTRY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AMLSENTRY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AMLSENTRY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AMLSENTRY_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AMLSENTRY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AMLSENTRY_S3_REGION")
	setStr(&cfg.S3.Bucket, "AMLSENTRY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AMLSENTRY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AMLSENTRY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AMLSENTRY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AMLSENTRY_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setInt(&cfg.Pipeline.EntityWorkers, "AMLSENTRY_PIPELINE_ENTITY_WORKERS")
	setInt(&cfg.Pipeline.ReasoningWorkers, "AMLSENTRY_PIPELINE_REASONING_WORKERS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AMLSENTRY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AMLSENTRY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AMLSENTRY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AMLSENTRY_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "AMLSENTRY_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "AMLSENTRY_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AMLSENTRY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AMLSENTRY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AMLSENTRY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AMLSENTRY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AMLSENTRY_MODE")
	setStr(&cfg.LogLevel, "AMLSENTRY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
