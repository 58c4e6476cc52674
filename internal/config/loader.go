package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WEATHERBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file so a deployment can
// run from the environment alone. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// The city registry and confidence tables are replaced wholesale, never
	// merged, so defaults only apply when the file leaves them out.
	if len(cfg.Cities) == 0 {
		cfg.Cities = DefaultCities()
	}
	if len(cfg.Confidence.Tables) == 0 {
		def := strategy.DefaultConfidenceTable()
		cfg.Confidence.Tables = def.Cities
		if cfg.Confidence.Version == "" {
			cfg.Confidence.Version = def.Version
		}
		if cfg.Confidence.MaxLead == 0 {
			cfg.Confidence.MaxLead = def.MaxLead
		}
		if cfg.Confidence.MaxAgreement == 0 {
			cfg.Confidence.MaxAgreement = def.MaxAgreement
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WEATHERBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "WEATHERBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "WEATHERBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "WEATHERBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "WEATHERBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "WEATHERBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "WEATHERBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "WEATHERBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "WEATHERBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "WEATHERBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "WEATHERBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "WEATHERBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "WEATHERBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WEATHERBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WEATHERBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WEATHERBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WEATHERBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WEATHERBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "WEATHERBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WEATHERBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "WEATHERBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WEATHERBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WEATHERBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WEATHERBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WEATHERBOT_S3_FORCE_PATH_STYLE")

	// ── Open-Meteo ──
	setStr(&cfg.OpenMeteo.ForecastHost, "WEATHERBOT_OPENMETEO_FORECAST_HOST")
	setStr(&cfg.OpenMeteo.ArchiveHost, "WEATHERBOT_OPENMETEO_ARCHIVE_HOST")
	setStr(&cfg.OpenMeteo.PreviousRunsHost, "WEATHERBOT_OPENMETEO_PREVIOUS_RUNS_HOST")
	setFloat64(&cfg.OpenMeteo.RequestsPerSecond, "WEATHERBOT_OPENMETEO_REQUESTS_PER_SECOND")
	setDuration(&cfg.OpenMeteo.Timeout, "WEATHERBOT_OPENMETEO_TIMEOUT")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "WEATHERBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "WEATHERBOT_POLYMARKET_CLOB_HOST")
	setDuration(&cfg.Polymarket.EventCacheTTL, "WEATHERBOT_POLYMARKET_EVENT_CACHE_TTL")

	// ── Trading ──
	setFloat64(&cfg.Trading.MaxBet, "WEATHERBOT_TRADING_MAX_BET")
	setFloat64(&cfg.Trading.MaxEntry, "WEATHERBOT_TRADING_MAX_ENTRY")
	setFloat64(&cfg.Trading.StrongEdge, "WEATHERBOT_TRADING_STRONG_EDGE")
	setFloat64(&cfg.Trading.MarginalEdge, "WEATHERBOT_TRADING_MARGINAL_EDGE")
	setFloat64(&cfg.Trading.BoundaryMin, "WEATHERBOT_TRADING_BOUNDARY_MIN")
	setStr(&cfg.Trading.AnchorModel, "WEATHERBOT_TRADING_ANCHOR_MODEL")
	setStringSlice(&cfg.Trading.Models, "WEATHERBOT_TRADING_MODELS")
	setInt(&cfg.Trading.DaysAhead, "WEATHERBOT_TRADING_DAYS_AHEAD")

	// ── Confidence ──
	setStr(&cfg.Confidence.Source, "WEATHERBOT_CONFIDENCE_SOURCE")
	setStr(&cfg.Confidence.S3Key, "WEATHERBOT_CONFIDENCE_S3_KEY")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.Interval, "WEATHERBOT_SCHEDULER_INTERVAL")
	setDuration(&cfg.Scheduler.CycleTimeout, "WEATHERBOT_SCHEDULER_CYCLE_TIMEOUT")
	setInt(&cfg.Scheduler.Concurrency, "WEATHERBOT_SCHEDULER_CONCURRENCY")
	setBool(&cfg.Scheduler.DropWatch, "WEATHERBOT_SCHEDULER_DROP_WATCH")

	// ── Backtest ──
	setInt(&cfg.Backtest.PastDays, "WEATHERBOT_BACKTEST_PAST_DAYS")
	setInt(&cfg.Backtest.MaxLead, "WEATHERBOT_BACKTEST_MAX_LEAD")
	setInt(&cfg.Backtest.MinSamples, "WEATHERBOT_BACKTEST_MIN_SAMPLES")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "WEATHERBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "WEATHERBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WEATHERBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "WEATHERBOT_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimit, "WEATHERBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WEATHERBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WEATHERBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WEATHERBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WEATHERBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "WEATHERBOT_MODE")
	setStr(&cfg.LogLevel, "WEATHERBOT_LOG_LEVEL")
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
