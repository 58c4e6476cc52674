// Package config defines the top-level configuration for the weather bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WEATHERBOT_* environment variables.
type Config struct {
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	OpenMeteo  OpenMeteoConfig  `toml:"openmeteo"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Trading    TradingConfig    `toml:"trading"`
	Cities     []CityConfig     `toml:"cities"`
	Confidence ConfidenceConfig `toml:"confidence"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Backtest   BacktestConfig   `toml:"backtest"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OpenMeteoConfig holds the weather provider endpoints and client limits.
type OpenMeteoConfig struct {
	ForecastHost      string   `toml:"forecast_host"`
	ArchiveHost       string   `toml:"archive_host"`
	PreviousRunsHost  string   `toml:"previous_runs_host"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	Timeout           duration `toml:"timeout"`
	MaxElapsed        duration `toml:"max_elapsed"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	GammaHost     string   `toml:"gamma_host"`
	ClobHost      string   `toml:"clob_host"`
	Timeout       duration `toml:"timeout"`
	EventCacheTTL duration `toml:"event_cache_ttl"`
}

// TradingConfig holds signal thresholds and paper position sizing.
type TradingConfig struct {
	MaxBet       float64  `toml:"max_bet"`
	MaxEntry     float64  `toml:"max_entry"`
	StrongEdge   float64  `toml:"strong_edge"`
	MarginalEdge float64  `toml:"marginal_edge"`
	BoundaryMin  float64  `toml:"boundary_min"`
	AnchorModel  string   `toml:"anchor_model"`
	Models       []string `toml:"models"`
	DaysAhead    int      `toml:"days_ahead"`
	EntryLockTTL duration `toml:"entry_lock_ttl"`
}

// CityConfig describes one tradeable city.
type CityConfig struct {
	Name          string  `toml:"name"`
	Slug          string  `toml:"slug"`
	Lat           float64 `toml:"lat"`
	Lon           float64 `toml:"lon"`
	Unit          string  `toml:"unit"`
	Timezone      string  `toml:"tz"`
	MinConsensus  int     `toml:"min_consensus"`
	RequireAnchor bool    `toml:"require_anchor"`
}

// ConfidenceConfig selects where the calibrated confidence table comes from.
// Source "config" uses Tables below; "s3" reads the JSON object at S3Key, or
// the newest .json object under it when S3Key ends in "/".
type ConfidenceConfig struct {
	Source       string                 `toml:"source"`
	S3Key        string                 `toml:"s3_key"`
	Version      string                 `toml:"version"`
	MaxLead      int                    `toml:"max_lead"`
	MaxAgreement int                    `toml:"max_agreement"`
	Tables       map[string][][]float64 `toml:"tables"`
}

// SchedulerConfig holds the collection cadence. With an interval of five
// minutes or less a full cycle runs only in the first five minutes of each
// quarter hour and inside model release windows.
type SchedulerConfig struct {
	Interval      duration `toml:"interval"`
	CycleTimeout  duration `toml:"cycle_timeout"`
	Concurrency   int      `toml:"concurrency"`
	DropWatch     bool     `toml:"drop_watch"`
	DropWatchCity string   `toml:"drop_watch_city"`
}

// BacktestConfig holds replay parameters.
type BacktestConfig struct {
	PastDays      int    `toml:"past_days"`
	MaxLead       int    `toml:"max_lead"`
	MinSamples    int    `toml:"min_samples"`
	ArchivePrefix string `toml:"archive_prefix"`
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
	// RateLimit is requests per second per client IP; 0 disables it.
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// Cities and confidence tables are filled in by Load when the file omits them.
func Defaults() Config {
	return Config{
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "weatherbot-data",
			ForcePathStyle: true,
		},
		OpenMeteo: OpenMeteoConfig{
			ForecastHost:      "https://api.open-meteo.com",
			ArchiveHost:       "https://archive-api.open-meteo.com",
			PreviousRunsHost:  "https://previous-runs-api.open-meteo.com",
			RequestsPerSecond: 2,
			Burst:             2,
			Timeout:           duration{15 * time.Second},
			MaxElapsed:        duration{30 * time.Second},
		},
		Polymarket: PolymarketConfig{
			GammaHost:     "https://gamma-api.polymarket.com",
			ClobHost:      "https://clob.polymarket.com",
			Timeout:       duration{15 * time.Second},
			EventCacheTTL: duration{time.Minute},
		},
		Trading: TradingConfig{
			MaxBet:       20,
			MaxEntry:     0.50,
			StrongEdge:   0.15,
			MarginalEdge: 0.05,
			BoundaryMin:  0.3,
			AnchorModel:  strategy.DefaultAnchorModel,
			Models:       []string{"ecmwf", "gfs", "icon"},
			DaysAhead:    1,
			EntryLockTTL: duration{30 * time.Second},
		},
		Confidence: ConfidenceConfig{
			Source: "config",
			S3Key:  "confidence/latest.json",
		},
		Scheduler: SchedulerConfig{
			Interval:      duration{5 * time.Minute},
			CycleTimeout:  duration{10 * time.Minute},
			Concurrency:   4,
			DropWatch:     true,
			DropWatchCity: "london",
		},
		Backtest: BacktestConfig{
			PastDays:      90,
			MaxLead:       2,
			MinSamples:    10,
			ArchivePrefix: "backtest",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   10,
			RateBurst:   20,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_opened", "trade_broken", "trade_drifting", "trade_resolved", "error"},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// DefaultCities returns the tradeable city registry.
func DefaultCities() []CityConfig {
	return []CityConfig{
		{Name: "London", Slug: "london", Lat: 51.5053, Lon: 0.0553, Unit: "C", Timezone: "Europe/London", MinConsensus: 1, RequireAnchor: false},
		{Name: "Paris", Slug: "paris", Lat: 49.0097, Lon: 2.5479, Unit: "C", Timezone: "Europe/Paris", MinConsensus: 3, RequireAnchor: true},
		{Name: "Chicago", Slug: "chicago", Lat: 41.9742, Lon: -87.9073, Unit: "F", Timezone: "America/Chicago", MinConsensus: 3, RequireAnchor: true},
	}
}

// DomainCities converts the city registry into domain cities.
func (c *Config) DomainCities() []domain.City {
	out := make([]domain.City, 0, len(c.Cities))
	for _, cc := range c.Cities {
		out = append(out, domain.City{
			Name:          cc.Name,
			Slug:          cc.Slug,
			Lat:           cc.Lat,
			Lon:           cc.Lon,
			Unit:          domain.Unit(strings.ToUpper(cc.Unit)),
			Timezone:      cc.Timezone,
			MinConsensus:  cc.MinConsensus,
			RequireAnchor: cc.RequireAnchor,
		})
	}
	return out
}

// Thresholds returns the classifier thresholds.
func (c *Config) Thresholds() strategy.Thresholds {
	return strategy.Thresholds{
		StrongEdge:   c.Trading.StrongEdge,
		MarginalEdge: c.Trading.MarginalEdge,
		PriceCap:     c.Trading.MaxEntry,
		BoundaryMin:  c.Trading.BoundaryMin,
	}
}

// ConfidenceTable returns the table configured inline.
func (c *Config) ConfidenceTable() strategy.ConfidenceTable {
	return strategy.ConfidenceTable{
		Version:      c.Confidence.Version,
		MaxLead:      c.Confidence.MaxLead,
		MaxAgreement: c.Confidence.MaxAgreement,
		Cities:       c.Confidence.Tables,
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"collect":  true,
	"run":      true,
	"monitor":  true,
	"backtest": true,
	"server":   true,
	"full":     true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: collect, run, monitor, backtest, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Supabase
	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.Database == "" {
			errs = append(errs, "supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		errs = append(errs, "supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// S3 is only required when the confidence table or backtest archive uses it.
	if c.Confidence.Source == "s3" || c.Mode == "backtest" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Providers
	if c.OpenMeteo.ForecastHost == "" || c.OpenMeteo.ArchiveHost == "" {
		errs = append(errs, "openmeteo: forecast_host and archive_host must not be empty")
	}
	if c.OpenMeteo.RequestsPerSecond <= 0 {
		errs = append(errs, "openmeteo: requests_per_second must be > 0")
	}
	if c.Polymarket.GammaHost == "" || c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: gamma_host and clob_host must not be empty")
	}

	// Trading
	if c.Trading.MaxBet <= 0 {
		errs = append(errs, "trading: max_bet must be > 0")
	}
	if c.Trading.MaxEntry <= 0 || c.Trading.MaxEntry > 1 {
		errs = append(errs, fmt.Sprintf("trading: max_entry must be in (0,1], got %v", c.Trading.MaxEntry))
	}
	if c.Trading.MarginalEdge >= c.Trading.StrongEdge {
		errs = append(errs, "trading: marginal_edge must be below strong_edge")
	}
	if c.Trading.BoundaryMin < 0 {
		errs = append(errs, "trading: boundary_min must be >= 0")
	}
	if len(c.Trading.Models) == 0 {
		errs = append(errs, "trading: models must not be empty")
	}
	if c.Trading.DaysAhead < 0 {
		errs = append(errs, "trading: days_ahead must be >= 0")
	}

	// Cities
	if len(c.Cities) == 0 {
		errs = append(errs, "cities: at least one city is required")
	}
	seen := make(map[string]bool, len(c.Cities))
	for i, city := range c.Cities {
		if city.Slug == "" {
			errs = append(errs, fmt.Sprintf("cities[%d]: slug must not be empty", i))
		}
		if seen[city.Slug] {
			errs = append(errs, fmt.Sprintf("cities[%d]: duplicate slug %q", i, city.Slug))
		}
		seen[city.Slug] = true
		if u := strings.ToUpper(city.Unit); u != "C" && u != "F" {
			errs = append(errs, fmt.Sprintf("cities[%d]: unit must be C or F, got %q", i, city.Unit))
		}
		if city.MinConsensus < 1 {
			errs = append(errs, fmt.Sprintf("cities[%d]: min_consensus must be >= 1", i))
		}
	}

	// Confidence
	switch c.Confidence.Source {
	case "config":
		if err := c.ConfidenceTable().Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	case "s3":
		if c.Confidence.S3Key == "" {
			errs = append(errs, "confidence: s3_key must be set when source is s3")
		}
	default:
		errs = append(errs, fmt.Sprintf("confidence: unknown source %q (valid: config, s3)", c.Confidence.Source))
	}

	// Scheduler
	if c.Scheduler.Interval.Duration <= 0 {
		errs = append(errs, "scheduler: interval must be > 0")
	}
	if c.Scheduler.CycleTimeout.Duration <= 0 {
		errs = append(errs, "scheduler: cycle_timeout must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
