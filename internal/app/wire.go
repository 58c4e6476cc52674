package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	s3blob "github.com/alanyoungcy/weatherbot/internal/blob/s3"
	"github.com/alanyoungcy/weatherbot/internal/cache/redis"
	"github.com/alanyoungcy/weatherbot/internal/config"
	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/notify"
	"github.com/alanyoungcy/weatherbot/internal/observability"
	"github.com/alanyoungcy/weatherbot/internal/platform/openmeteo"
	"github.com/alanyoungcy/weatherbot/internal/platform/polymarket"
	"github.com/alanyoungcy/weatherbot/internal/server/handler"
	"github.com/alanyoungcy/weatherbot/internal/store/postgres"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// Dependencies bundles the concrete collaborators the modes assemble into
// services. It is constructed by Wire and torn down by the returned cleanup
// function. Fields for backends a mode does not need stay nil.
type Dependencies struct {
	// Stores
	ForecastStore domain.ForecastStore
	SignalStore   domain.SignalStore
	TradeStore    domain.TradeStore
	AlertStore    domain.AlertStore
	PriceStore    domain.MarketPriceStore
	DepthStore    domain.DepthStore
	AccuracyStore domain.AccuracyStore
	BacktestStore domain.BacktestStore

	// Redis
	Locks       domain.LockManager
	Bus         domain.SignalBus
	MarketCache domain.MarketCache

	// Blob storage
	BlobReader domain.BlobReader
	BlobWriter domain.BlobWriter

	// Providers
	Weather *openmeteo.Client
	Gamma   *polymarket.GammaClient
	Clob    *polymarket.ClobClient

	Notifier *notify.Notifier
	Metrics  *observability.Metrics
	Clock    clockwork.Clock

	// Table is the confidence table the classifier scores with.
	Table strategy.ConfidenceTable

	// Health probes every wired backend.
	Health map[string]handler.Pinger
}

// needsRedis reports whether the mode coordinates through locks or the bus.
func needsRedis(mode string) bool {
	return mode != "backtest"
}

// needsS3 reports whether the mode reads or writes object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "backtest" || cfg.Confidence.Source == "s3"
}

// Wire constructs the concrete dependencies for cfg.Mode and returns them
// together with a cleanup function releasing them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics: observability.NewMetrics(),
		Clock:   clockwork.NewRealClock(),
		Health:  make(map[string]handler.Pinger),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)
	deps.Health["postgres"] = pgClient.Ping

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
	}

	pool := pgClient.Pool()
	deps.ForecastStore = postgres.NewForecastStore(pool)
	deps.SignalStore = postgres.NewSignalStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.AlertStore = postgres.NewAlertStore(pool)
	deps.PriceStore = postgres.NewMarketPriceStore(pool)
	deps.DepthStore = postgres.NewDepthStore(pool)
	deps.AccuracyStore = postgres.NewAccuracyStore(pool)
	deps.BacktestStore = postgres.NewBacktestStore(pool)

	// --- Redis ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Health["redis"] = redisClient.Ping

		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.MarketCache = redis.NewMarketCache(redisClient)
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Health["s3"] = s3Client.Health
		objects := s3blob.NewObjects(s3Client)
		deps.BlobReader = objects
		deps.BlobWriter = objects
	}

	// --- Providers ---
	deps.Weather = openmeteo.NewClient(openmeteo.Options{
		ForecastHost:      cfg.OpenMeteo.ForecastHost,
		ArchiveHost:       cfg.OpenMeteo.ArchiveHost,
		PreviousRunsHost:  cfg.OpenMeteo.PreviousRunsHost,
		Models:            cfg.Trading.Models,
		RequestsPerSecond: cfg.OpenMeteo.RequestsPerSecond,
		Burst:             cfg.OpenMeteo.Burst,
		Timeout:           cfg.OpenMeteo.Timeout.Duration,
		MaxElapsed:        cfg.OpenMeteo.MaxElapsed.Duration,
	})
	pmOpts := polymarket.Options{Timeout: cfg.Polymarket.Timeout.Duration}
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, pmOpts, logger)
	if deps.MarketCache != nil {
		deps.Gamma = deps.Gamma.WithCache(deps.MarketCache, cfg.Polymarket.EventCacheTTL.Duration)
	}
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, pmOpts)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Confidence table ---
	table, err := loadConfidenceTable(ctx, cfg, deps.BlobReader)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Table = table
	deps.Metrics.ConfidenceLoaded.SetToCurrentTime()
	logger.InfoContext(ctx, "confidence table loaded",
		slog.String("source", cfg.Confidence.Source),
		slog.String("version", table.Version),
		slog.Any("cities", table.CityNames()),
	)

	return deps, cleanup, nil
}

// loadConfidenceTable returns the inline table, or the one stored in the
// bucket when the source is s3. A table that fails validation is an error
// either way.
func loadConfidenceTable(ctx context.Context, cfg *config.Config, blobs domain.BlobReader) (strategy.ConfidenceTable, error) {
	if cfg.Confidence.Source != "s3" {
		table := cfg.ConfidenceTable()
		if err := table.Validate(); err != nil {
			return strategy.ConfidenceTable{}, fmt.Errorf("confidence table: %w", err)
		}
		return table, nil
	}
	if blobs == nil {
		return strategy.ConfidenceTable{}, fmt.Errorf("confidence table: s3 source without a bucket")
	}
	table, err := s3blob.LoadConfidenceTable(ctx, blobs, cfg.Confidence.S3Key)
	if err != nil {
		return strategy.ConfidenceTable{}, fmt.Errorf("confidence table: %w", err)
	}
	return table, nil
}
