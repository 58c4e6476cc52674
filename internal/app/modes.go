package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/weatherbot/internal/backtest"
	s3blob "github.com/alanyoungcy/weatherbot/internal/blob/s3"
	"github.com/alanyoungcy/weatherbot/internal/pipeline"
	"github.com/alanyoungcy/weatherbot/internal/server"
	"github.com/alanyoungcy/weatherbot/internal/server/handler"
	"github.com/alanyoungcy/weatherbot/internal/server/ws"
	"github.com/alanyoungcy/weatherbot/internal/service"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// CollectMode runs one full cycle and returns, for use under an external
// scheduler such as cron.
func (a *App) CollectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting collect mode")

	collector := a.buildCollector(deps)
	cctx, cancel := context.WithTimeout(ctx, a.cfg.Scheduler.CycleTimeout.Duration)
	defer cancel()

	report, err := collector.RunCycle(cctx)
	if err != nil {
		return fmt.Errorf("collect mode: %w", err)
	}
	for _, ev := range report.Evaluations {
		a.logger.InfoContext(ctx, "evaluation", slog.String("result", ev.String()))
	}
	return nil
}

// RunMode drives the collection cycle on the scheduler until ctx ends.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting run mode")
	return a.buildScheduler(a.buildCollector(deps), deps).Run(ctx)
}

// MonitorMode only tracks and settles open trades; nothing new is entered.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	cycle := &monitorCycle{lifecycle: a.buildLifecycle(deps), clock: deps.Clock.Now}
	return pipeline.NewScheduler(cycle, nil, deps.Locks, a.schedulerConfig(), deps.Clock, a.logger).Run(ctx)
}

// BacktestMode replays past model runs for every city, persists and archives
// the results and uploads a candidate confidence table.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backtest mode")

	var archive backtest.Archiver
	if deps.BlobWriter != nil {
		archive = s3blob.NewBacktestArchive(deps.BlobWriter, a.cfg.Backtest.ArchivePrefix)
	}
	runner := backtest.NewRunner(deps.Weather, deps.BacktestStore, archive, a.cfg.DomainCities(), backtest.Config{
		Models:      a.cfg.Trading.Models,
		PastDays:    a.cfg.Backtest.PastDays,
		MaxLead:     a.cfg.Backtest.MaxLead,
		MinSamples:  a.cfg.Backtest.MinSamples,
		BoundaryMin: a.cfg.Trading.BoundaryMin,
		AnchorModel: a.cfg.Trading.AnchorModel,
	}, deps.Clock, a.logger)

	report, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}
	a.logger.InfoContext(ctx, "backtest report",
		slog.String("run_id", report.RunID),
		slog.Int("results", report.Results),
		slog.Int("archived", len(report.Archived)),
		slog.String("failed", strings.Join(report.Failed, ",")),
		slog.String("candidate_version", report.Candidate.Version),
	)
	return nil
}

// ServerMode serves the API over whatever the other modes have stored.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// FullMode runs the scheduler and, when enabled, the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	collector := a.buildCollector(deps)
	sched := a.buildScheduler(collector, deps)
	g.Go(func() error {
		return sched.Run(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, collector)
	}
	return g.Wait()
}

func (a *App) buildLifecycle(deps *Dependencies) *service.LifecycleManager {
	return service.NewLifecycleManager(service.LifecycleDeps{
		Trades:    deps.TradeStore,
		Alerts:    deps.AlertStore,
		Forecasts: deps.Weather,
		Actuals:   deps.Weather,
		Locks:     deps.Locks,
		Events:    service.NewEvents(deps.Bus, a.logger),
		Notifier:  deps.Notifier,
		Metrics:   deps.Metrics,
		Clock:     deps.Clock,
	}, service.LifecycleConfig{
		MaxBet:      a.cfg.Trading.MaxBet,
		Thresholds:  a.cfg.Thresholds(),
		AnchorModel: a.cfg.Trading.AnchorModel,
		LockTTL:     a.cfg.Trading.EntryLockTTL.Duration,
	}, a.cfg.DomainCities(), a.logger)
}

func (a *App) buildCollector(deps *Dependencies) *service.Collector {
	cities := a.cfg.DomainCities()
	return service.NewCollector(service.CollectorDeps{
		Forecasts:     deps.Weather,
		Markets:       deps.Gamma,
		ForecastStore: deps.ForecastStore,
		PriceStore:    deps.PriceStore,
		SignalStore:   deps.SignalStore,
		Depth:         service.NewDepthRecorder(deps.Clob, deps.DepthStore, a.cfg.Trading.MaxEntry, a.logger),
		Lifecycle:     a.buildLifecycle(deps),
		Accuracy: service.NewAccuracyService(deps.TradeStore, deps.ForecastStore, deps.Weather,
			deps.AccuracyStore, cities, a.cfg.Trading.AnchorModel, deps.Clock, a.logger),
		Events:  service.NewEvents(deps.Bus, a.logger),
		Metrics: deps.Metrics,
		Clock:   deps.Clock,
	}, service.CollectorConfig{
		DaysAhead:   a.cfg.Trading.DaysAhead,
		Thresholds:  a.cfg.Thresholds(),
		AnchorModel: a.cfg.Trading.AnchorModel,
		Concurrency: a.cfg.Scheduler.Concurrency,
	}, cities, deps.Table, a.logger)
}

func (a *App) schedulerConfig() pipeline.Config {
	return pipeline.Config{
		Interval:     a.cfg.Scheduler.Interval.Duration,
		CycleTimeout: a.cfg.Scheduler.CycleTimeout.Duration,
	}
}

// buildScheduler wires the drop watch for the configured city when enabled.
func (a *App) buildScheduler(cycle pipeline.Cycle, deps *Dependencies) *pipeline.Scheduler {
	var drops pipeline.DropChecker
	if a.cfg.Scheduler.DropWatch {
		for _, city := range a.cfg.DomainCities() {
			if city.Slug == a.cfg.Scheduler.DropWatchCity {
				drops = service.NewDropWatch(city, deps.Weather, deps.ForecastStore,
					service.NewEvents(deps.Bus, a.logger), deps.Notifier, deps.Metrics, a.logger)
				break
			}
		}
		if drops == nil {
			a.logger.Warn("drop watch city not configured, drop watch disabled",
				slog.String("city", a.cfg.Scheduler.DropWatchCity))
		}
	}
	return pipeline.NewScheduler(cycle, drops, deps.Locks, a.schedulerConfig(), deps.Clock, a.logger)
}

// monitorCycle runs only the monitor and resolve passes of a cycle.
type monitorCycle struct {
	lifecycle *service.LifecycleManager
	clock     func() time.Time
}

func (m *monitorCycle) RunCycle(ctx context.Context) (service.CycleReport, error) {
	report := service.CycleReport{StartedAt: m.clock().UTC()}
	var err error
	if report.Monitor, err = m.lifecycle.Monitor(ctx); err != nil {
		return report, fmt.Errorf("monitor: %w", err)
	}
	if report.Resolve, err = m.lifecycle.Resolve(ctx); err != nil {
		return report, fmt.Errorf("resolve: %w", err)
	}
	return report, nil
}

// startHTTPServer adds the API server and websocket hub to g. The server is
// shut down gracefully when ctx is cancelled. tables is optional and feeds
// the status endpoints.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, tables handler.TableSource) {
	cities := make([]string, 0, len(a.cfg.Cities))
	for _, c := range a.cfg.Cities {
		cities = append(cities, c.Slug)
	}

	if tables == nil {
		tables = staticTables{deps}
	}

	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger, ws.Config{
			Mode:           a.cfg.Mode,
			TableVersion:   func() string { return tables.Table().Version },
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			StartedAt:      deps.Clock.Now().UTC(),
		})
		g.Go(func() error {
			return ignoreCanceled(hub.Run(ctx))
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateBurst:   a.cfg.Server.RateBurst,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.Health, deps.Clock, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, cities, tables),
		Signals:  handler.NewSignalHandler(deps.SignalStore, a.logger),
		Trades:   handler.NewTradeHandler(deps.TradeStore, deps.AlertStore, a.logger),
		Accuracy: handler.NewAccuracyHandler(deps.AccuracyStore, a.logger),
		Metrics:  promhttp.Handler(),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

type staticTables struct{ deps *Dependencies }

func (s staticTables) Table() strategy.ConfidenceTable { return s.deps.Table }

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
