package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/observability"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// CollectorConfig holds the cycle parameters.
type CollectorConfig struct {
	DaysAhead   int
	Thresholds  strategy.Thresholds
	AnchorModel string
	Concurrency int
}

// CollectorDeps are the collaborators of a Collector. Depth, Accuracy and
// Clock are optional.
type CollectorDeps struct {
	Forecasts     domain.ForecastProvider
	Markets       domain.MarketProvider
	ForecastStore domain.ForecastStore
	PriceStore    domain.MarketPriceStore
	SignalStore   domain.SignalStore
	Depth         *DepthRecorder
	Lifecycle     *LifecycleManager
	Accuracy      *AccuracyService
	Events        *Events
	Metrics       *observability.Metrics
	Clock         clockwork.Clock
}

// Evaluation is the outcome of one city/date inside a cycle.
type Evaluation struct {
	City      string
	Date      time.Time
	LeadDays  int
	Forecasts int
	Buckets   int
	Signal    *domain.Signal
	Depth     *domain.DepthSnapshot
	Entry     EntryResult
	Err       error
}

// CycleReport summarises a full cycle.
type CycleReport struct {
	StartedAt   time.Time
	Evaluations []Evaluation
	Monitor     MonitorSummary
	Resolve     ResolveSummary
	Accuracy    int
}

// Collector runs the collection cycle: for every city and evaluation date it
// stores forecasts and prices, classifies a signal, snapshots depth and
// hands actionable signals to the lifecycle manager.
type Collector struct {
	deps   CollectorDeps
	cfg    CollectorConfig
	cities []domain.City
	table  strategy.ConfidenceTable
	logger *slog.Logger
}

// NewCollector creates a Collector scoring with table.
func NewCollector(deps CollectorDeps, cfg CollectorConfig, cities []domain.City, table strategy.ConfidenceTable, logger *slog.Logger) *Collector {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.AnchorModel == "" {
		cfg.AnchorModel = strategy.DefaultAnchorModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		deps:   deps,
		cfg:    cfg,
		cities: cities,
		table:  table,
		logger: logger.With(slog.String("component", "collector")),
	}
}

// Table returns the confidence table in use.
func (c *Collector) Table() strategy.ConfidenceTable {
	return c.table
}

// RunCycle collects every city/date and then monitors, resolves and
// refreshes accuracy. Only a cancelled context makes it fail; individual
// city/date or phase errors are logged and reported.
func (c *Collector) RunCycle(ctx context.Context) (CycleReport, error) {
	start := c.deps.Clock.Now()
	c.deps.Metrics.CycleRunning.Set(1)
	defer func() {
		c.deps.Metrics.CycleRunning.Set(0)
		c.deps.Metrics.CycleDuration.Observe(c.deps.Clock.Since(start).Seconds())
	}()

	report := CycleReport{StartedAt: start.UTC()}
	evals, err := c.Collect(ctx)
	report.Evaluations = evals
	if err != nil {
		c.deps.Metrics.CyclesTotal.WithLabelValues("error").Inc()
		return report, err
	}

	if c.deps.Lifecycle != nil {
		if report.Monitor, err = c.deps.Lifecycle.Monitor(ctx); err != nil {
			c.logger.WarnContext(ctx, "monitor pass failed", slog.String("error", err.Error()))
		}
		if report.Resolve, err = c.deps.Lifecycle.Resolve(ctx); err != nil {
			c.logger.WarnContext(ctx, "resolve pass failed", slog.String("error", err.Error()))
		}
	}
	if c.deps.Accuracy != nil {
		if report.Accuracy, err = c.deps.Accuracy.Compute(ctx); err != nil {
			c.logger.WarnContext(ctx, "accuracy pass failed", slog.String("error", err.Error()))
		}
	}
	if err := ctx.Err(); err != nil {
		c.deps.Metrics.CyclesTotal.WithLabelValues("error").Inc()
		return report, err
	}

	c.deps.Metrics.CyclesTotal.WithLabelValues("ok").Inc()
	c.logger.InfoContext(ctx, "cycle done",
		slog.Int("evaluations", len(report.Evaluations)),
		slog.Int("monitored", report.Monitor.Checked),
		slog.Int("alerts", report.Monitor.Changed),
		slog.Int("resolved", report.Resolve.Resolved),
		slog.Int("deferred", report.Resolve.Deferred),
		slog.Int("accuracy_rows", report.Accuracy),
		slog.Duration("elapsed", c.deps.Clock.Since(start)),
	)
	return report, nil
}

// Collect evaluates every city and date concurrently. Evaluations are
// returned sorted by city then date.
func (c *Collector) Collect(ctx context.Context) ([]Evaluation, error) {
	now := c.deps.Clock.Now().UTC()
	dates := strategy.EvaluationDates(now, c.cfg.DaysAhead)
	c.logger.InfoContext(ctx, "collecting",
		slog.Int("cities", len(c.cities)),
		slog.Int("dates", len(dates)),
		slog.String("table_version", c.table.Version),
	)

	var (
		mu    sync.Mutex
		evals []Evaluation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, city := range c.cities {
		for _, date := range dates {
			g.Go(func() error {
				ev := c.Evaluate(gctx, city, date, now)
				mu.Lock()
				evals = append(evals, ev)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.Slice(evals, func(i, j int) bool {
		if evals[i].City != evals[j].City {
			return evals[i].City < evals[j].City
		}
		return evals[i].Date.Before(evals[j].Date)
	})
	return evals, ctx.Err()
}

// Evaluate runs the full pipeline for one city and date. Failures to store
// or publish are logged and the evaluation carries on; only a forecast
// failure stops it early.
func (c *Collector) Evaluate(ctx context.Context, city domain.City, date, now time.Time) Evaluation {
	ev := Evaluation{City: city.Slug, Date: date, LeadDays: strategy.LeadDays(date, now)}
	log := c.logger.With(
		slog.String("city", city.Slug),
		slog.String("date", domain.DateKey(date)),
	)

	values, err := c.deps.Forecasts.Forecasts(ctx, city, date)
	if err != nil {
		c.deps.Metrics.ProviderErrors.WithLabelValues("forecast").Inc()
		log.WarnContext(ctx, "forecast fetch failed", slog.String("error", err.Error()))
		ev.Err = err
		return ev
	}
	ev.Forecasts = len(values)
	c.storeForecasts(ctx, log, city, date, ev.LeadDays, values, now)

	var market *domain.MarketEvent
	event, err := c.deps.Markets.Market(ctx, city, date)
	switch {
	case err == nil:
		market = &event
		ev.Buckets = len(event.Buckets)
		if err := c.deps.PriceStore.InsertBatch(ctx, city.Slug, date, event.Buckets); err != nil {
			log.WarnContext(ctx, "market price insert failed", slog.String("error", err.Error()))
		}
	case errors.Is(err, domain.ErrNotFound):
		log.InfoContext(ctx, "no market listed")
	default:
		c.deps.Metrics.ProviderErrors.WithLabelValues("market").Inc()
		log.WarnContext(ctx, "market fetch failed", slog.String("error", err.Error()))
	}

	snap, err := strategy.Aggregate(city.Unit, values, c.cfg.AnchorModel)
	if err != nil {
		log.InfoContext(ctx, "no consensus", slog.String("error", err.Error()))
		ev.Err = err
		return ev
	}
	snap.City = city.Slug
	snap.TargetDate = date
	snap.LeadDays = ev.LeadDays

	var price *float64
	var bucket domain.MarketBucket
	if market != nil {
		if b, ok := market.Find(snap.Bucket); ok {
			bucket = b
			p := b.Price
			price = &p
		}
	}

	confidence := c.table.Lookup(city.Slug, ev.LeadDays, snap.Agreement)
	sig := strategy.Classify(snap, confidence, price, strategy.RuleFor(city), c.cfg.Thresholds)
	sig.ID = uuid.NewString()
	sig.TableVersion = c.table.Version
	sig.CreatedAt = now
	ev.Signal = &sig
	c.deps.Metrics.Signals.WithLabelValues(city.Slug, string(sig.Verdict)).Inc()

	if !snap.AnchorAgrees && city.RequireAnchor && snap.Agreement >= 2 {
		log.InfoContext(ctx, "anchor disagrees with consensus",
			slog.String("anchor", snap.AnchorModel),
			slog.String("anchor_bucket", snap.ModelBuckets[snap.AnchorModel]),
			slog.String("consensus", snap.Bucket),
		)
	}
	if sig.Verdict == domain.VerdictStrong && sig.PriceCapped {
		log.InfoContext(ctx, "market above entry cap",
			slog.Float64("price", *price),
			slog.Float64("cap", c.cfg.Thresholds.PriceCap),
		)
	}

	if err := c.deps.SignalStore.Insert(ctx, sig); err != nil {
		log.WarnContext(ctx, "signal insert failed", slog.String("error", err.Error()))
	}
	c.deps.Events.Publish(ctx, domain.ChannelSignals, EventSignal, now, sig)

	if sig.MeetsQuorum && sig.Verdict != domain.VerdictSkip && c.deps.Depth != nil && bucket.TokenID != "" {
		d, err := c.deps.Depth.Record(ctx, city.Slug, date, bucket, confidence, now)
		if err != nil {
			c.deps.Metrics.ProviderErrors.WithLabelValues("depth").Inc()
			log.WarnContext(ctx, "depth snapshot failed", slog.String("error", err.Error()))
		} else {
			ev.Depth = &d
		}
	}

	if sig.Verdict == domain.VerdictStrong && c.deps.Lifecycle != nil {
		res, err := c.deps.Lifecycle.Enter(ctx, city, sig, snap)
		if err != nil {
			log.ErrorContext(ctx, "entry failed", slog.String("error", err.Error()))
			ev.Err = err
		}
		ev.Entry = res
	}

	log.InfoContext(ctx, "evaluated",
		slog.Int("lead_days", ev.LeadDays),
		slog.Int("forecasts", ev.Forecasts),
		slog.String("bucket", sig.Bucket),
		slog.Int("agreement", sig.Agreement),
		slog.Float64("confidence", sig.Confidence),
		slog.String("verdict", string(sig.Verdict)),
		slog.Bool("entered", ev.Entry.Entered),
	)
	return ev
}

func (c *Collector) storeForecasts(ctx context.Context, log *slog.Logger, city domain.City, date time.Time, lead int, values map[string]float64, now time.Time) {
	rows := make([]domain.ModelForecast, 0, len(values))
	for model, v := range values {
		b, err := strategy.Bucket(v, city.Unit)
		if err != nil {
			log.WarnContext(ctx, "unbucketable forecast",
				slog.String("model", model),
				slog.Float64("value", v),
			)
			continue
		}
		rows = append(rows, domain.ModelForecast{
			City:        city.Slug,
			TargetDate:  date,
			Model:       model,
			Value:       v,
			Unit:        city.Unit,
			Bucket:      b,
			LeadDays:    lead,
			ModelRun:    strategy.ModelRun(model, now),
			CollectedAt: now,
		})
	}
	if len(rows) == 0 {
		return
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Model < rows[j].Model })
	if err := c.deps.ForecastStore.InsertBatch(ctx, rows); err != nil {
		log.WarnContext(ctx, "forecast insert failed", slog.String("error", err.Error()))
	}
}

// String summarises an evaluation for CLI output.
func (e Evaluation) String() string {
	if e.Signal == nil {
		return fmt.Sprintf("%s %s D+%d: no signal", e.City, domain.DateKey(e.Date), e.LeadDays)
	}
	s := e.Signal
	price := "n/a"
	if s.MarketPrice != nil {
		price = fmt.Sprintf("%.1f¢", *s.MarketPrice*100)
	}
	out := fmt.Sprintf("%s %s D+%d: %s %d/%d conf %.2f price %s -> %s",
		e.City, domain.DateKey(e.Date), e.LeadDays, s.Bucket, s.Agreement, e.Forecasts, s.Confidence, price, s.Verdict)
	if e.Entry.Entered {
		out += fmt.Sprintf(" | opened %d @ %.2f", e.Entry.Trade.Shares, e.Entry.Trade.Price)
	}
	return out
}
