package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/observability"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// Reasons an entry attempt did not open a position.
const (
	ReasonNotActionable = "not_actionable"
	ReasonBoundary      = "boundary"
	ReasonTooSmall      = "below_one_share"
	ReasonLockHeld      = "lock_held"
	ReasonExists        = "already_traded"
	ReasonDuplicate     = "duplicate"
)

// LifecycleConfig holds the entry parameters.
type LifecycleConfig struct {
	MaxBet      float64
	Thresholds  strategy.Thresholds
	AnchorModel string
	LockTTL     time.Duration
}

// LifecycleDeps are the collaborators of a LifecycleManager. Bus, Notifier
// and Clock are optional.
type LifecycleDeps struct {
	Trades    domain.TradeStore
	Alerts    domain.AlertStore
	Forecasts domain.ForecastProvider
	Actuals   domain.ActualProvider
	Locks     domain.LockManager
	Events    *Events
	Notifier  Notifier
	Metrics   *observability.Metrics
	Clock     clockwork.Clock
}

// EntryResult reports what Enter did. Reason is set whenever Entered is
// false.
type EntryResult struct {
	Trade   domain.Trade
	Entered bool
	Reason  string
}

// MonitorSummary counts one Monitor pass.
type MonitorSummary struct {
	Checked int
	Changed int
	Failed  int
}

// ResolveSummary counts one Resolve pass.
type ResolveSummary struct {
	Resolved int
	Deferred int
	Failed   int
}

// LifecycleManager opens paper positions on actionable signals, tracks their
// drift against fresh consensus and settles them against observations.
type LifecycleManager struct {
	deps   LifecycleDeps
	cfg    LifecycleConfig
	cities map[string]domain.City
	logger *slog.Logger
}

// NewLifecycleManager creates a manager for the given cities.
func NewLifecycleManager(deps LifecycleDeps, cfg LifecycleConfig, cities []domain.City, logger *slog.Logger) *LifecycleManager {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.AnchorModel == "" {
		cfg.AnchorModel = strategy.DefaultAnchorModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	byslug := make(map[string]domain.City, len(cities))
	for _, c := range cities {
		byslug[c.Slug] = c
	}
	return &LifecycleManager{
		deps:   deps,
		cfg:    cfg,
		cities: byslug,
		logger: logger.With(slog.String("component", "lifecycle")),
	}
}

// Enter opens a paper position for sig if it passes every entry gate. At
// most one position exists per city and date: the per-market lock keeps
// concurrent cycles apart and the store's unique constraint backs it up.
func (m *LifecycleManager) Enter(ctx context.Context, city domain.City, sig domain.Signal, snap domain.ConsensusSnapshot) (EntryResult, error) {
	if !sig.Actionable() {
		return m.decline(ReasonNotActionable), nil
	}
	if m.cfg.Thresholds.BoundaryMin > 0 && !strategy.PassesBoundaryFilter(snap, city.Unit, m.cfg.Thresholds.BoundaryMin) {
		m.logger.InfoContext(ctx, "entry skipped near bucket boundary",
			slog.String("city", city.Slug),
			slog.String("date", domain.DateKey(sig.TargetDate)),
			slog.String("bucket", sig.Bucket),
		)
		return m.decline(ReasonBoundary), nil
	}
	price := *sig.MarketPrice
	shares, cost := strategy.SizePosition(m.cfg.MaxBet, price)
	if shares < 1 {
		return m.decline(ReasonTooSmall), nil
	}

	dateKey := domain.DateKey(sig.TargetDate)
	unlock, err := m.deps.Locks.Acquire(ctx, fmt.Sprintf("trade:%s:%s", city.Slug, dateKey), m.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return m.decline(ReasonLockHeld), nil
		}
		return EntryResult{}, fmt.Errorf("lifecycle: lock %s %s: %w", city.Slug, dateKey, err)
	}
	defer unlock()

	existing, err := m.deps.Trades.GetByCityDate(ctx, city.Slug, sig.TargetDate)
	switch {
	case err == nil:
		res := m.decline(ReasonExists)
		res.Trade = existing
		return res, nil
	case !errors.Is(err, domain.ErrNotFound):
		return EntryResult{}, fmt.Errorf("lifecycle: lookup %s %s: %w", city.Slug, dateKey, err)
	}

	var edge float64
	if sig.Edge != nil {
		edge = *sig.Edge
	}
	trade := domain.Trade{
		ID:            uuid.NewString(),
		City:          city.Slug,
		TargetDate:    domain.Day(sig.TargetDate),
		Bucket:        sig.Bucket,
		Price:         price,
		Shares:        shares,
		Cost:          cost,
		OrderID:       "paper-" + uuid.NewString(),
		SignalVerdict: sig.Verdict,
		Edge:          edge,
		Agreement:     sig.Agreement,
		Status:        domain.TradeOpen,
		CreatedAt:     m.deps.Clock.Now().UTC(),
	}
	if err := m.deps.Trades.Create(ctx, trade); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			m.invariant(ctx, "duplicate_entry", fmt.Errorf("trade for %s %s already exists: %w", city.Slug, dateKey, err))
			return m.decline(ReasonDuplicate), nil
		}
		return EntryResult{}, fmt.Errorf("lifecycle: create trade %s %s: %w", city.Slug, dateKey, err)
	}

	m.deps.Metrics.TradesOpened.WithLabelValues(city.Slug).Inc()
	m.logger.InfoContext(ctx, "paper trade opened",
		slog.String("city", city.Slug),
		slog.String("date", dateKey),
		slog.String("bucket", trade.Bucket),
		slog.Float64("price", trade.Price),
		slog.Int("shares", trade.Shares),
		slog.Float64("cost", trade.Cost),
		slog.Float64("edge", trade.Edge),
	)
	m.deps.Events.Publish(ctx, domain.ChannelTrades, EventTradeOpened, trade.CreatedAt, trade)
	m.notify(ctx, m.deps.Notifier.TradeOpened(ctx, trade))
	return EntryResult{Trade: trade, Entered: true}, nil
}

func (m *LifecycleManager) decline(reason string) EntryResult {
	m.deps.Metrics.EntriesDeclined.WithLabelValues(reason).Inc()
	return EntryResult{Reason: reason}
}

// Monitor re-evaluates every open trade whose target date has not passed
// and appends an alert when its drift state changes.
func (m *LifecycleManager) Monitor(ctx context.Context) (MonitorSummary, error) {
	today := domain.Day(m.deps.Clock.Now())
	trades, err := m.deps.Trades.ListOpenFrom(ctx, today)
	if err != nil {
		return MonitorSummary{}, fmt.Errorf("lifecycle: list open trades: %w", err)
	}

	var sum MonitorSummary
	for _, t := range trades {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		changed, err := m.monitorOne(ctx, t)
		if err != nil {
			sum.Failed++
			m.logger.WarnContext(ctx, "monitor failed",
				slog.String("trade_id", t.ID),
				slog.String("city", t.City),
				slog.String("date", domain.DateKey(t.TargetDate)),
				slog.String("error", err.Error()),
			)
			continue
		}
		sum.Checked++
		if changed {
			sum.Changed++
		}
	}
	return sum, nil
}

func (m *LifecycleManager) monitorOne(ctx context.Context, t domain.Trade) (bool, error) {
	city, ok := m.cities[t.City]
	if !ok {
		return false, fmt.Errorf("unknown city %q", t.City)
	}
	values, err := m.deps.Forecasts.Forecasts(ctx, city, t.TargetDate)
	if err != nil {
		m.deps.Metrics.ProviderErrors.WithLabelValues("forecast").Inc()
		return false, fmt.Errorf("fetch forecasts: %w", err)
	}
	snap, err := strategy.Aggregate(city.Unit, values, m.cfg.AnchorModel)
	if err != nil {
		return false, err
	}
	a, err := strategy.EvaluateDrift(t, snap, city.Unit)
	if err != nil {
		return false, err
	}

	var prev domain.DriftState
	last, err := m.deps.Alerts.Latest(ctx, t.ID)
	switch {
	case err == nil:
		prev = last.State
	case !errors.Is(err, domain.ErrNotFound):
		return false, fmt.Errorf("latest alert: %w", err)
	}

	m.logger.DebugContext(ctx, "trade checked",
		slog.String("trade_id", t.ID),
		slog.String("state", string(a.State)),
		slog.String("detail", a.Detail),
		slog.String("models", a.ModelDetail),
	)
	if a.State == prev {
		return false, nil
	}

	alert := domain.TradeAlert{
		ID:               uuid.NewString(),
		TradeID:          t.ID,
		City:             t.City,
		TargetDate:       t.TargetDate,
		TradeBucket:      t.Bucket,
		CurrentConsensus: a.CurrentConsensus,
		ModelsOnBucket:   a.ModelsOnBucket,
		State:            a.State,
		Detail:           a.Detail,
		ModelDetail:      a.ModelDetail,
		CreatedAt:        m.deps.Clock.Now().UTC(),
	}
	if err := m.deps.Alerts.Append(ctx, alert); err != nil {
		return false, fmt.Errorf("append alert: %w", err)
	}
	m.deps.Metrics.Alerts.WithLabelValues(string(a.State)).Inc()
	m.deps.Events.Publish(ctx, domain.ChannelAlerts, EventTradeAlert, alert.CreatedAt, alert)

	if a.State == domain.DriftBroken || (a.State == domain.DriftDrifting && prev == domain.DriftHolding) {
		m.logger.WarnContext(ctx, "trade alert",
			slog.String("trade_id", t.ID),
			slog.String("city", t.City),
			slog.String("date", domain.DateKey(t.TargetDate)),
			slog.String("state", string(a.State)),
			slog.String("previous", string(prev)),
			slog.String("detail", a.Detail),
		)
		m.notify(ctx, m.deps.Notifier.TradeAlert(ctx, alert))
	}
	return true, nil
}

// Resolve settles every open trade whose target date is before today. A
// trade whose observation is not yet published is left open.
func (m *LifecycleManager) Resolve(ctx context.Context) (ResolveSummary, error) {
	now := m.deps.Clock.Now().UTC()
	trades, err := m.deps.Trades.ListOpenBefore(ctx, domain.Day(now))
	if err != nil {
		return ResolveSummary{}, fmt.Errorf("lifecycle: list past trades: %w", err)
	}

	var sum ResolveSummary
	for _, t := range trades {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		resolved, err := m.resolveOne(ctx, t, now)
		switch {
		case err != nil:
			sum.Failed++
			m.logger.WarnContext(ctx, "resolve failed",
				slog.String("trade_id", t.ID),
				slog.String("city", t.City),
				slog.String("date", domain.DateKey(t.TargetDate)),
				slog.String("error", err.Error()),
			)
		case resolved:
			sum.Resolved++
		default:
			sum.Deferred++
		}
	}
	return sum, nil
}

func (m *LifecycleManager) resolveOne(ctx context.Context, t domain.Trade, now time.Time) (bool, error) {
	city, ok := m.cities[t.City]
	if !ok {
		return false, fmt.Errorf("unknown city %q", t.City)
	}
	actual, err := m.deps.Actuals.Actual(ctx, city, t.TargetDate)
	if err != nil {
		m.deps.Metrics.ProviderErrors.WithLabelValues("archive").Inc()
		return false, fmt.Errorf("fetch actual: %w", err)
	}
	if actual == nil {
		m.deps.Metrics.ResolveDeferred.Inc()
		m.logger.DebugContext(ctx, "observation not published yet",
			slog.String("city", t.City),
			slog.String("date", domain.DateKey(t.TargetDate)),
		)
		return false, nil
	}

	res, changed, err := strategy.ResolveTrade(t, *actual, city.Unit)
	if err != nil || !changed {
		return false, err
	}
	if err := m.deps.Trades.MarkResolved(ctx, t.ID, res, now); err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) {
			m.invariant(ctx, "double_resolve", fmt.Errorf("trade %s: %w", t.ID, err))
			return false, nil
		}
		return false, fmt.Errorf("mark resolved: %w", err)
	}

	t.Status = res.Status
	t.PnL = &res.PnL
	t.ActualValue = &res.ActualValue
	t.ActualBucket = res.ActualBucket
	t.ResolvedAt = &now

	m.deps.Metrics.Resolutions.WithLabelValues(string(res.Status)).Inc()
	m.logger.InfoContext(ctx, "trade resolved",
		slog.String("trade_id", t.ID),
		slog.String("city", t.City),
		slog.String("date", domain.DateKey(t.TargetDate)),
		slog.Float64("actual", res.ActualValue),
		slog.String("actual_bucket", res.ActualBucket),
		slog.String("bucket", t.Bucket),
		slog.String("status", string(res.Status)),
		slog.Float64("pnl", res.PnL),
	)
	m.deps.Events.Publish(ctx, domain.ChannelResolved, EventTradeResolve, now, t)
	m.notify(ctx, m.deps.Notifier.TradeResolved(ctx, t))
	return true, nil
}

// invariant records a storage-level guard firing: two writers raced past
// the entry lock or a trade was settled twice.
func (m *LifecycleManager) invariant(ctx context.Context, kind string, err error) {
	m.deps.Metrics.InvariantErrors.WithLabelValues(kind).Inc()
	m.logger.ErrorContext(ctx, "invariant violation",
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
	m.notify(ctx, m.deps.Notifier.Error(ctx, kind, err))
}

func (m *LifecycleManager) notify(ctx context.Context, err error) {
	if err != nil {
		m.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}
