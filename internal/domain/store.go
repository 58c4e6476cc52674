package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	City   string
	Since  *time.Time
	Until  *time.Time
}

// ForecastStore persists model forecasts.
type ForecastStore interface {
	InsertBatch(ctx context.Context, forecasts []ModelForecast) error
	Latest(ctx context.Context, city, model string, date time.Time) (ModelForecast, error)
	ListForDates(ctx context.Context, city string, dates []time.Time) ([]ModelForecast, error)
}

// SignalStore persists classified signals.
type SignalStore interface {
	Insert(ctx context.Context, sig Signal) error
	List(ctx context.Context, opts ListOpts) ([]Signal, error)
}

// TradeStore persists paper trades. Create returns ErrAlreadyExists when a
// trade already covers the same city and target date.
type TradeStore interface {
	Create(ctx context.Context, trade Trade) error
	GetByID(ctx context.Context, id string) (Trade, error)
	GetByCityDate(ctx context.Context, city string, date time.Time) (Trade, error)
	ListOpenFrom(ctx context.Context, from time.Time) ([]Trade, error)
	ListOpenBefore(ctx context.Context, before time.Time) ([]Trade, error)
	ListResolved(ctx context.Context, city string) ([]Trade, error)
	MarkResolved(ctx context.Context, id string, res Resolution, at time.Time) error
	List(ctx context.Context, opts ListOpts) ([]Trade, error)
}

// AlertStore persists the per-trade sub-state log.
type AlertStore interface {
	Append(ctx context.Context, alert TradeAlert) error
	Latest(ctx context.Context, tradeID string) (TradeAlert, error)
	ListByTrade(ctx context.Context, tradeID string) ([]TradeAlert, error)
}

// MarketPriceStore persists bucket price snapshots.
type MarketPriceStore interface {
	InsertBatch(ctx context.Context, city string, date time.Time, buckets []MarketBucket) error
}

// DepthStore persists order depth snapshots.
type DepthStore interface {
	Insert(ctx context.Context, snap DepthSnapshot) error
}

// AccuracyStore persists forecast accuracy aggregates.
type AccuracyStore interface {
	Upsert(ctx context.Context, rows []AccuracyRow) error
	List(ctx context.Context, city string) ([]AccuracyRow, error)
}

// BacktestStore persists backtest replays.
type BacktestStore interface {
	InsertResults(ctx context.Context, results []BacktestResult) error
	InsertSummary(ctx context.Context, summary BacktestSummary) error
}
