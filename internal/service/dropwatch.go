package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/observability"
)

// dropThreshold is the smallest change in a model's daily high that counts
// as a new run having landed.
const dropThreshold = 0.05

// DropWindow is a UTC time range in which the listed models usually publish
// a new run. MinFrom and MinTo are inclusive.
type DropWindow struct {
	Hour    int
	MinFrom int
	MinTo   int
	Models  []string
	Run     string
}

// DropWindows lists the release windows. ECMWF publishes twice a day, GFS
// and ICON four times, each a few hours after init.
var DropWindows = []DropWindow{
	{Hour: 4, MinFrom: 0, MinTo: 30, Models: []string{"gfs", "icon"}, Run: "00z"},
	{Hour: 5, MinFrom: 20, MinTo: 59, Models: []string{"ecmwf", "gfs", "icon"}, Run: "00z"},
	{Hour: 6, MinFrom: 0, MinTo: 5, Models: []string{"ecmwf"}, Run: "00z"},
	{Hour: 9, MinFrom: 45, MinTo: 59, Models: []string{"gfs", "icon"}, Run: "06z"},
	{Hour: 10, MinFrom: 0, MinTo: 30, Models: []string{"gfs", "icon"}, Run: "06z"},
	{Hour: 15, MinFrom: 45, MinTo: 59, Models: []string{"gfs", "icon"}, Run: "12z"},
	{Hour: 16, MinFrom: 0, MinTo: 30, Models: []string{"gfs", "icon"}, Run: "12z"},
	{Hour: 17, MinFrom: 20, MinTo: 59, Models: []string{"ecmwf", "gfs", "icon"}, Run: "12z"},
	{Hour: 18, MinFrom: 0, MinTo: 5, Models: []string{"ecmwf"}, Run: "12z"},
	{Hour: 21, MinFrom: 45, MinTo: 59, Models: []string{"gfs", "icon"}, Run: "18z"},
	{Hour: 22, MinFrom: 0, MinTo: 30, Models: []string{"gfs", "icon"}, Run: "18z"},
}

// ActiveDropWindow returns the window containing t, if any.
func ActiveDropWindow(t time.Time) (DropWindow, bool) {
	t = t.UTC()
	h, m := t.Hour(), t.Minute()
	for _, w := range DropWindows {
		if w.Hour == h && m >= w.MinFrom && m <= w.MinTo {
			return w, true
		}
	}
	return DropWindow{}, false
}

// ModelDrop is one model whose forecast changed against the last stored
// value. Previous is nil on a first reading, which is not a drop.
type ModelDrop struct {
	Model    string    `json:"model"`
	Run      string    `json:"run"`
	Date     time.Time `json:"date"`
	Previous *float64  `json:"previous,omitempty"`
	Current  float64   `json:"current"`
	Detected bool      `json:"detected"`
}

// DropWatch compares fresh forecasts for one city's next day against the
// last stored values to tell when a run has been published.
type DropWatch struct {
	city      domain.City
	forecasts domain.ForecastProvider
	store     domain.ForecastStore
	events    *Events
	notifier  Notifier
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewDropWatch creates a drop watch for city. notifier may be nil.
func NewDropWatch(city domain.City, forecasts domain.ForecastProvider, store domain.ForecastStore,
	events *Events, notifier Notifier, metrics *observability.Metrics, logger *slog.Logger) *DropWatch {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DropWatch{
		city:      city,
		forecasts: forecasts,
		store:     store,
		events:    events,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "drop_watch")),
	}
}

// Check reads the window's models for tomorrow and reports each one. It
// must run before the cycle stores fresh forecasts, otherwise the stored
// value already equals the new one.
func (d *DropWatch) Check(ctx context.Context, w DropWindow, now time.Time) ([]ModelDrop, error) {
	date := domain.Day(now).AddDate(0, 0, 1)
	values, err := d.forecasts.Forecasts(ctx, d.city, date)
	if err != nil {
		d.metrics.ProviderErrors.WithLabelValues("forecast").Inc()
		return nil, fmt.Errorf("drop watch: fetch %s: %w", d.city.Slug, err)
	}

	d.logger.InfoContext(ctx, "drop window",
		slog.String("run", w.Run),
		slog.String("models", strings.Join(w.Models, ",")),
	)

	var out []ModelDrop
	for _, model := range w.Models {
		v, ok := values[model]
		if !ok {
			continue
		}
		drop := ModelDrop{Model: model, Run: w.Run, Date: date, Current: v}

		last, err := d.store.Latest(ctx, d.city.Slug, model, date)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			d.logger.InfoContext(ctx, "first reading",
				slog.String("model", model),
				slog.Float64("value", v),
			)
		case err != nil:
			return out, fmt.Errorf("drop watch: latest %s: %w", model, err)
		default:
			prev := last.Value
			drop.Previous = &prev
			drop.Detected = math.Abs(v-prev) > dropThreshold
		}
		out = append(out, drop)

		if !drop.Detected {
			if drop.Previous != nil {
				d.logger.InfoContext(ctx, "no change",
					slog.String("model", model),
					slog.Float64("value", v),
				)
			}
			continue
		}
		d.metrics.ModelDrops.WithLabelValues(model).Inc()
		d.logger.InfoContext(ctx, "model drop detected",
			slog.String("model", model),
			slog.String("run", w.Run),
			slog.String("city", d.city.Slug),
			slog.String("date", domain.DateKey(date)),
			slog.Float64("previous", *drop.Previous),
			slog.Float64("current", v),
		)
		d.events.Publish(ctx, domain.ChannelSignals, EventModelDrop, now, drop)
		if err := d.notifier.ModelDrop(ctx, d.city.Slug, model, w.Run, *drop.Previous, v); err != nil {
			d.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
		}
	}
	return out, nil
}
