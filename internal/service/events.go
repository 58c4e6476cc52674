// Package service runs the engine's stateful workflows: the collection
// cycle, the trade lifecycle, order depth capture, accuracy aggregation and
// the model drop watch.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// Event is the envelope published on the bus and appended to the lifecycle
// stream.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Event types.
const (
	EventSignal       = "signal"
	EventTradeOpened  = "trade_opened"
	EventTradeAlert   = "trade_alert"
	EventTradeResolve = "trade_resolved"
	EventModelDrop    = "model_drop"
)

// Events publishes lifecycle events. A nil bus disables publishing.
type Events struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewEvents creates an event publisher on bus.
func NewEvents(bus domain.SignalBus, logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{bus: bus, logger: logger}
}

// Publish sends the event on channel and appends it to the lifecycle
// stream. Failures are logged; events never fail the caller.
func (e *Events) Publish(ctx context.Context, channel, typ string, at time.Time, data any) {
	if e == nil || e.bus == nil {
		return
	}
	payload, err := json.Marshal(Event{Type: typ, At: at.UTC(), Data: data})
	if err != nil {
		e.logger.WarnContext(ctx, "events: marshal failed",
			slog.String("type", typ),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.WarnContext(ctx, "events: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := e.bus.StreamAppend(ctx, domain.StreamLifecycle, payload); err != nil {
		e.logger.WarnContext(ctx, "events: stream append failed",
			slog.String("type", typ),
			slog.String("error", err.Error()),
		)
	}
}
