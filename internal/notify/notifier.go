// Package notify delivers trade lifecycle messages to Telegram and Discord,
// filtered by event type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// Event types accepted in the notify.events filter.
const (
	EventTradeOpened   = "trade_opened"
	EventTradeDrifting = "trade_drifting"
	EventTradeBroken   = "trade_broken"
	EventTradeResolved = "trade_resolved"
	EventModelDrop     = "model_drop"
	EventError         = "error"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier formats lifecycle events and dispatches them to every sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders. An empty events list
// allows every event type.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// TradeOpened announces a new paper position.
func (n *Notifier) TradeOpened(ctx context.Context, t domain.Trade) error {
	title := fmt.Sprintf("Paper trade: %s %s", t.City, domain.DateKey(t.TargetDate))
	msg := fmt.Sprintf("%s YES @ %.1f¢ | %d shares | $%.2f\nagreement %d, edge %+.1f%%",
		t.Bucket, t.Price*100, t.Shares, t.Cost, t.Agreement, t.Edge*100)
	return n.Notify(ctx, EventTradeOpened, title, msg)
}

// TradeAlert announces a drift state change. Holding is never sent.
func (n *Notifier) TradeAlert(ctx context.Context, a domain.TradeAlert) error {
	var event, title string
	switch a.State {
	case domain.DriftBroken:
		event = EventTradeBroken
		title = fmt.Sprintf("BROKEN: %s %s", a.City, domain.DateKey(a.TargetDate))
	case domain.DriftDrifting:
		event = EventTradeDrifting
		title = fmt.Sprintf("Drifting: %s %s", a.City, domain.DateKey(a.TargetDate))
	default:
		return nil
	}
	msg := fmt.Sprintf("trade bucket %s, consensus %s\n%s\n%s",
		a.TradeBucket, a.CurrentConsensus, a.Detail, a.ModelDetail)
	return n.Notify(ctx, event, title, msg)
}

// TradeResolved announces a settled position.
func (n *Notifier) TradeResolved(ctx context.Context, t domain.Trade) error {
	outcome := strings.ToUpper(string(t.Status))
	title := fmt.Sprintf("%s: %s %s", outcome, t.City, domain.DateKey(t.TargetDate))

	var pnl, actual float64
	if t.PnL != nil {
		pnl = *t.PnL
	}
	if t.ActualValue != nil {
		actual = *t.ActualValue
	}
	msg := fmt.Sprintf("actual %.1f -> %s | trade was %s | P&L %+.2f",
		actual, t.ActualBucket, t.Bucket, pnl)
	return n.Notify(ctx, EventTradeResolved, title, msg)
}

// ModelDrop announces a new model run detected inside a release window.
func (n *Notifier) ModelDrop(ctx context.Context, city, model, run string, from, to float64) error {
	title := fmt.Sprintf("Model drop: %s %s", strings.ToUpper(model), run)
	msg := fmt.Sprintf("%s D+1 high %.1f -> %.1f (%+.1f)", city, from, to, to-from)
	return n.Notify(ctx, EventModelDrop, title, msg)
}

// Error announces an invariant violation or a failed cycle.
func (n *Notifier) Error(ctx context.Context, where string, err error) error {
	return n.Notify(ctx, EventError, "Error: "+where, err.Error())
}

// Notify sends to every sender if the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender; one failing sender does not stop the
// rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
