package service

import (
	"context"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// Notifier announces lifecycle events to operators.
type Notifier interface {
	TradeOpened(ctx context.Context, t domain.Trade) error
	TradeAlert(ctx context.Context, a domain.TradeAlert) error
	TradeResolved(ctx context.Context, t domain.Trade) error
	ModelDrop(ctx context.Context, city, model, run string, from, to float64) error
	Error(ctx context.Context, where string, err error) error
}

type nopNotifier struct{}

func (nopNotifier) TradeOpened(context.Context, domain.Trade) error { return nil }
func (nopNotifier) TradeAlert(context.Context, domain.TradeAlert) error { return nil }
func (nopNotifier) TradeResolved(context.Context, domain.Trade) error { return nil }
func (nopNotifier) Error(context.Context, string, error) error { return nil }
func (nopNotifier) ModelDrop(context.Context, string, string, string, float64, float64) error {
	return nil
}
