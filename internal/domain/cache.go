package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// MarketCache keeps recently fetched market events.
type MarketCache interface {
	Set(ctx context.Context, event MarketEvent, ttl time.Duration) error
	Get(ctx context.Context, slug string) (MarketEvent, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Bus channels carrying lifecycle events.
const (
	ChannelSignals  = "ch:signal"
	ChannelTrades   = "ch:trade"
	ChannelAlerts   = "ch:alert"
	ChannelResolved = "ch:resolved"
	StreamLifecycle = "stream:lifecycle"
)
