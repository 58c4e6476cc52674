package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// MarketCache implements domain.MarketCache, storing each temperature event
// as JSON under weatherbot:market:<slug>.
type MarketCache struct {
	rdb *redis.Client
}

var _ domain.MarketCache = (*MarketCache)(nil)

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(slug string) string { return keyPrefix + "market:" + slug }

// Set stores the event for ttl.
func (mc *MarketCache) Set(ctx context.Context, ev domain.MarketEvent, ttl time.Duration) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", ev.Slug, err)
	}
	if err := mc.rdb.Set(ctx, marketKey(ev.Slug), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", ev.Slug, err)
	}
	return nil
}

// Get returns the cached event or domain.ErrNotFound.
func (mc *MarketCache) Get(ctx context.Context, slug string) (domain.MarketEvent, error) {
	data, err := mc.rdb.Get(ctx, marketKey(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MarketEvent{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("redis: get market %s: %w", slug, err)
	}

	var ev domain.MarketEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("redis: unmarshal market %s: %w", slug, err)
	}
	return ev, nil
}
