package domain

import (
	"context"
	"time"
)

// MarketBucket is one outcome of a city/date temperature event.
type MarketBucket struct {
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	Volume  float64 `json:"volume"`
	TokenID string  `json:"token_id"`
}

// MarketEvent groups all buckets for one city/date.
type MarketEvent struct {
	Slug    string         `json:"slug"`
	City    string         `json:"city"`
	Date    time.Time      `json:"date"`
	Buckets []MarketBucket `json:"buckets"`
}

// Find returns the bucket with the given title.
func (e MarketEvent) Find(title string) (MarketBucket, bool) {
	for _, b := range e.Buckets {
		if b.Title == title {
			return b, true
		}
	}
	return MarketBucket{}, false
}

// PriceLevel is a single price level in an order book.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a point-in-time view of one outcome token's book.
type OrderBook struct {
	TokenID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// DepthSnapshot records the liquidity available at prices that still carry
// edge for the consensus bucket.
type DepthSnapshot struct {
	City          string       `json:"city"`
	TargetDate    time.Time    `json:"target_date"`
	Bucket        string       `json:"bucket"`
	ModelConf     float64      `json:"model_conf"`
	MaxEntry      float64      `json:"max_entry"`
	BestAsk       *float64     `json:"best_ask,omitempty"`
	BestAskSize   *float64     `json:"best_ask_size,omitempty"`
	AvailableSize float64      `json:"available_size"`
	AvailableCost float64      `json:"available_cost"`
	Levels        []PriceLevel `json:"levels"`
	NumLevels     int          `json:"num_levels"`
	CreatedAt     time.Time    `json:"created_at"`
}

// MarketProvider looks up the temperature event for a city/date. It returns
// ErrNotFound when no event is listed.
type MarketProvider interface {
	Market(ctx context.Context, city City, date time.Time) (MarketEvent, error)
}

// DepthProvider fetches the order book for an outcome token.
type DepthProvider interface {
	Book(ctx context.Context, tokenID string) (OrderBook, error)
}
