package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

func TestBuildDepth(t *testing.T) {
	book := domain.OrderBook{Asks: []domain.PriceLevel{
		{Price: 0.42, Size: 10},
		{Price: 0.30, Size: 100},
		{Price: 0.55, Size: 500},
		{Price: 0.38, Size: 40},
	}}

	snap := BuildDepth(book, 0.45, 0.60)
	assert.Equal(t, 0.45, snap.MaxEntry, "confidence below the entry cap binds")
	require.NotNil(t, snap.BestAsk)
	assert.Equal(t, 0.30, *snap.BestAsk)
	assert.Equal(t, 100.0, *snap.BestAskSize)
	assert.Equal(t, 3, snap.NumLevels)
	assert.Equal(t, 150.0, snap.AvailableSize)
	assert.InDelta(t, 30+15.2+4.2, snap.AvailableCost, 1e-9)
	assert.Equal(t, []domain.PriceLevel{{Price: 0.30, Size: 100}, {Price: 0.38, Size: 40}, {Price: 0.42, Size: 10}}, snap.Levels)
	assert.Equal(t, 0.42, book.Asks[0].Price, "input book is not reordered")

	capped := BuildDepth(book, 0.9, 0.35)
	assert.Equal(t, 0.35, capped.MaxEntry)
	assert.Equal(t, 1, capped.NumLevels)
}

func TestBuildDepthKeepsTopLevels(t *testing.T) {
	var asks []domain.PriceLevel
	for i := range 15 {
		asks = append(asks, domain.PriceLevel{Price: 0.10 + float64(i)*0.01, Size: 1})
	}
	snap := BuildDepth(domain.OrderBook{Asks: asks}, 0.5, 0.5)
	assert.Equal(t, 15, snap.NumLevels)
	assert.Len(t, snap.Levels, maxDepthLevels)
	assert.Equal(t, 15.0, snap.AvailableSize)
}

func TestBuildDepthEmptyBook(t *testing.T) {
	snap := BuildDepth(domain.OrderBook{}, 0.5, 0.5)
	assert.Nil(t, snap.BestAsk)
	assert.Zero(t, snap.NumLevels)
	assert.NotNil(t, snap.Levels)
	assert.Empty(t, snap.Levels)
}

func TestDepthRecorder(t *testing.T) {
	books := &fakeBooks{books: map[string]domain.OrderBook{
		"tok": {Asks: []domain.PriceLevel{{Price: 0.2, Size: 25}}},
	}}
	store := &memDepth{}
	rec := NewDepthRecorder(books, store, 0.5, nil)
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	ctx := context.Background()

	snap, err := rec.Record(ctx, "london", now, domain.MarketBucket{Title: "16°C", TokenID: "tok"}, 0.8, now)
	require.NoError(t, err)
	assert.Equal(t, "london", snap.City)
	assert.Equal(t, day(2026, 10, 14), snap.TargetDate)
	assert.Equal(t, "16°C", snap.Bucket)
	assert.Equal(t, now, snap.CreatedAt)
	require.Len(t, store.snaps, 1)

	_, err = rec.Record(ctx, "london", now, domain.MarketBucket{Title: "16°C"}, 0.8, now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = rec.Record(ctx, "london", now, domain.MarketBucket{Title: "17°C", TokenID: "missing"}, 0.8, now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Len(t, store.snaps, 1)
}
