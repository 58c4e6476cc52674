package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// maxDepthLevels is how many edge-bearing ask levels a snapshot keeps.
const maxDepthLevels = 10

// BuildDepth summarises the asks priced at or below min(confidence,
// maxEntry), the prices at which buying still carries edge.
func BuildDepth(book domain.OrderBook, confidence, maxEntry float64) domain.DepthSnapshot {
	asks := make([]domain.PriceLevel, len(book.Asks))
	copy(asks, book.Asks)
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	limit := min(confidence, maxEntry)
	snap := domain.DepthSnapshot{
		ModelConf: confidence,
		MaxEntry:  limit,
		Levels:    []domain.PriceLevel{},
	}
	if len(asks) > 0 {
		best, size := asks[0].Price, asks[0].Size
		snap.BestAsk = &best
		snap.BestAskSize = &size
	}
	for _, a := range asks {
		if a.Price > limit {
			break
		}
		snap.NumLevels++
		snap.AvailableSize += a.Size
		snap.AvailableCost += a.Size * a.Price
		if len(snap.Levels) < maxDepthLevels {
			snap.Levels = append(snap.Levels, a)
		}
	}
	return snap
}

// DepthRecorder fetches and stores order depth for a consensus bucket.
type DepthRecorder struct {
	books    domain.DepthProvider
	store    domain.DepthStore
	maxEntry float64
	logger   *slog.Logger
}

// NewDepthRecorder creates a recorder capping the edge price at maxEntry.
func NewDepthRecorder(books domain.DepthProvider, store domain.DepthStore, maxEntry float64, logger *slog.Logger) *DepthRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepthRecorder{
		books:    books,
		store:    store,
		maxEntry: maxEntry,
		logger:   logger.With(slog.String("component", "depth")),
	}
}

// Record snapshots the book of bucket's YES token.
func (d *DepthRecorder) Record(ctx context.Context, city string, date time.Time, bucket domain.MarketBucket, confidence float64, now time.Time) (domain.DepthSnapshot, error) {
	if bucket.TokenID == "" {
		return domain.DepthSnapshot{}, fmt.Errorf("depth: %s %s has no token: %w", city, bucket.Title, domain.ErrInvalidInput)
	}
	book, err := d.books.Book(ctx, bucket.TokenID)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("depth: book %s %s: %w", city, bucket.Title, err)
	}

	snap := BuildDepth(book, confidence, d.maxEntry)
	snap.City = city
	snap.TargetDate = domain.Day(date)
	snap.Bucket = bucket.Title
	snap.CreatedAt = now.UTC()
	if err := d.store.Insert(ctx, snap); err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("depth: store %s %s: %w", city, bucket.Title, err)
	}

	attrs := []any{
		slog.String("city", city),
		slog.String("date", domain.DateKey(date)),
		slog.String("bucket", bucket.Title),
		slog.Int("levels", snap.NumLevels),
		slog.Float64("max_price", snap.MaxEntry),
	}
	if snap.AvailableSize > 0 {
		d.logger.InfoContext(ctx, "depth recorded", append(attrs,
			slog.Float64("shares", snap.AvailableSize),
			slog.Float64("cost", snap.AvailableCost))...)
	} else {
		d.logger.InfoContext(ctx, "no asks below edge price", attrs...)
	}
	return snap, nil
}
