package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// MarketPriceStore implements domain.MarketPriceStore using PostgreSQL.
type MarketPriceStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketPriceStore = (*MarketPriceStore)(nil)

// NewMarketPriceStore creates a new MarketPriceStore backed by the given connection pool.
func NewMarketPriceStore(pool *pgxpool.Pool) *MarketPriceStore {
	return &MarketPriceStore{pool: pool}
}

// InsertBatch records the price of every bucket of one event.
func (s *MarketPriceStore) InsertBatch(ctx context.Context, city string, date time.Time, buckets []domain.MarketBucket) error {
	if len(buckets) == 0 {
		return nil
	}

	const query = `
		INSERT INTO market_prices (city, target_date, bucket, price, volume, token_id)
		VALUES ($1, $2, $3, $4, $5, $6)`

	batch := &pgx.Batch{}
	day := domain.Day(date)
	for _, b := range buckets {
		batch.Queue(query, city, day, b.Title, b.Price, b.Volume, b.TokenID)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range buckets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert market price batch item %d: %w", i, err)
		}
	}
	return nil
}

// DepthStore implements domain.DepthStore using PostgreSQL.
type DepthStore struct {
	pool *pgxpool.Pool
}

var _ domain.DepthStore = (*DepthStore)(nil)

// NewDepthStore creates a new DepthStore backed by the given connection pool.
func NewDepthStore(pool *pgxpool.Pool) *DepthStore {
	return &DepthStore{pool: pool}
}

// Insert stores a depth snapshot; the top levels go into a JSONB column.
func (s *DepthStore) Insert(ctx context.Context, d domain.DepthSnapshot) error {
	levels := d.Levels
	if levels == nil {
		levels = []domain.PriceLevel{}
	}
	levelsJSON, err := json.Marshal(levels)
	if err != nil {
		return fmt.Errorf("postgres: marshal depth levels: %w", err)
	}

	const query = `
		INSERT INTO order_depth (
			city, target_date, bucket, model_conf, max_entry, best_ask, best_ask_size,
			available_size, available_cost, levels, num_levels, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.pool.Exec(ctx, query,
		d.City, domain.Day(d.TargetDate), d.Bucket, d.ModelConf, d.MaxEntry, d.BestAsk, d.BestAskSize,
		d.AvailableSize, d.AvailableCost, levelsJSON, d.NumLevels, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert depth %s %s: %w", d.City, d.Bucket, err)
	}
	return nil
}
