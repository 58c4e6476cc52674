package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// AccuracyStore implements domain.AccuracyStore using PostgreSQL.
type AccuracyStore struct {
	pool *pgxpool.Pool
}

var _ domain.AccuracyStore = (*AccuracyStore)(nil)

// NewAccuracyStore creates a new AccuracyStore backed by the given connection pool.
func NewAccuracyStore(pool *pgxpool.Pool) *AccuracyStore {
	return &AccuracyStore{pool: pool}
}

// Upsert writes accuracy rows keyed by (city, model, lead_days).
func (s *AccuracyStore) Upsert(ctx context.Context, rows []domain.AccuracyRow) error {
	if len(rows) == 0 {
		return nil
	}

	const query = `
		INSERT INTO forecast_accuracy (
			city, model, lead_days, bucket_match_rate, mae, sample_size, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (city, model, lead_days) DO UPDATE SET
			bucket_match_rate = EXCLUDED.bucket_match_rate,
			mae               = EXCLUDED.mae,
			sample_size       = EXCLUDED.sample_size,
			computed_at       = EXCLUDED.computed_at`

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query, r.City, r.Model, r.LeadDays, r.MatchRate, r.MAE, r.SampleSize, r.ComputedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert accuracy batch item %d: %w", i, err)
		}
	}
	return nil
}

// List returns accuracy rows for city, or for every city when city is empty.
func (s *AccuracyStore) List(ctx context.Context, city string) ([]domain.AccuracyRow, error) {
	query := `SELECT city, model, lead_days, bucket_match_rate, mae, sample_size, computed_at
		FROM forecast_accuracy`
	var args []any
	if city != "" {
		query += ` WHERE city = $1`
		args = append(args, city)
	}
	query += ` ORDER BY city, lead_days, model`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accuracy: %w", err)
	}
	defer rows.Close()

	var out []domain.AccuracyRow
	for rows.Next() {
		var r domain.AccuracyRow
		if err := rows.Scan(&r.City, &r.Model, &r.LeadDays, &r.MatchRate, &r.MAE, &r.SampleSize, &r.ComputedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan accuracy: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list accuracy rows: %w", err)
	}
	return out, nil
}
