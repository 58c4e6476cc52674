package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// BacktestStore implements domain.BacktestStore using PostgreSQL.
type BacktestStore struct {
	pool *pgxpool.Pool
}

var _ domain.BacktestStore = (*BacktestStore)(nil)

// NewBacktestStore creates a new BacktestStore backed by the given connection pool.
func NewBacktestStore(pool *pgxpool.Pool) *BacktestStore {
	return &BacktestStore{pool: pool}
}

// resultChunk bounds the size of a single pgx batch.
const resultChunk = 500

// InsertResults stores replayed snapshots; per-model outcomes go into JSONB.
func (s *BacktestStore) InsertResults(ctx context.Context, results []domain.BacktestResult) error {
	const query = `
		INSERT INTO backtest_results (
			run_id, city, target_date, lead_days, actual, actual_bucket, models,
			consensus_bucket, consensus_count, consensus_correct, anchor_agrees, boundary_safe
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	for start := 0; start < len(results); start += resultChunk {
		end := min(start+resultChunk, len(results))

		batch := &pgx.Batch{}
		for _, r := range results[start:end] {
			modelsJSON, err := json.Marshal(r.Models)
			if err != nil {
				return fmt.Errorf("postgres: marshal backtest models: %w", err)
			}
			batch.Queue(query, r.RunID, r.City, domain.Day(r.TargetDate), r.LeadDays, r.Actual, r.ActualBucket,
				modelsJSON, r.ConsensusBucket, r.ConsensusCount, r.ConsensusCorrect, r.AnchorAgrees, r.BoundarySafe)
		}

		if err := s.sendBatch(ctx, batch, start, end-start); err != nil {
			return err
		}
	}
	return nil
}

func (s *BacktestStore) sendBatch(ctx context.Context, batch *pgx.Batch, offset, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert backtest result %d: %w", offset+i, err)
		}
	}
	return nil
}

// InsertSummary stores the aggregate of one run for one city.
func (s *BacktestStore) InsertSummary(ctx context.Context, sum domain.BacktestSummary) error {
	summaryJSON, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("postgres: marshal backtest summary: %w", err)
	}

	const query = `
		INSERT INTO backtest_summary (run_id, city, days, summary, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, city) DO UPDATE SET
			days    = EXCLUDED.days,
			summary = EXCLUDED.summary`

	if _, err := s.pool.Exec(ctx, query, sum.RunID, sum.City, sum.Days, summaryJSON, sum.CreatedAt); err != nil {
		return fmt.Errorf("postgres: insert backtest summary %s %s: %w", sum.RunID, sum.City, err)
	}
	return nil
}
