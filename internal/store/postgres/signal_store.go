package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL. Signals are
// insert-only.
type SignalStore struct {
	pool *pgxpool.Pool
}

var _ domain.SignalStore = (*SignalStore)(nil)

// NewSignalStore creates a new SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Insert stores a classified signal.
func (s *SignalStore) Insert(ctx context.Context, sig domain.Signal) error {
	const query = `
		INSERT INTO signals (
			id, city, target_date, lead_days, bucket, agreement, confidence,
			market_price, edge, verdict, meets_quorum, anchor_agrees,
			price_capped, table_version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.pool.Exec(ctx, query,
		sig.ID, sig.City, domain.Day(sig.TargetDate), sig.LeadDays, sig.Bucket, sig.Agreement, sig.Confidence,
		sig.MarketPrice, sig.Edge, string(sig.Verdict), sig.MeetsQuorum, sig.AnchorAgrees,
		sig.PriceCapped, sig.TableVersion, sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

// List returns signals newest first with pagination and optional filters.
func (s *SignalStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Signal, error) {
	query, args := listFilter(`
		SELECT id, city, target_date, lead_days, bucket, agreement, confidence,
		       market_price, edge, verdict, meets_quorum, anchor_agrees,
		       price_capped, table_version, created_at
		FROM signals WHERE 1=1`, nil, opts, "created_at")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var (
			sig     domain.Signal
			verdict string
		)
		if err := rows.Scan(
			&sig.ID, &sig.City, &sig.TargetDate, &sig.LeadDays, &sig.Bucket, &sig.Agreement, &sig.Confidence,
			&sig.MarketPrice, &sig.Edge, &verdict, &sig.MeetsQuorum, &sig.AnchorAgrees,
			&sig.PriceCapped, &sig.TableVersion, &sig.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		sig.Verdict = domain.Verdict(verdict)
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list signals rows: %w", err)
	}
	return out, nil
}
