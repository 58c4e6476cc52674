package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL. The table is an
// append-only log; rows are never updated.
type AlertStore struct {
	pool *pgxpool.Pool
}

var _ domain.AlertStore = (*AlertStore)(nil)

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

const alertSelectCols = `id, trade_id, city, target_date, trade_bucket, current_consensus,
	models_on_bucket, alert_type, detail, model_detail, created_at`

func scanAlert(row pgx.Row) (domain.TradeAlert, error) {
	var (
		a     domain.TradeAlert
		state string
	)
	if err := row.Scan(&a.ID, &a.TradeID, &a.City, &a.TargetDate, &a.TradeBucket, &a.CurrentConsensus,
		&a.ModelsOnBucket, &state, &a.Detail, &a.ModelDetail, &a.CreatedAt); err != nil {
		return domain.TradeAlert{}, err
	}
	a.State = domain.DriftState(state)
	return a, nil
}

// Append adds one entry to a trade's alert log.
func (s *AlertStore) Append(ctx context.Context, a domain.TradeAlert) error {
	const query = `
		INSERT INTO trade_alerts (
			id, trade_id, city, target_date, trade_bucket, current_consensus,
			models_on_bucket, alert_type, detail, model_detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.TradeID, a.City, domain.Day(a.TargetDate), a.TradeBucket, a.CurrentConsensus,
		a.ModelsOnBucket, string(a.State), a.Detail, a.ModelDetail, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append alert for trade %s: %w", a.TradeID, err)
	}
	return nil
}

// Latest returns the newest alert of a trade, or domain.ErrNotFound.
func (s *AlertStore) Latest(ctx context.Context, tradeID string) (domain.TradeAlert, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+alertSelectCols+` FROM trade_alerts WHERE trade_id = $1 ORDER BY created_at DESC LIMIT 1`,
		tradeID)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TradeAlert{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TradeAlert{}, fmt.Errorf("postgres: latest alert for trade %s: %w", tradeID, err)
	}
	return a, nil
}

// ListByTrade returns a trade's alert log oldest first.
func (s *AlertStore) ListByTrade(ctx context.Context, tradeID string) ([]domain.TradeAlert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertSelectCols+` FROM trade_alerts WHERE trade_id = $1 ORDER BY created_at ASC`,
		tradeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts for trade %s: %w", tradeID, err)
	}
	defer rows.Close()

	var out []domain.TradeAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list alerts rows: %w", err)
	}
	return out, nil
}
