package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, city, target_date, bucket, price, shares, cost,
	order_id, signal_verdict, edge, agreement, status, pnl, actual_value,
	actual_bucket, created_at, resolved_at`

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var (
		t            domain.Trade
		verdict      string
		status       string
		actualBucket *string
	)
	if err := row.Scan(
		&t.ID, &t.City, &t.TargetDate, &t.Bucket, &t.Price, &t.Shares, &t.Cost,
		&t.OrderID, &verdict, &t.Edge, &t.Agreement, &status, &t.PnL, &t.ActualValue,
		&actualBucket, &t.CreatedAt, &t.ResolvedAt,
	); err != nil {
		return domain.Trade{}, err
	}
	t.SignalVerdict = domain.Verdict(verdict)
	t.Status = domain.TradeStatus(status)
	if actualBucket != nil {
		t.ActualBucket = *actualBucket
	}
	return t, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Create inserts an open trade. The (city, target_date) unique constraint
// turns a second entry into domain.ErrAlreadyExists.
func (s *TradeStore) Create(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, city, target_date, bucket, price, shares, cost,
			order_id, signal_verdict, edge, agreement, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.City, t.TargetDate, t.Bucket, t.Price, t.Shares, t.Cost,
		t.OrderID, string(t.SignalVerdict), t.Edge, t.Agreement, string(t.Status), t.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: create trade %s %s: %w", t.City, domain.DateKey(t.TargetDate), domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return nil
}

// GetByID returns a trade or domain.ErrNotFound.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeSelectCols+` FROM trades WHERE id = $1`, id)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Trade{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// GetByCityDate returns the trade for a city/date or domain.ErrNotFound.
func (s *TradeStore) GetByCityDate(ctx context.Context, city string, date time.Time) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE city = $1 AND target_date = $2`,
		city, domain.Day(date))
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Trade{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s %s: %w", city, domain.DateKey(date), err)
	}
	return t, nil
}

// ListOpenFrom returns open trades whose target date is on or after from.
func (s *TradeStore) ListOpenFrom(ctx context.Context, from time.Time) ([]domain.Trade, error) {
	return s.listWhere(ctx, "open trades from",
		`status = 'open' AND target_date >= $1 ORDER BY target_date ASC`, domain.Day(from))
}

// ListOpenBefore returns open trades whose target date is strictly before before.
func (s *TradeStore) ListOpenBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	return s.listWhere(ctx, "open trades before",
		`status = 'open' AND target_date < $1 ORDER BY target_date ASC`, domain.Day(before))
}

// ListResolved returns won and lost trades, for every city when city is empty.
func (s *TradeStore) ListResolved(ctx context.Context, city string) ([]domain.Trade, error) {
	if city == "" {
		return s.listWhere(ctx, "resolved trades",
			`status IN ('won', 'lost') ORDER BY target_date ASC`)
	}
	return s.listWhere(ctx, "resolved trades",
		`status IN ('won', 'lost') AND city = $1 ORDER BY target_date ASC`, city)
}

func (s *TradeStore) listWhere(ctx context.Context, what, where string, args ...any) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tradeSelectCols+` FROM trades WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", what, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %s: %w", what, err)
	}
	return trades, nil
}

// MarkResolved moves an open trade to won or lost. The update only touches
// open rows, so a trade resolved elsewhere yields domain.ErrAlreadyResolved.
func (s *TradeStore) MarkResolved(ctx context.Context, id string, res domain.Resolution, at time.Time) error {
	const query = `
		UPDATE trades SET
			status        = $2,
			pnl           = $3,
			actual_value  = $4,
			actual_bucket = $5,
			resolved_at   = $6
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, string(res.Status), res.PnL, res.ActualValue, res.ActualBucket, at)
	if err != nil {
		return fmt.Errorf("postgres: resolve trade %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: resolve trade %s: %w", id, domain.ErrAlreadyResolved)
	}
	return nil
}

// List returns trades newest first with pagination and optional filters.
func (s *TradeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	query, args := listFilter(`SELECT `+tradeSelectCols+` FROM trades WHERE 1=1`, nil, opts, "created_at")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}
