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

// ForecastStore implements domain.ForecastStore using PostgreSQL.
type ForecastStore struct {
	pool *pgxpool.Pool
}

var _ domain.ForecastStore = (*ForecastStore)(nil)

// NewForecastStore creates a new ForecastStore backed by the given connection pool.
func NewForecastStore(pool *pgxpool.Pool) *ForecastStore {
	return &ForecastStore{pool: pool}
}

const forecastSelectCols = `city, target_date, model, value, unit, bucket, lead_days, model_run, collected_at`

func scanForecast(row pgx.Row) (domain.ModelForecast, error) {
	var (
		f    domain.ModelForecast
		unit string
	)
	if err := row.Scan(&f.City, &f.TargetDate, &f.Model, &f.Value, &unit,
		&f.Bucket, &f.LeadDays, &f.ModelRun, &f.CollectedAt); err != nil {
		return domain.ModelForecast{}, err
	}
	f.Unit = domain.Unit(unit)
	return f, nil
}

// InsertBatch stores one collection cycle's forecasts in a single batch.
func (s *ForecastStore) InsertBatch(ctx context.Context, forecasts []domain.ModelForecast) error {
	if len(forecasts) == 0 {
		return nil
	}

	const query = `
		INSERT INTO forecasts (
			city, target_date, model, value, unit, bucket, lead_days, model_run, collected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	batch := &pgx.Batch{}
	for _, f := range forecasts {
		batch.Queue(query, f.City, domain.Day(f.TargetDate), f.Model, f.Value, string(f.Unit),
			f.Bucket, f.LeadDays, f.ModelRun, f.CollectedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range forecasts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert forecast batch item %d: %w", i, err)
		}
	}
	return nil
}

// Latest returns the most recently collected forecast of model for a
// city/date, or domain.ErrNotFound.
func (s *ForecastStore) Latest(ctx context.Context, city, model string, date time.Time) (domain.ModelForecast, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+forecastSelectCols+` FROM forecasts
		 WHERE city = $1 AND model = $2 AND target_date = $3
		 ORDER BY collected_at DESC LIMIT 1`,
		city, model, domain.Day(date))
	f, err := scanForecast(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ModelForecast{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ModelForecast{}, fmt.Errorf("postgres: latest forecast %s %s: %w", city, model, err)
	}
	return f, nil
}

// ListForDates returns every stored forecast for city on the given dates,
// oldest first.
func (s *ForecastStore) ListForDates(ctx context.Context, city string, dates []time.Time) ([]domain.ModelForecast, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	days := make([]time.Time, len(dates))
	for i, d := range dates {
		days[i] = domain.Day(d)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+forecastSelectCols+` FROM forecasts
		 WHERE city = $1 AND target_date = ANY($2)
		 ORDER BY collected_at ASC`,
		city, days)
	if err != nil {
		return nil, fmt.Errorf("postgres: list forecasts %s: %w", city, err)
	}
	defer rows.Close()

	var out []domain.ModelForecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan forecast: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list forecasts rows: %w", err)
	}
	return out, nil
}
