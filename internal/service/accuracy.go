package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// consensusLevels is the highest minimum agreement scored as its own
// consensus_gte<N> row.
const consensusLevels = 3

// ConsensusModel names the pseudo-model row for consensus at agreement >= n.
func ConsensusModel(n int) string {
	return fmt.Sprintf("consensus_gte%d", n)
}

// ComputeAccuracy scores the stored forecasts of one city against observed
// highs. For every (model, date, lead) only the most recently collected
// forecast counts. Rows are sorted by model then lead.
func ComputeAccuracy(city domain.City, forecasts []domain.ModelForecast, actuals map[string]float64, anchor string, now time.Time) []domain.AccuracyRow {
	type fkey struct {
		model string
		date  string
		lead  int
	}
	latest := make(map[fkey]domain.ModelForecast)
	for _, f := range forecasts {
		k := fkey{f.Model, domain.DateKey(f.TargetDate), f.LeadDays}
		if cur, ok := latest[k]; !ok || !f.CollectedAt.Before(cur.CollectedAt) {
			latest[k] = f
		}
	}

	type mkey struct {
		model string
		lead  int
	}
	type tally struct {
		matches int
		total   int
		absErr  float64
	}
	perModel := make(map[mkey]*tally)

	type skey struct {
		date string
		lead int
	}
	snapshots := make(map[skey]map[string]float64)

	for k, f := range latest {
		actual, ok := actuals[k.date]
		if !ok {
			continue
		}
		actualBucket, err := strategy.Bucket(actual, city.Unit)
		if err != nil {
			continue
		}
		bucket, err := strategy.Bucket(f.Value, city.Unit)
		if err != nil {
			continue
		}
		mk := mkey{k.model, k.lead}
		t := perModel[mk]
		if t == nil {
			t = &tally{}
			perModel[mk] = t
		}
		t.total++
		if bucket == actualBucket {
			t.matches++
		}
		t.absErr += math.Abs(f.Value - actual)

		sk := skey{k.date, k.lead}
		if snapshots[sk] == nil {
			snapshots[sk] = make(map[string]float64)
		}
		snapshots[sk][k.model] = f.Value
	}

	consensus := make(map[int][]tally)
	for sk, values := range snapshots {
		snap, err := strategy.Aggregate(city.Unit, values, anchor)
		if err != nil {
			continue
		}
		actualBucket, _ := strategy.Bucket(actuals[sk.date], city.Unit)
		if consensus[sk.lead] == nil {
			consensus[sk.lead] = make([]tally, consensusLevels)
		}
		for n := 1; n <= consensusLevels; n++ {
			if snap.Agreement < n {
				continue
			}
			consensus[sk.lead][n-1].total++
			if snap.Bucket == actualBucket {
				consensus[sk.lead][n-1].matches++
			}
		}
	}

	computedAt := now.UTC()
	var rows []domain.AccuracyRow
	for mk, t := range perModel {
		mae := t.absErr / float64(t.total)
		rows = append(rows, domain.AccuracyRow{
			City:       city.Slug,
			Model:      mk.model,
			LeadDays:   mk.lead,
			MatchRate:  float64(t.matches) / float64(t.total),
			MAE:        &mae,
			SampleSize: t.total,
			ComputedAt: computedAt,
		})
	}
	for lead, levels := range consensus {
		for i, t := range levels {
			if t.total == 0 {
				continue
			}
			rows = append(rows, domain.AccuracyRow{
				City:       city.Slug,
				Model:      ConsensusModel(i + 1),
				LeadDays:   lead,
				MatchRate:  float64(t.matches) / float64(t.total),
				SampleSize: t.total,
				ComputedAt: computedAt,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Model != rows[j].Model {
			return rows[i].Model < rows[j].Model
		}
		return rows[i].LeadDays < rows[j].LeadDays
	})
	return rows
}

// AccuracyService refreshes forecast_accuracy from the dates that have
// resolved trades.
type AccuracyService struct {
	trades    domain.TradeStore
	forecasts domain.ForecastStore
	actuals   domain.ActualProvider
	store     domain.AccuracyStore
	cities    []domain.City
	anchor    string
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewAccuracyService creates an AccuracyService.
func NewAccuracyService(
	trades domain.TradeStore,
	forecasts domain.ForecastStore,
	actuals domain.ActualProvider,
	store domain.AccuracyStore,
	cities []domain.City,
	anchor string,
	clock clockwork.Clock,
	logger *slog.Logger,
) *AccuracyService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccuracyService{
		trades:    trades,
		forecasts: forecasts,
		actuals:   actuals,
		store:     store,
		cities:    cities,
		anchor:    anchor,
		clock:     clock,
		logger:    logger.With(slog.String("component", "accuracy")),
	}
}

// Compute refreshes every city and returns the number of rows upserted. A
// failing city is logged and skipped.
func (s *AccuracyService) Compute(ctx context.Context) (int, error) {
	total := 0
	for _, city := range s.cities {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.computeCity(ctx, city)
		if err != nil {
			s.logger.WarnContext(ctx, "accuracy failed",
				slog.String("city", city.Slug),
				slog.String("error", err.Error()),
			)
			continue
		}
		total += n
	}
	return total, nil
}

func (s *AccuracyService) computeCity(ctx context.Context, city domain.City) (int, error) {
	resolved, err := s.trades.ListResolved(ctx, city.Slug)
	if err != nil {
		return 0, fmt.Errorf("list resolved: %w", err)
	}
	if len(resolved) == 0 {
		return 0, nil
	}

	seen := make(map[string]bool)
	var dates []time.Time
	for _, t := range resolved {
		k := domain.DateKey(t.TargetDate)
		if !seen[k] {
			seen[k] = true
			dates = append(dates, domain.Day(t.TargetDate))
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	actuals, err := s.actuals.Actuals(ctx, city, dates[0], dates[len(dates)-1])
	if err != nil {
		return 0, fmt.Errorf("fetch actuals: %w", err)
	}
	forecasts, err := s.forecasts.ListForDates(ctx, city.Slug, dates)
	if err != nil {
		return 0, fmt.Errorf("list forecasts: %w", err)
	}
	if len(forecasts) == 0 {
		return 0, nil
	}

	rows := ComputeAccuracy(city, forecasts, actuals, s.anchor, s.clock.Now())
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.store.Upsert(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	s.logger.InfoContext(ctx, "accuracy stored",
		slog.String("city", city.Slug),
		slog.Int("rows", len(rows)),
		slog.Int("days", len(actuals)),
	)
	return len(rows), nil
}
