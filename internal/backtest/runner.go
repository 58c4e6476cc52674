package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// History serves past model runs and observed highs.
type History interface {
	PreviousRuns(ctx context.Context, city domain.City, model string, pastDays, maxLead int) (map[int]map[string]float64, error)
	Actuals(ctx context.Context, city domain.City, from, to time.Time) (map[string]float64, error)
}

// Archiver uploads run artefacts.
type Archiver interface {
	ArchiveResults(ctx context.Context, runID, city string, results []domain.BacktestResult) (string, error)
	ArchiveSummary(ctx context.Context, summary domain.BacktestSummary) (string, error)
	PublishCandidate(ctx context.Context, runID string, table strategy.ConfidenceTable) (string, error)
}

// Config controls a backtest run.
type Config struct {
	Models       []string
	PastDays     int
	MaxLead      int
	MaxAgreement int
	MinSamples   int
	BoundaryMin  float64
	AnchorModel  string
	Concurrency  int
}

// Report is the outcome of one run.
type Report struct {
	RunID     string
	Summaries []domain.BacktestSummary
	Results   int
	Candidate strategy.ConfidenceTable
	Archived  []string
	Failed    []string
}

// Runner replays every configured city. Store and Archive are optional.
type Runner struct {
	history History
	store   domain.BacktestStore
	archive Archiver
	cities  []domain.City
	cfg     Config
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewRunner creates a Runner. store and archive may be nil.
func NewRunner(history History, store domain.BacktestStore, archive Archiver, cities []domain.City, cfg Config, clock clockwork.Clock, logger *slog.Logger) *Runner {
	if cfg.PastDays <= 0 {
		cfg.PastDays = 90
	}
	if cfg.MaxLead < 0 {
		cfg.MaxLead = 0
	}
	if cfg.MaxAgreement <= 0 {
		cfg.MaxAgreement = max(len(cfg.Models), 1)
	}
	if cfg.AnchorModel == "" {
		cfg.AnchorModel = strategy.DefaultAnchorModel
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		history: history,
		store:   store,
		archive: archive,
		cities:  cities,
		cfg:     cfg,
		clock:   clock,
		logger:  logger.With(slog.String("component", "backtest")),
	}
}

// RunID names a run by its start time.
func RunID(t time.Time) string {
	return "backtest-" + t.UTC().Format("2006-01-02-15-04-05")
}

// Run replays all cities concurrently, persists and archives what it can and
// calibrates a candidate table. A failing city is reported in Failed; Run
// only errors when the context ends or no city could be replayed.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	now := r.clock.Now()
	report := Report{RunID: RunID(now)}
	r.logger.InfoContext(ctx, "backtest started",
		slog.String("run_id", report.RunID),
		slog.Int("cities", len(r.cities)),
		slog.Int("past_days", r.cfg.PastDays),
		slog.Int("max_lead", r.cfg.MaxLead),
	)

	var (
		mu     sync.Mutex
		byCity = make(map[string][]domain.BacktestResult)
		errs   []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, city := range r.cities {
		g.Go(func() error {
			results, sum, paths, err := r.runCity(gctx, report.RunID, city, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, city.Slug)
				errs = append(errs, fmt.Errorf("%s: %w", city.Slug, err))
				r.logger.WarnContext(gctx, "city replay failed",
					slog.String("city", city.Slug),
					slog.String("error", err.Error()),
				)
				return nil
			}
			byCity[city.Slug] = results
			report.Results += len(results)
			report.Summaries = append(report.Summaries, sum)
			report.Archived = append(report.Archived, paths...)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if len(byCity) == 0 && len(r.cities) > 0 {
		return report, fmt.Errorf("backtest: no city replayed: %w", errors.Join(errs...))
	}

	sort.Slice(report.Summaries, func(i, j int) bool { return report.Summaries[i].City < report.Summaries[j].City })
	sort.Strings(report.Failed)

	report.Candidate = Calibrate(report.RunID, byCity, r.cfg.MaxLead, r.cfg.MaxAgreement, r.cfg.MinSamples)
	if r.archive != nil {
		p, err := r.archive.PublishCandidate(ctx, report.RunID, report.Candidate)
		if err != nil {
			r.logger.WarnContext(ctx, "candidate upload failed", slog.String("error", err.Error()))
		} else {
			report.Archived = append(report.Archived, p)
		}
	}
	sort.Strings(report.Archived)

	r.logger.InfoContext(ctx, "backtest done",
		slog.String("run_id", report.RunID),
		slog.Int("results", report.Results),
		slog.String("failed", strings.Join(report.Failed, ",")),
	)
	return report, nil
}

func (r *Runner) runCity(ctx context.Context, runID string, city domain.City, now time.Time) ([]domain.BacktestResult, domain.BacktestSummary, []string, error) {
	today := domain.Day(now)
	from := today.AddDate(0, 0, -r.cfg.PastDays)
	to := today.AddDate(0, 0, -1)

	actuals, err := r.history.Actuals(ctx, city, from, to)
	if err != nil {
		return nil, domain.BacktestSummary{}, nil, fmt.Errorf("actuals: %w", err)
	}

	runs := make(Runs, len(r.cfg.Models))
	for _, model := range r.cfg.Models {
		byLead, err := r.history.PreviousRuns(ctx, city, model, r.cfg.PastDays, r.cfg.MaxLead)
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.BacktestSummary{}, nil, ctx.Err()
			}
			r.logger.WarnContext(ctx, "previous runs unavailable",
				slog.String("city", city.Slug),
				slog.String("model", model),
				slog.String("error", err.Error()),
			)
			continue
		}
		runs[model] = byLead
	}
	if len(runs) == 0 {
		return nil, domain.BacktestSummary{}, nil, domain.ErrNoForecasts
	}

	results := Replay(runID, city, runs, actuals, r.cfg.AnchorModel, r.cfg.BoundaryMin)
	sum := Summarize(runID, city.Slug, results, r.cfg.BoundaryMin, now)
	r.logSummary(ctx, sum)

	if r.store != nil && len(results) > 0 {
		if err := r.store.InsertResults(ctx, results); err != nil {
			return nil, domain.BacktestSummary{}, nil, fmt.Errorf("store results: %w", err)
		}
		if err := r.store.InsertSummary(ctx, sum); err != nil {
			return nil, domain.BacktestSummary{}, nil, fmt.Errorf("store summary: %w", err)
		}
	}

	var paths []string
	if r.archive != nil && len(results) > 0 {
		p, err := r.archive.ArchiveResults(ctx, runID, city.Slug, results)
		if err != nil {
			r.logger.WarnContext(ctx, "results upload failed", slog.String("city", city.Slug), slog.String("error", err.Error()))
		} else {
			paths = append(paths, p)
		}
		p, err = r.archive.ArchiveSummary(ctx, sum)
		if err != nil {
			r.logger.WarnContext(ctx, "summary upload failed", slog.String("city", city.Slug), slog.String("error", err.Error()))
		} else {
			paths = append(paths, p)
		}
	}
	return results, sum, paths, nil
}

func (r *Runner) logSummary(ctx context.Context, sum domain.BacktestSummary) {
	models := make([]string, 0, len(sum.Models))
	for m := range sum.Models {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		s := sum.Models[m]
		r.logger.InfoContext(ctx, "model performance",
			slog.String("city", sum.City),
			slog.String("model", m),
			slog.Int("samples", s.Total),
			slog.Float64("match_rate", strategy.Round2(s.MatchRate)),
			slog.Float64("mae", strategy.Round2(s.MAE)),
			slog.Int("boundary_misses", s.BoundaryMisses),
			slog.Int("boundary_total", s.BoundaryTotal),
		)
	}
	r.logger.InfoContext(ctx, "consensus filter",
		slog.String("city", sum.City),
		slog.Int("days", sum.Days),
		slog.String("gte2", fmt.Sprintf("%d/%d", sum.Consensus2.Correct, sum.Consensus2.Total)),
		slog.String("gte3", fmt.Sprintf("%d/%d", sum.Consensus3.Correct, sum.Consensus3.Total)),
		slog.String("boundary_safe", fmt.Sprintf("%d/%d", sum.SafeTrades.Correct, sum.SafeTrades.Total)),
	)
}
