package backtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

var (
	london  = domain.City{Name: "London", Slug: "london", Unit: domain.Celsius, MinConsensus: 1}
	chicago = domain.City{Name: "Chicago", Slug: "chicago", Unit: domain.Fahrenheit, MinConsensus: 3, RequireAnchor: true}
)

func TestReplay(t *testing.T) {
	runs := Runs{
		"ecmwf": {
			0: {"2026-09-01": 16.4, "2026-09-02": 20.1, "2026-09-03": 11.0},
			1: {"2026-09-01": 15.2},
		},
		"gfs": {
			0: {"2026-09-01": 16.2, "2026-09-02": 19.4},
			1: {"2026-09-01": 15.6},
		},
		"icon": {
			0: {"2026-09-01": 15.9, "2026-09-02": 21.0},
		},
	}
	actuals := map[string]float64{"2026-09-01": 16.3, "2026-09-02": 19.6}

	results := Replay("run-1", london, runs, actuals, "ecmwf", 0.3)
	require.Len(t, results, 3, "2026-09-03 has no observation")

	r := results[0]
	assert.Equal(t, "2026-09-01", domain.DateKey(r.TargetDate))
	assert.Equal(t, 0, r.LeadDays)
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, "16°C", r.ActualBucket)
	assert.Equal(t, "16°C", r.ConsensusBucket)
	assert.Equal(t, 3, r.ConsensusCount)
	assert.True(t, r.ConsensusCorrect)
	assert.True(t, r.AnchorAgrees)
	assert.False(t, r.BoundarySafe, "gfs at 16.2 and icon at 15.9 sit near the rounding point")
	require.Contains(t, r.Models, "icon")
	assert.InDelta(t, 0.4, r.Models["icon"].AbsError, 1e-9)
	assert.InDelta(t, 0.1, r.Models["icon"].BoundaryDist, 1e-9)

	r = results[1]
	assert.Equal(t, 1, r.LeadDays)
	assert.Equal(t, "15°C", r.ConsensusBucket, "tie between 15 and 16 goes to the smaller label")
	assert.Equal(t, 1, r.ConsensusCount)
	assert.False(t, r.ConsensusCorrect)

	r = results[2]
	assert.Equal(t, "2026-09-02", domain.DateKey(r.TargetDate))
	assert.Equal(t, "20°C", r.ActualBucket)
	assert.Equal(t, "19°C", r.ConsensusBucket, "19, 20 and 21 tie at one each")
	assert.False(t, r.Models["gfs"].Match)
	assert.True(t, r.Models["ecmwf"].Match)
}

func TestReplayFahrenheit(t *testing.T) {
	runs := Runs{
		"ecmwf": {1: {"2026-07-04": 88.9}},
		"gfs":   {1: {"2026-07-04": 89.5}},
		"icon":  {1: {"2026-07-04": 90.2}},
	}
	results := Replay("run-f", chicago, runs, map[string]float64{"2026-07-04": 89.0}, "ecmwf", 0.3)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "88 to 89°F", r.ActualBucket)
	assert.Equal(t, "88 to 89°F", r.ConsensusBucket)
	assert.Equal(t, 2, r.ConsensusCount)
	assert.True(t, r.BoundarySafe, "agreeing models sit 0.9 and 0.5 from an even boundary")
}

func result(date string, lead, count int, correct, safe bool, models map[string]domain.ModelOutcome) domain.BacktestResult {
	d, _ := time.Parse(time.DateOnly, date)
	return domain.BacktestResult{
		City: "london", TargetDate: d, LeadDays: lead, ConsensusCount: count,
		ConsensusCorrect: correct, BoundarySafe: safe, Models: models,
	}
}

func TestSummarize(t *testing.T) {
	hit := func(v, e, dist float64) domain.ModelOutcome {
		return domain.ModelOutcome{Value: v, AbsError: e, Match: true, BoundaryDist: dist}
	}
	miss := func(v, e, dist float64) domain.ModelOutcome {
		return domain.ModelOutcome{Value: v, AbsError: e, BoundaryDist: dist}
	}
	results := []domain.BacktestResult{
		result("2026-08-30", 0, 3, true, true, map[string]domain.ModelOutcome{"ecmwf": hit(16, 0.2, 0.4), "gfs": hit(16, 0.4, 0.35)}),
		result("2026-08-31", 0, 2, false, false, map[string]domain.ModelOutcome{"ecmwf": miss(17, 1.0, 0.1), "gfs": hit(16, 0.6, 0.2)}),
		result("2026-09-01", 0, 2, true, true, map[string]domain.ModelOutcome{"ecmwf": hit(16, 0.3, 0.45)}),
		result("2026-09-01", 1, 1, false, true, map[string]domain.ModelOutcome{"ecmwf": miss(18, 1.5, 0.05)}),
	}
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	sum := Summarize("run-1", "london", results, 0.3, now)
	assert.Equal(t, 3, sum.Days)
	assert.Equal(t, now, sum.CreatedAt)

	e := sum.Models["ecmwf"]
	assert.Equal(t, 4, e.Total)
	assert.Equal(t, 2, e.Matches)
	assert.InDelta(t, 0.75, e.MAE, 1e-9)
	assert.Equal(t, 0.5, e.MatchRate)
	assert.Equal(t, 2, e.BoundaryTotal)
	assert.Equal(t, 2, e.BoundaryMisses)
	assert.Equal(t, 1.0, e.BoundaryMissRate)

	g := sum.Models["gfs"]
	assert.Equal(t, 2, g.Total)
	assert.Equal(t, 1, g.BoundaryTotal)
	assert.Equal(t, 0, g.BoundaryMisses)

	assert.Equal(t, domain.RateCount{Correct: 2, Total: 3}, sum.Consensus2)
	assert.Equal(t, domain.RateCount{Correct: 1, Total: 1}, sum.Consensus3)
	assert.Equal(t, domain.RateCount{Correct: 2, Total: 2}, sum.SafeTrades)
	assert.Equal(t, map[string]domain.RateCount{
		"2026-08": {Correct: 1, Total: 2},
		"2026-09": {Correct: 1, Total: 1},
	}, sum.ByMonth)
}

func TestCalibrate(t *testing.T) {
	var rs []domain.BacktestResult
	for i := range 10 {
		rs = append(rs, result("2026-09-01", 0, 3, i < 9, true, nil))
	}
	for i := range 4 {
		rs = append(rs, result("2026-09-01", 1, 2, i < 3, true, nil))
	}
	rs = append(rs, result("2026-09-01", 5, 3, true, true, nil))
	for i := range 5 {
		rs = append(rs, result("2026-09-01", 0, 4, i < 4, true, nil))
	}

	table := Calibrate("cand-1", map[string][]domain.BacktestResult{"london": rs}, 2, 3, 4)
	require.NoError(t, table.Validate())
	assert.Equal(t, "cand-1", table.Version)

	rows := table.Cities["london"]
	require.Len(t, rows, 3)
	assert.Equal(t, 0.87, rows[0][2], "agreement four folds into the last column")
	assert.Equal(t, 0.75, rows[1][1])
	assert.Equal(t, 0.0, rows[1][2], "never observed")
	assert.Equal(t, []float64{0, 0, 0}, rows[2])

	sparse := Calibrate("cand-2", map[string][]domain.BacktestResult{"london": rs}, 2, 3, 5)
	assert.Equal(t, 0.0, sparse.Cities["london"][1][1], "below min samples")
	assert.Equal(t, 0.87, sparse.Lookup("london", 0, 3))
}

type fakeHistory struct {
	runs    map[string]Runs
	actuals map[string]map[string]float64
	fail    map[string]error
}

func (f *fakeHistory) PreviousRuns(_ context.Context, city domain.City, model string, pastDays, maxLead int) (map[int]map[string]float64, error) {
	if err := f.fail[city.Slug+"/"+model]; err != nil {
		return nil, err
	}
	return f.runs[city.Slug][model], nil
}

func (f *fakeHistory) Actuals(_ context.Context, city domain.City, from, to time.Time) (map[string]float64, error) {
	if err := f.fail[city.Slug]; err != nil {
		return nil, err
	}
	out := map[string]float64{}
	for d, v := range f.actuals[city.Slug] {
		day, _ := time.Parse(time.DateOnly, d)
		if !day.Before(from) && !day.After(to) {
			out[d] = v
		}
	}
	return out, nil
}

type memStore struct {
	mu        sync.Mutex
	results   []domain.BacktestResult
	summaries []domain.BacktestSummary
}

func (s *memStore) InsertResults(_ context.Context, rs []domain.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, rs...)
	return nil
}

func (s *memStore) InsertSummary(_ context.Context, sum domain.BacktestSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
	return nil
}

type memArchive struct {
	mu        sync.Mutex
	candidate *strategy.ConfidenceTable
}

func (a *memArchive) ArchiveResults(_ context.Context, runID, city string, _ []domain.BacktestResult) (string, error) {
	return "backtest/" + runID + "/" + city + ".jsonl", nil
}

func (a *memArchive) ArchiveSummary(_ context.Context, sum domain.BacktestSummary) (string, error) {
	return "backtest/" + sum.RunID + "/" + sum.City + "_summary.json", nil
}

func (a *memArchive) PublishCandidate(_ context.Context, runID string, table strategy.ConfidenceTable) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.candidate = &table
	return "backtest/" + runID + "/confidence_candidate.json", nil
}

func TestRunnerRun(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	history := &fakeHistory{
		runs: map[string]Runs{
			"london": {
				"ecmwf": {0: {"2026-10-12": 16.4, "2026-10-13": 14.4, "2026-10-14": 15.0}, 1: {"2026-10-13": 14.6}},
				"gfs":   {0: {"2026-10-12": 16.4, "2026-10-13": 14.4}},
			},
			"chicago": {
				"ecmwf": {0: {"2026-10-13": 70.5}},
			},
		},
		actuals: map[string]map[string]float64{
			"london":  {"2026-10-12": 16.1, "2026-10-13": 15.1, "2026-10-14": 15.0, "2026-01-01": 3},
			"chicago": {"2026-10-13": 71.0},
		},
		fail: map[string]error{"london/icon": errors.New("model offline")},
	}
	store := &memStore{}
	archive := &memArchive{}
	r := NewRunner(history, store, archive, []domain.City{london, chicago}, Config{
		Models:      []string{"ecmwf", "gfs", "icon"},
		PastDays:    30,
		MaxLead:     1,
		MinSamples:  1,
		BoundaryMin: 0.3,
	}, clockwork.NewFakeClockAt(now), nil)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "backtest-2026-10-14-09-30-00", report.RunID)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 4, report.Results, "today and dates outside the window are excluded")
	require.Len(t, report.Summaries, 2)
	assert.Equal(t, "chicago", report.Summaries[0].City)
	assert.Equal(t, "london", report.Summaries[1].City)
	assert.Equal(t, 2, report.Summaries[1].Days)

	assert.Len(t, store.results, 4)
	assert.Len(t, store.summaries, 2)
	assert.Len(t, report.Archived, 5)
	assert.Contains(t, report.Archived, "backtest/backtest-2026-10-14-09-30-00/confidence_candidate.json")

	require.NotNil(t, archive.candidate)
	assert.Equal(t, report.RunID, archive.candidate.Version)
	assert.Equal(t, 3, archive.candidate.MaxAgreement)
	assert.Equal(t, 0.5, report.Candidate.Lookup("london", 0, 2))
	assert.Equal(t, 1.0, report.Candidate.Lookup("london", 1, 1))
	assert.Equal(t, 0.0, report.Candidate.Lookup("london", 1, 2), "never observed")
	assert.Equal(t, 1.0, report.Candidate.Lookup("chicago", 0, 1))
}

func TestRunnerReportsFailedCities(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	history := &fakeHistory{
		runs: map[string]Runs{"london": {"ecmwf": {0: {"2026-10-12": 16.4}}}},
		actuals: map[string]map[string]float64{
			"london": {"2026-10-12": 16.1},
		},
		fail: map[string]error{"chicago": errors.New("archive down")},
	}
	r := NewRunner(history, nil, nil, []domain.City{london, chicago}, Config{Models: []string{"ecmwf"}}, clockwork.NewFakeClockAt(now), nil)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"chicago"}, report.Failed)
	assert.Equal(t, 1, report.Results)
	assert.Empty(t, report.Archived)

	only := NewRunner(history, nil, nil, []domain.City{chicago}, Config{Models: []string{"ecmwf"}}, clockwork.NewFakeClockAt(now), nil)
	_, err = only.Run(context.Background())
	assert.ErrorContains(t, err, "archive down")
}

func TestRunnerNoModelData(t *testing.T) {
	history := &fakeHistory{fail: map[string]error{"london/ecmwf": errors.New("404")}}
	r := NewRunner(history, nil, nil, []domain.City{london}, Config{Models: []string{"ecmwf"}}, clockwork.NewFakeClock(), nil)
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoForecasts)
}
