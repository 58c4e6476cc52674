// Package backtest replays past model runs against observed highs to score
// the consensus rules and to calibrate a candidate confidence table.
package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// Runs holds past forecasts as model -> lead -> date -> daily high.
type Runs map[string]map[int]map[string]float64

// Replay scores every (date, lead) for which at least one model has a
// forecast and the date has an observation. Results are sorted by date then
// lead.
func Replay(runID string, city domain.City, runs Runs, actuals map[string]float64, anchor string, boundaryMin float64) []domain.BacktestResult {
	type snapKey struct {
		date string
		lead int
	}
	snapshots := make(map[snapKey]map[string]float64)
	for model, byLead := range runs {
		for lead, byDate := range byLead {
			for date, v := range byDate {
				if _, ok := actuals[date]; !ok {
					continue
				}
				k := snapKey{date, lead}
				if snapshots[k] == nil {
					snapshots[k] = make(map[string]float64)
				}
				snapshots[k][model] = v
			}
		}
	}

	keys := make([]snapKey, 0, len(snapshots))
	for k := range snapshots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].lead < keys[j].lead
	})

	results := make([]domain.BacktestResult, 0, len(keys))
	for _, k := range keys {
		target, err := time.Parse(time.DateOnly, k.date)
		if err != nil {
			continue
		}
		actual := actuals[k.date]
		actualBucket, err := strategy.Bucket(actual, city.Unit)
		if err != nil {
			continue
		}
		snap, err := strategy.Aggregate(city.Unit, snapshots[k], anchor)
		if err != nil {
			continue
		}

		models := make(map[string]domain.ModelOutcome, len(snap.ModelValues))
		for model, v := range snap.ModelValues {
			dist, _ := strategy.BoundaryDistance(v, city.Unit)
			models[model] = domain.ModelOutcome{
				Value:        v,
				Bucket:       snap.ModelBuckets[model],
				AbsError:     math.Abs(v - actual),
				Match:        snap.ModelBuckets[model] == actualBucket,
				BoundaryDist: dist,
			}
		}
		results = append(results, domain.BacktestResult{
			RunID:            runID,
			City:             city.Slug,
			TargetDate:       target,
			LeadDays:         k.lead,
			Actual:           actual,
			ActualBucket:     actualBucket,
			Models:           models,
			ConsensusBucket:  snap.Bucket,
			ConsensusCount:   snap.Agreement,
			ConsensusCorrect: snap.Bucket == actualBucket,
			AnchorAgrees:     snap.AnchorAgrees,
			BoundarySafe:     strategy.PassesBoundaryFilter(snap, city.Unit, boundaryMin),
		})
	}
	return results
}

// Summarize aggregates one city's results. A model forecast closer than
// boundaryMin to its rounding point counts as a boundary call.
func Summarize(runID, city string, results []domain.BacktestResult, boundaryMin float64, now time.Time) domain.BacktestSummary {
	sum := domain.BacktestSummary{
		RunID:     runID,
		City:      city,
		Models:    make(map[string]domain.ModelStats),
		ByMonth:   make(map[string]domain.RateCount),
		CreatedAt: now.UTC(),
	}

	days := make(map[string]bool)
	absErr := make(map[string]float64)
	for _, r := range results {
		days[domain.DateKey(r.TargetDate)] = true

		for model, o := range r.Models {
			s := sum.Models[model]
			s.Total++
			if o.Match {
				s.Matches++
			}
			if o.BoundaryDist < boundaryMin {
				s.BoundaryTotal++
				if !o.Match {
					s.BoundaryMisses++
				}
			}
			absErr[model] += o.AbsError
			sum.Models[model] = s
		}

		if r.ConsensusCount >= 2 {
			tally(&sum.Consensus2, r.ConsensusCorrect)
			month := sum.ByMonth[r.TargetDate.Format("2006-01")]
			tally(&month, r.ConsensusCorrect)
			sum.ByMonth[r.TargetDate.Format("2006-01")] = month
			if r.BoundarySafe {
				tally(&sum.SafeTrades, r.ConsensusCorrect)
			}
		}
		if r.ConsensusCount >= 3 {
			tally(&sum.Consensus3, r.ConsensusCorrect)
		}
	}

	for model, s := range sum.Models {
		s.MAE = absErr[model] / float64(s.Total)
		s.MatchRate = float64(s.Matches) / float64(s.Total)
		if s.BoundaryTotal > 0 {
			s.BoundaryMissRate = float64(s.BoundaryMisses) / float64(s.BoundaryTotal)
		}
		sum.Models[model] = s
	}
	sum.Days = len(days)
	return sum
}

func tally(rc *domain.RateCount, correct bool) {
	rc.Total++
	if correct {
		rc.Correct++
	}
}
