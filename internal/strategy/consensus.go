package strategy

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// DefaultAnchorModel is the highest-skill model in calibration.
const DefaultAnchorModel = "ecmwf"

// Aggregate buckets every model's value and picks the most common bucket.
//
// Ties on count go to the lexicographically smallest label so the result
// never depends on map iteration order. The snapshot's identity fields
// (City, TargetDate, LeadDays) are left for the caller to fill.
func Aggregate(unit domain.Unit, values map[string]float64, anchor string) (domain.ConsensusSnapshot, error) {
	if len(values) == 0 {
		return domain.ConsensusSnapshot{}, domain.ErrNoForecasts
	}

	snap := domain.ConsensusSnapshot{
		ModelValues:  make(map[string]float64, len(values)),
		ModelBuckets: make(map[string]string, len(values)),
		AnchorModel:  anchor,
	}
	counts := make(map[string]int)
	for model, v := range values {
		b, err := Bucket(v, unit)
		if err != nil {
			return domain.ConsensusSnapshot{}, fmt.Errorf("strategy: aggregate %s: %w", model, err)
		}
		snap.ModelValues[model] = v
		snap.ModelBuckets[model] = b
		counts[b]++
	}

	labels := make([]string, 0, len(counts))
	for b := range counts {
		labels = append(labels, b)
	}
	sort.Strings(labels)
	for _, b := range labels {
		if counts[b] > snap.Agreement {
			snap.Bucket = b
			snap.Agreement = counts[b]
		}
	}

	if ab, ok := snap.ModelBuckets[anchor]; ok {
		snap.AnchorAgrees = ab == snap.Bucket
	}
	return snap, nil
}

// Agreeing returns the models whose bucket equals the consensus, sorted.
func Agreeing(snap domain.ConsensusSnapshot) []string {
	var out []string
	for m, b := range snap.ModelBuckets {
		if b == snap.Bucket {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
