package domain

import "time"

// AccuracyRow is the measured bucket-match rate of one model (or of the
// consensus at a minimum agreement) for one city and lead time.
type AccuracyRow struct {
	City       string    `json:"city"`
	Model      string    `json:"model"`
	LeadDays   int       `json:"lead_days"`
	MatchRate  float64   `json:"bucket_match_rate"`
	MAE        *float64  `json:"mae,omitempty"`
	SampleSize int       `json:"sample_size"`
	ComputedAt time.Time `json:"computed_at"`
}

// ModelOutcome is one model's forecast scored against the actual.
type ModelOutcome struct {
	Value        float64 `json:"value"`
	Bucket       string  `json:"bucket"`
	AbsError     float64 `json:"abs_error"`
	Match        bool    `json:"match"`
	BoundaryDist float64 `json:"boundary_dist"`
}

// BacktestResult is one replayed (city, date, lead) snapshot.
type BacktestResult struct {
	RunID            string                  `json:"run_id"`
	City             string                  `json:"city"`
	TargetDate       time.Time               `json:"target_date"`
	LeadDays         int                     `json:"lead_days"`
	Actual           float64                 `json:"actual"`
	ActualBucket     string                  `json:"actual_bucket"`
	Models           map[string]ModelOutcome `json:"models"`
	ConsensusBucket  string                  `json:"consensus_bucket"`
	ConsensusCount   int                     `json:"consensus_count"`
	ConsensusCorrect bool                    `json:"consensus_correct"`
	AnchorAgrees     bool                    `json:"anchor_agrees"`
	BoundarySafe     bool                    `json:"boundary_safe"`
}

// ModelStats aggregates one model's backtest performance.
type ModelStats struct {
	Total            int     `json:"total"`
	Matches          int     `json:"matches"`
	MAE              float64 `json:"mae"`
	BoundaryTotal    int     `json:"boundary_total"`
	BoundaryMisses   int     `json:"boundary_misses"`
	MatchRate        float64 `json:"match_rate"`
	BoundaryMissRate float64 `json:"boundary_miss_rate"`
}

// RateCount is a correct/total pair.
type RateCount struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Rate returns Correct/Total, or 0 for an empty sample.
func (r RateCount) Rate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total)
}

// BacktestSummary aggregates one run for one city.
type BacktestSummary struct {
	RunID      string                `json:"run_id"`
	City       string                `json:"city"`
	Days       int                   `json:"days"`
	Models     map[string]ModelStats `json:"models"`
	Consensus2 RateCount             `json:"consensus2"`
	Consensus3 RateCount             `json:"consensus3"`
	SafeTrades RateCount             `json:"safe_trades"`
	ByMonth    map[string]RateCount  `json:"by_month"`
	CreatedAt  time.Time             `json:"created_at"`
}
