package domain

import (
	"context"
	"time"
)

// Unit is the temperature unit a city's market settles in.
type Unit string

const (
	Celsius    Unit = "C"
	Fahrenheit Unit = "F"
)

// City describes one tradeable location.
type City struct {
	Name          string
	Slug          string
	Lat           float64
	Lon           float64
	Unit          Unit
	Timezone      string
	MinConsensus  int
	RequireAnchor bool
}

// ModelForecast is one model's predicted daily high for a city and date.
type ModelForecast struct {
	City        string
	TargetDate  time.Time
	Model       string
	Value       float64
	Unit        Unit
	Bucket      string
	LeadDays    int
	ModelRun    string
	CollectedAt time.Time
}

// ConsensusSnapshot is the aggregate view of every model for one city/date.
// It is always recomputed from forecasts and never stored as authoritative.
type ConsensusSnapshot struct {
	City         string             `json:"city"`
	TargetDate   time.Time          `json:"target_date"`
	LeadDays     int                `json:"lead_days"`
	ModelValues  map[string]float64 `json:"model_values"`
	ModelBuckets map[string]string  `json:"model_buckets"`
	Bucket       string             `json:"bucket"`
	Agreement    int                `json:"agreement"`
	AnchorModel  string             `json:"anchor_model"`
	AnchorAgrees bool               `json:"anchor_agrees"`
}

// ForecastProvider returns the latest per-model daily high for a city/date.
type ForecastProvider interface {
	Forecasts(ctx context.Context, city City, date time.Time) (map[string]float64, error)
}

// ActualProvider returns the observed daily high. A nil value with a nil
// error means the observation has not been published yet.
type ActualProvider interface {
	Actual(ctx context.Context, city City, date time.Time) (*float64, error)
	Actuals(ctx context.Context, city City, from, to time.Time) (map[string]float64, error)
}

// DateKey formats a target date the way every store and API uses it.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
