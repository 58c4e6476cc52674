package domain

import "time"

// Verdict is the trading recommendation attached to a signal.
type Verdict string

const (
	VerdictSkip     Verdict = "skip"
	VerdictMarginal Verdict = "marginal"
	VerdictStrong   Verdict = "strong"
)

// Signal is the outcome of classifying one consensus snapshot against the
// market. Signals are historical facts and are never updated.
type Signal struct {
	ID           string    `json:"id"`
	City         string    `json:"city"`
	TargetDate   time.Time `json:"target_date"`
	LeadDays     int       `json:"lead_days"`
	Bucket       string    `json:"bucket"`
	Agreement    int       `json:"agreement"`
	Confidence   float64   `json:"confidence"`
	MarketPrice  *float64  `json:"market_price,omitempty"`
	Edge         *float64  `json:"edge,omitempty"`
	Verdict      Verdict   `json:"verdict"`
	MeetsQuorum  bool      `json:"meets_quorum"`
	AnchorAgrees bool      `json:"anchor_agrees"`
	PriceCapped  bool      `json:"price_capped"`
	TableVersion string    `json:"table_version"`
	CreatedAt    time.Time `json:"created_at"`
}

// Actionable reports whether the signal may open a position: strong and
// priced at or below the entry cap.
func (s Signal) Actionable() bool {
	return s.Verdict == VerdictStrong && s.MeetsQuorum && !s.PriceCapped && s.MarketPrice != nil
}
