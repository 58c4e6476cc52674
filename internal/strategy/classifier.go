package strategy

import (
	"math"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// Thresholds are the per-deployment constants of the signal classifier.
type Thresholds struct {
	StrongEdge   float64
	MarginalEdge float64
	PriceCap     float64
	BoundaryMin  float64
}

// DefaultThresholds returns the thresholds the live collector runs with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StrongEdge:   0.15,
		MarginalEdge: 0.05,
		PriceCap:     0.50,
		BoundaryMin:  0.3,
	}
}

// QuorumRule is a city's requirement for treating a consensus as confirmed.
type QuorumRule struct {
	MinAgreement  int
	RequireAnchor bool
}

// RuleFor returns the quorum rule configured for a city.
func RuleFor(c domain.City) QuorumRule {
	return QuorumRule{MinAgreement: c.MinConsensus, RequireAnchor: c.RequireAnchor}
}

// MeetsQuorum reports whether the snapshot satisfies the rule.
func (r QuorumRule) MeetsQuorum(snap domain.ConsensusSnapshot) bool {
	if snap.Agreement < r.MinAgreement {
		return false
	}
	return snap.AnchorAgrees || !r.RequireAnchor
}

// Classify turns a consensus snapshot, its calibrated confidence and the
// market price of the consensus bucket into a signal.
//
// Edge is only defined when quorum is met and a price is known. The verdict
// follows the edge thresholds; PriceCapped is set independently so a strong
// signal priced above the cap is recorded as strong but not actionable.
func Classify(snap domain.ConsensusSnapshot, confidence float64, marketPrice *float64, rule QuorumRule, th Thresholds) domain.Signal {
	sig := domain.Signal{
		City:         snap.City,
		TargetDate:   snap.TargetDate,
		LeadDays:     snap.LeadDays,
		Bucket:       snap.Bucket,
		Agreement:    snap.Agreement,
		Confidence:   confidence,
		MarketPrice:  marketPrice,
		Verdict:      domain.VerdictSkip,
		MeetsQuorum:  rule.MeetsQuorum(snap),
		AnchorAgrees: snap.AnchorAgrees,
	}
	if marketPrice != nil {
		sig.PriceCapped = *marketPrice > th.PriceCap
	}
	if !sig.MeetsQuorum || marketPrice == nil {
		return sig
	}

	edge := confidence - *marketPrice
	sig.Edge = &edge
	switch {
	case edge > th.StrongEdge:
		sig.Verdict = domain.VerdictStrong
	case edge > th.MarginalEdge:
		sig.Verdict = domain.VerdictMarginal
	}
	return sig
}

// PassesBoundaryFilter reports whether every model that agrees with the
// consensus sits at least minDistance away from its bucket boundary.
func PassesBoundaryFilter(snap domain.ConsensusSnapshot, unit domain.Unit, minDistance float64) bool {
	for model, b := range snap.ModelBuckets {
		if b != snap.Bucket {
			continue
		}
		d, err := BoundaryDistance(snap.ModelValues[model], unit)
		if err != nil || d < minDistance {
			return false
		}
	}
	return true
}

// SizePosition returns the whole number of shares maxBet buys at price and
// their cost rounded to cents. Shares is zero when price is not positive.
func SizePosition(maxBet, price float64) (shares int, cost float64) {
	if price <= 0 || maxBet <= 0 {
		return 0, 0
	}
	shares = int(math.Floor(maxBet / price))
	return shares, Round2(float64(shares) * price)
}

// Round2 rounds to two decimal places, halves away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
