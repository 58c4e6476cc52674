package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// EvaluateDrift classifies an open trade against fresh consensus by counting
// the models still forecasting the entry bucket. All models on the bucket is
// holding, all but one is drifting, anything less is broken. A snapshot with
// no model on the bucket is always broken, even when only one model reported.
func EvaluateDrift(trade domain.Trade, snap domain.ConsensusSnapshot, unit domain.Unit) (domain.DriftAssessment, error) {
	total := len(snap.ModelBuckets)
	if total == 0 {
		return domain.DriftAssessment{}, domain.ErrNoForecasts
	}

	models := make([]string, 0, total)
	for m := range snap.ModelBuckets {
		models = append(models, m)
	}
	sort.Strings(models)

	var on []string
	var off []string
	parts := make([]string, 0, total)
	for _, m := range models {
		b := snap.ModelBuckets[m]
		if b == trade.Bucket {
			on = append(on, m)
		} else {
			off = append(off, m)
		}
		parts = append(parts, fmt.Sprintf("%s=%.1f->%s", m, snap.ModelValues[m], b))
	}

	a := domain.DriftAssessment{
		ModelsOnBucket:   len(on),
		ModelsTotal:      total,
		CurrentConsensus: snap.Bucket,
		Agreement:        snap.Agreement,
		ModelDetail:      strings.Join(parts, ", "),
	}

	switch {
	case len(on) == total:
		a.State = domain.DriftHolding
		a.Detail = fmt.Sprintf("all %d models still on %s", total, trade.Bucket)
	case len(on) == 0:
		a.State = domain.DriftBroken
		a.Detail = fmt.Sprintf("all models left %s, consensus now %s (%d/%d)",
			trade.Bucket, snap.Bucket, snap.Agreement, total)
	case len(on) == total-1:
		a.State = domain.DriftDrifting
		m := off[0]
		a.Detail = fmt.Sprintf("%s shifted to %s (%.1f°%s), %d/%d still on %s",
			strings.ToUpper(m), snap.ModelBuckets[m], snap.ModelValues[m], unit, len(on), total, trade.Bucket)
	default:
		a.State = domain.DriftBroken
		a.Detail = fmt.Sprintf("consensus moved to %s (%d/%d), only %s still on %s",
			snap.Bucket, snap.Agreement, total, strings.ToUpper(strings.Join(on, ",")), trade.Bucket)
	}
	return a, nil
}

// ResolveTrade settles an open trade against the observed value. The second
// return is false, and the trade untouched, when the trade is already
// terminal.
func ResolveTrade(trade domain.Trade, actual float64, unit domain.Unit) (domain.Resolution, bool, error) {
	if trade.Status != domain.TradeOpen {
		return domain.Resolution{}, false, nil
	}
	actualBucket, err := Bucket(actual, unit)
	if err != nil {
		return domain.Resolution{}, false, err
	}

	res := domain.Resolution{ActualValue: actual, ActualBucket: actualBucket}
	if actualBucket == trade.Bucket {
		res.Status = domain.TradeWon
		res.PnL = Round2(float64(trade.Shares) * (1 - trade.Price))
	} else {
		res.Status = domain.TradeLost
		res.PnL = -trade.Cost
	}
	return res, true, nil
}
