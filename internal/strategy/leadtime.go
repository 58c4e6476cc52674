package strategy

import (
	"math"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// LeadDays is the number of days between now and noon UTC on the target
// date, rounded to the nearest day.
func LeadDays(target, now time.Time) int {
	noon := domain.Day(target).Add(12 * time.Hour)
	return int(math.Round(noon.Sub(now).Hours() / 24))
}

// EvaluationDates returns today and the following daysAhead UTC dates.
func EvaluationDates(now time.Time, daysAhead int) []time.Time {
	today := domain.Day(now)
	dates := make([]time.Time, 0, daysAhead+1)
	for i := 0; i <= daysAhead; i++ {
		dates = append(dates, today.AddDate(0, 0, i))
	}
	return dates
}

// ModelRun labels the most recent published run of a model at now. ECMWF
// publishes the 00z and 12z runs around 06:00 and 18:00 UTC; GFS and ICON
// publish four runs a day roughly four hours after init.
func ModelRun(model string, now time.Time) string {
	h := now.UTC().Hour()
	if model == "ecmwf" {
		switch {
		case h >= 18:
			return "12z"
		case h >= 6:
			return "00z"
		default:
			return "12z_prev"
		}
	}
	switch {
	case h >= 22:
		return "18z"
	case h >= 16:
		return "12z"
	case h >= 10:
		return "06z"
	case h >= 4:
		return "00z"
	default:
		return "18z_prev"
	}
}
